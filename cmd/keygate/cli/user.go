package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ngajidev/keygate/internal/app"
	"github.com/ngajidev/keygate/internal/service"
)

func newUserCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		Long:  "Create and list the accounts that log in for session tokens and own API keys.",
	}

	cmd.AddCommand(newUserCreateCmd(e))
	cmd.AddCommand(newUserListCmd(e))

	return cmd
}

// ---------- user create ----------

func newUserCreateCmd(e *env) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a new user",
		Example: `  keygate user create alice                      # prompts for password
  keygate user create alice --password s3cret-pass`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runUserCreate(cmd, args[0], password)
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")

	return cmd
}

func (e *env) runUserCreate(cmd *cobra.Command, username, password string) error {
	if password == "" {
		var err error
		if password, err = promptPassword(cmd); err != nil {
			return err
		}
	}
	if len(password) < service.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", service.MinPasswordLength)
	}

	a, _, err := e.openApp(cmd, app.RoleAdmin, false)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.Auth.CreateUser(cmd.Context(), username, password)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created user %q (id %d)\n", u.Username, u.ID)
	return nil
}

// promptPassword reads a password twice from a terminal without echo, or
// once from a non-terminal stdin.
func promptPassword(cmd *cobra.Command) (string, error) {
	out := cmd.ErrOrStderr()

	fd := int(os.Stdin.Fd())
	if cmd.InOrStdin() != os.Stdin || !term.IsTerminal(fd) {
		return readLine(cmd.InOrStdin())
	}

	fmt.Fprint(out, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	fmt.Fprint(out, "Confirm password: ")
	confirm, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read confirmation: %w", err)
	}

	if string(pw) != string(confirm) {
		return "", errors.New("passwords do not match")
	}
	return string(pw), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ---------- user list ----------

func newUserListCmd(e *env) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runUserList(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func (e *env) runUserList(cmd *cobra.Command, jsonOutput bool) error {
	a, _, err := e.openApp(cmd, app.RoleAdmin, false)
	if err != nil {
		return err
	}
	defer a.Close()

	users, err := a.Store.ListUsers(cmd.Context())
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, users)
	}

	if len(users) == 0 {
		fmt.Fprintln(out, "No users yet. Create one with: keygate user create <username>")
		return nil
	}

	fmt.Fprintf(out, "%-6s %-24s %-8s %s\n", "ID", "USERNAME", "ACTIVE", "CREATED")
	fmt.Fprintf(out, "%-6s %-24s %-8s %s\n", "--", "--------", "------", "-------")
	for _, u := range users {
		active := "yes"
		if !u.IsActive {
			active = "no"
		}
		fmt.Fprintf(out, "%-6d %-24s %-8s %s\n", u.ID, u.Username, active, u.CreatedAt.Format(time.RFC3339))
	}
	return nil
}
