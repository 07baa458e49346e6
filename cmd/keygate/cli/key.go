package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngajidev/keygate/internal/app"
	"github.com/ngajidev/keygate/internal/model"
	"github.com/ngajidev/keygate/internal/service"
)

func newKeyCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke API keys that authenticate requests with 'Authorization: ApiKey <key>'.",
	}

	cmd.AddCommand(newKeyCreateCmd(e))
	cmd.AddCommand(newKeyListCmd(e))
	cmd.AddCommand(newKeyRevokeCmd(e))

	return cmd
}

// keyRow is the listing shape; it never carries the secret.
type keyRow struct {
	ID         int64            `json:"id"`
	Owner      string           `json:"owner"`
	Name       string           `json:"name"`
	Prefix     string           `json:"prefix"`
	Permission model.Permission `json:"permission"`
	Revoked    bool             `json:"revoked"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// ---------- key create ----------

func newKeyCreateCmd(e *env) *cobra.Command {
	var (
		user       string
		name       string
		permission string
		days       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key for a user. The raw key is shown once and cannot be retrieved again.",
		Example: `  keygate key create --user alice --name "CI pipeline" --permission read_only
  keygate key create --user alice --name ingest --permission write_only --expires-in-days 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.CreateCredentialRequest{Name: name, Permission: model.Permission(permission)}
			if cmd.Flags().Changed("expires-in-days") {
				req.ExpiresInDays = &days
			}
			return e.runKeyCreate(cmd, user, req, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Owner username or id (required)")
	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().StringVar(&permission, "permission", string(model.PermissionReadOnly), "read_only, write_only or read_write")
	cmd.Flags().IntVar(&days, "expires-in-days", 0, "Days until the key expires (0 or unset: never)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("name")

	return cmd
}

func (e *env) runKeyCreate(cmd *cobra.Command, userRef string, req service.CreateCredentialRequest, jsonOutput bool) error {
	a, _, err := e.openApp(cmd, app.RoleAdmin, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	u, err := lookupUser(ctx, a.Store, userRef)
	if err != nil {
		return err
	}
	req.OwnerID = u.ID

	cred, err := a.Creds.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, struct {
			keyRow
			Key string `json:"api_key"`
		}{rowFor(cred, u.Username), cred.Secret})
	}

	fmt.Fprintln(out, "API Key created:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Key:        %s\n", cred.Secret)
	fmt.Fprintf(out, "  ID:         %d\n", cred.ID)
	fmt.Fprintf(out, "  Owner:      %s\n", u.Username)
	fmt.Fprintf(out, "  Name:       %s\n", cred.Name)
	fmt.Fprintf(out, "  Permission: %s\n", cred.Permission)
	if cred.ExpiresAt != nil {
		fmt.Fprintf(out, "  Expires:    %s\n", cred.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd(e *env) *cobra.Command {
	var (
		user       string
		all        bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List API keys",
		Long:    "List active API keys, for one user or for every user. Revoked keys are shown with --all.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runKeyList(cmd, user, all, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Only keys owned by this username or id")
	cmd.Flags().BoolVar(&all, "all", false, "Include revoked keys")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func (e *env) runKeyList(cmd *cobra.Command, userRef string, all, jsonOutput bool) error {
	a, _, err := e.openApp(cmd, app.RoleAdmin, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	var owners []model.User
	if userRef != "" {
		u, err := lookupUser(ctx, a.Store, userRef)
		if err != nil {
			return err
		}
		owners = []model.User{*u}
	} else if owners, err = a.Store.ListUsers(ctx); err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	rows := []keyRow{}
	for _, u := range owners {
		list := a.Creds.ListActive
		if all {
			list = a.Creds.List
		}
		creds, err := list(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("list api keys: %w", err)
		}
		for i := range creds {
			rows = append(rows, rowFor(&creds[i], u.Username))
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(out, "No API keys found. Use 'keygate key create' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-6s %-16s %-20s %-10s %-12s %-20s %s\n", "ID", "OWNER", "NAME", "PREFIX", "PERMISSION", "EXPIRES", "REVOKED")
	fmt.Fprintf(out, "%-6s %-16s %-20s %-10s %-12s %-20s %s\n", "--", "-----", "----", "------", "----------", "-------", "-------")
	for _, r := range rows {
		expires := "never"
		if r.ExpiresAt != nil {
			expires = r.ExpiresAt.Format("2006-01-02 15:04")
		}
		revoked := "no"
		if r.Revoked {
			revoked = "yes"
		}
		fmt.Fprintf(out, "%-6d %-16s %-20s %-10s %-12s %-20s %s\n", r.ID, r.Owner, r.Name, r.Prefix, r.Permission, expires, revoked)
	}
	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd(e *env) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Long: `Revoke an API key owned by --user. Verifiers stop accepting it on their next
uncached lookup; a cached verdict may survive until the cache TTL elapses.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid key id %q", args[0])
			}
			return e.runKeyRevoke(cmd, id, user)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Owner username or id (required)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func (e *env) runKeyRevoke(cmd *cobra.Command, id int64, userRef string) error {
	a, _, err := e.openApp(cmd, app.RoleAdmin, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	u, err := lookupUser(ctx, a.Store, userRef)
	if err != nil {
		return err
	}

	ok, err := a.Creds.Revoke(ctx, id, u.ID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if !ok {
		return errors.New("API key not found")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Revoked API key %d\n", id)
	return nil
}

func rowFor(c *model.Credential, owner string) keyRow {
	return keyRow{
		ID:         c.ID,
		Owner:      owner,
		Name:       c.Name,
		Prefix:     c.DisplayPrefix(),
		Permission: c.Permission,
		Revoked:    c.Revoked,
		ExpiresAt:  c.ExpiresAt,
		CreatedAt:  c.CreatedAt,
	}
}
