package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ngajidev/keygate/internal/config"
)

func newConfigCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage keygate configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd(e))
	cmd.AddCommand(newConfigShowCmd(e))

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd(e *env) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default keygate.yaml configuration file",
		// The target of --config usually does not exist yet.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := e.configPath()
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "Set auth.jwt_secret (or KEYGATE_AUTH_JWT_SECRET) before running 'keygate serve'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

// ---------- config show ----------

func newConfigShowCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long:  "Print the configuration after merging defaults, the config file, KEYGATE_* variables and flags. Secrets are masked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.settings()
			if err != nil {
				return err
			}
			r := s.Redacted()

			out := cmd.OutOrStdout()
			if used := e.v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(out, "# config file: %s\n", used)
			} else {
				fmt.Fprintln(out, "# no config file found, showing defaults and overrides")
			}
			data, err := r.Marshal()
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}

	return cmd
}
