package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ngajidev/keygate/internal/app"
)

func newDataCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Run the data service",
		Long:  "The data service serves attendance records and delegates every authentication decision to the configured verifier.",
	}

	cmd.AddCommand(newDataServeCmd(e))

	return cmd
}

func newDataServeCmd(e *env) *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the data service",
		Example: `  keygate data serve                                   # verify in process
  keygate data serve --verifier http --verifier-url http://auth:8080
  keygate data serve --verifier stub --dev               # built-in test credentials`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runDataServe(cmd, dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8081, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().String("verifier", "local", "Verifier mode: local, http or stub")
	cmd.Flags().String("verifier-url", "", "Auth service base URL for --verifier http")
	cmd.Flags().BoolVar(&dev, "dev", false, "Development mode (debug logging, random JWT secret when unset)")

	e.v.BindPFlag("data.port", cmd.Flags().Lookup("port"))
	e.v.BindPFlag("data.host", cmd.Flags().Lookup("host"))
	e.v.BindPFlag("verifier.mode", cmd.Flags().Lookup("verifier"))
	e.v.BindPFlag("verifier.url", cmd.Flags().Lookup("verifier-url"))

	return cmd
}

func (e *env) runDataServe(cmd *cobra.Command, dev bool) error {
	a, logger, err := e.openApp(cmd, app.RoleData, dev)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := a.DataServer()
	if err != nil {
		return err
	}

	s := a.Settings
	logger.Info("verifier selected", "mode", s.Verifier.Mode)
	if s.Verifier.Mode == "http" {
		logger.Info("delegating verification", "url", s.Verifier.URL, "attempts", s.Verifier.Attempts, "timeout", s.Verifier.Timeout)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, banner)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "→ keygate %s (data service, verifier: %s)\n", e.version, s.Verifier.Mode)
	printEndpoints(out, srv.Addr())
	fmt.Fprintln(out)

	return srv.ListenAndServe()
}
