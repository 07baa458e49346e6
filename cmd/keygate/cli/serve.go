package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ngajidev/keygate/internal/app"
)

const banner = `
 _  __                      _
| |/ /___ _   _  __ _  __ _| |_ ___
| ' // _ \ | | |/ _' |/ _' | __/ _ \
| . \  __/ |_| | (_| | (_| | ||  __/
|_|\_\___|\__, |\__, |\__,_|\__\___|
          |___/ |___/
`

func newServeCmd(e *env) *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth service",
		Long: `Start the auth service: login and refresh, the verification endpoint used
by data services, and API key management.`,
		Example: `  keygate serve
  keygate serve --port 9000 --dev
  KEYGATE_AUTH_JWT_SECRET=... keygate serve --config /etc/keygate/keygate.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runServe(cmd, dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Development mode (debug logging, random JWT secret when unset)")

	e.v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	e.v.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func (e *env) runServe(cmd *cobra.Command, dev bool) error {
	a, logger, err := e.openApp(cmd, app.RoleAuth, dev)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := a.AuthServer()
	if err != nil {
		return err
	}

	s := a.Settings
	logger.Info("store initialized", "driver", a.Store.Driver())
	logger.Info("verification cache", "backend", s.Cache.Backend, "ttl", s.Cache.TTL)

	out := cmd.OutOrStdout()
	fmt.Fprint(out, banner)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "→ keygate %s (auth service)\n", e.version)
	printEndpoints(out, srv.Addr())
	fmt.Fprintf(out, "→ Verify:     POST /api/v1/auth/verify (from %v)\n", s.Auth.TrustedNetworks)
	fmt.Fprintln(out)

	return srv.ListenAndServe()
}

func printEndpoints(out io.Writer, addr string) {
	fmt.Fprintf(out, "→ Listening on http://%s\n", addr)
	fmt.Fprintf(out, "→ OpenAPI:    http://%s/openapi.json\n", addr)
	fmt.Fprintf(out, "→ Health:     http://%s/healthz\n", addr)
}
