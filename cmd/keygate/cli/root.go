package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ngajidev/keygate/internal/config"
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	return newRootCmd(version, commit, date).ExecuteContext(context.Background())
}

// env is the state shared by every subcommand: the viper instance the
// config file and flags are merged into.
type env struct {
	v       *viper.Viper
	cfgFile string
	version string
}

func newRootCmd(version, commit, date string) *cobra.Command {
	e := &env{v: config.NewViper(), version: version}

	cmd := &cobra.Command{
		Use:   "keygate",
		Short: "API key and token verification for your services",
		Long: `keygate issues session tokens, manages API keys and answers one question
for every request your services receive: who is calling, and may they?

Run the auth service with 'keygate serve' and a data service that delegates
verification to it with 'keygate data serve'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.readConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&e.cfgFile, "config", "", "config file (default is ./keygate.yaml or ~/.keygate/keygate.yaml)")
	cmd.PersistentFlags().String("data-dir", "", "data directory for the SQLite store (default: ~/.keygate)")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	e.v.BindPFlag("store.data_dir", cmd.PersistentFlags().Lookup("data-dir"))
	e.v.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(newServeCmd(e))
	cmd.AddCommand(newDataCmd(e))
	cmd.AddCommand(newKeyCmd(e))
	cmd.AddCommand(newUserCmd(e))
	cmd.AddCommand(newConfigCmd(e))
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

// readConfig merges the config file, if any, into e.v. Without --config
// the working directory and ~/.keygate are searched; no file is fine.
func (e *env) readConfig() error {
	path := e.cfgFile
	if path == "" {
		path = config.FindFile(".", config.DefaultDataDir())
		if path == "" {
			return nil
		}
	}
	return config.ReadFile(e.v, path)
}

// settings decodes and validates the effective configuration. The SQLite
// store falls back to ~/.keygate when neither a DSN nor a data dir is set.
func (e *env) settings() (*config.Settings, error) {
	s, err := config.Load(e.v)
	if err != nil {
		return nil, err
	}
	if s.Store.Driver == "sqlite" && s.Store.DSN == "" && s.Store.DataDir == "" {
		s.Store.DataDir = config.DefaultDataDir()
	}
	return s, nil
}

// configPath is where 'config init' writes when --config is not given.
func (e *env) configPath() string {
	if e.cfgFile != "" {
		return e.cfgFile
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, config.FileName+".yaml")
	}
	return config.FileName + ".yaml"
}
