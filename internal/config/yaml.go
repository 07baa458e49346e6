package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultYAML is the file written by `keygate config init`. Every value
// matches Defaults.
const DefaultYAML = `# keygate configuration
# Every key can be overridden with KEYGATE_<SECTION>_<KEY>, e.g.
# KEYGATE_AUTH_JWT_SECRET. ${VAR} references are expanded on load.

server:
  host: "0.0.0.0"
  port: 8080
  shutdown_timeout: "30s"
  cors_origins:
    - "*"
  requests_per_minute: 600   # per client IP, 0 disables

store:
  driver: "sqlite"           # sqlite, postgres or mysql
  dsn: ""                    # required for postgres and mysql
  data_dir: ""               # sqlite only, defaults to ~/.keygate

auth:
  jwt_secret: ""             # required, at least 32 characters
  issuer: "keygate"
  access_ttl: "15m"
  refresh_ttl: "75m"
  refresh_max_attempts: 5
  refresh_window: "15m"
  trusted_networks:          # callers allowed to use /api/v1/auth/verify
    - "127.0.0.0/8"
    - "::1/128"

cache:
  backend: "memory"          # memory or sql
  ttl: "5m0s"
  size: 10000
  purge_interval: "1m0s"     # sql backend only

verifier:
  mode: "local"              # local, http or stub
  url: "http://127.0.0.1:8080"
  timeout: "2s"
  attempts: 3
  stub_file: ""

data:
  host: "0.0.0.0"
  port: 8081

log:
  level: "info"              # debug, info, warn, error
  format: "text"             # text or json
`

// ParseYAML decodes a config document into Settings, starting from the
// defaults. ${VAR} references are expanded first.
func ParseYAML(data []byte) (*Settings, error) {
	s := Defaults()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &s); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &s, nil
}

// WriteDefault writes DefaultYAML to path, creating parent directories.
// An existing file is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		return err
	}
	if _, err := f.WriteString(DefaultYAML); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Marshal renders settings as YAML.
func (s Settings) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// ReadFile loads a config file into v, expanding ${VAR} references.
func ReadFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader([]byte(os.ExpandEnv(string(data))))); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// FindFile returns the first keygate.yaml found in dirs, or "".
func FindFile(dirs ...string) string {
	for _, d := range dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			p := filepath.Join(d, FileName+ext)
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p
			}
		}
	}
	return ""
}
