// Package config loads keygate settings from a YAML file, KEYGATE_*
// environment variables and command-line flags through viper.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// KEYGATE_AUTH_JWT_SECRET for auth.jwt_secret.
const EnvPrefix = "KEYGATE"

// FileName is the config file searched for in the working directory and
// in the data directory.
const FileName = "keygate"

// Settings is the complete keygate configuration.
type Settings struct {
	Server   ServerSettings   `mapstructure:"server" yaml:"server"`
	Store    StoreSettings    `mapstructure:"store" yaml:"store"`
	Auth     AuthSettings     `mapstructure:"auth" yaml:"auth"`
	Cache    CacheSettings    `mapstructure:"cache" yaml:"cache"`
	Verifier VerifierSettings `mapstructure:"verifier" yaml:"verifier"`
	Data     DataSettings     `mapstructure:"data" yaml:"data"`
	Log      LogSettings      `mapstructure:"log" yaml:"log"`
}

// ServerSettings controls the auth service listener.
type ServerSettings struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Port              int           `mapstructure:"port" yaml:"port"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins       []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// StoreSettings selects the relational backend.
type StoreSettings struct {
	Driver  string `mapstructure:"driver" yaml:"driver"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// AuthSettings controls session tokens, the refresh limiter and the
// networks allowed to call the verification endpoint.
type AuthSettings struct {
	JWTSecret          string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Issuer             string        `mapstructure:"issuer" yaml:"issuer"`
	AccessTTL          time.Duration `mapstructure:"access_ttl" yaml:"access_ttl"`
	RefreshTTL         time.Duration `mapstructure:"refresh_ttl" yaml:"refresh_ttl"`
	RefreshMaxAttempts int           `mapstructure:"refresh_max_attempts" yaml:"refresh_max_attempts"`
	RefreshWindow      time.Duration `mapstructure:"refresh_window" yaml:"refresh_window"`
	TrustedNetworks    []string      `mapstructure:"trusted_networks" yaml:"trusted_networks"`
}

// CacheSettings selects where verification verdicts are cached.
type CacheSettings struct {
	Backend       string        `mapstructure:"backend" yaml:"backend"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Size          int           `mapstructure:"size" yaml:"size"`
	PurgeInterval time.Duration `mapstructure:"purge_interval" yaml:"purge_interval"`
}

// VerifierSettings selects how the data service reaches the verifier.
type VerifierSettings struct {
	Mode     string        `mapstructure:"mode" yaml:"mode"`
	URL      string        `mapstructure:"url" yaml:"url"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Attempts int           `mapstructure:"attempts" yaml:"attempts"`
	StubFile string        `mapstructure:"stub_file" yaml:"stub_file"`
}

// DataSettings controls the data service listener.
type DataSettings struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// LogSettings controls log output.
type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Cache backends.
const (
	CacheMemory = "memory"
	CacheSQL    = "sql"
)

// Defaults returns the built-in settings. DataDir is left empty; callers
// that want the per-user directory use DefaultDataDir.
func Defaults() Settings {
	return Settings{
		Server: ServerSettings{
			Host:              "0.0.0.0",
			Port:              8080,
			ShutdownTimeout:   30 * time.Second,
			CORSOrigins:       []string{"*"},
			RequestsPerMinute: 600,
		},
		Store: StoreSettings{
			Driver: "sqlite",
		},
		Auth: AuthSettings{
			Issuer:             "keygate",
			AccessTTL:          15 * time.Minute,
			RefreshTTL:         75 * time.Minute,
			RefreshMaxAttempts: 5,
			RefreshWindow:      15 * time.Minute,
			TrustedNetworks:    []string{"127.0.0.0/8", "::1/128"},
		},
		Cache: CacheSettings{
			Backend:       CacheMemory,
			TTL:           300 * time.Second,
			Size:          10000,
			PurgeInterval: time.Minute,
		},
		Verifier: VerifierSettings{
			Mode:     "local",
			URL:      "http://127.0.0.1:8080",
			Timeout:  2 * time.Second,
			Attempts: 3,
		},
		Data: DataSettings{
			Host: "0.0.0.0",
			Port: 8081,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultDataDir is ~/.keygate, or .keygate in the working directory when
// the home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".keygate"
	}
	return filepath.Join(home, ".keygate")
}

// SetDefaults registers every key with v so that environment variables are
// seen by Unmarshal even when no config file sets the key.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.requests_per_minute", d.Server.RequestsPerMinute)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.data_dir", d.Store.DataDir)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("auth.access_ttl", d.Auth.AccessTTL)
	v.SetDefault("auth.refresh_ttl", d.Auth.RefreshTTL)
	v.SetDefault("auth.refresh_max_attempts", d.Auth.RefreshMaxAttempts)
	v.SetDefault("auth.refresh_window", d.Auth.RefreshWindow)
	v.SetDefault("auth.trusted_networks", d.Auth.TrustedNetworks)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.size", d.Cache.Size)
	v.SetDefault("cache.purge_interval", d.Cache.PurgeInterval)

	v.SetDefault("verifier.mode", d.Verifier.Mode)
	v.SetDefault("verifier.url", d.Verifier.URL)
	v.SetDefault("verifier.timeout", d.Verifier.Timeout)
	v.SetDefault("verifier.attempts", d.Verifier.Attempts)
	v.SetDefault("verifier.stub_file", d.Verifier.StubFile)

	v.SetDefault("data.host", d.Data.Host)
	v.SetDefault("data.port", d.Data.Port)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// NewViper returns a viper instance with defaults registered and
// KEYGATE_* environment overrides enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	s.Store.Driver = strings.ToLower(strings.TrimSpace(s.Store.Driver))
	s.Cache.Backend = strings.ToLower(strings.TrimSpace(s.Cache.Backend))
	s.Verifier.Mode = strings.ToLower(strings.TrimSpace(s.Verifier.Mode))
	s.Log.Format = strings.ToLower(strings.TrimSpace(s.Log.Format))
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate reports every invalid setting at once.
func (s *Settings) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if s.Server.Port < 1 || s.Server.Port > 65535 {
		bad("server.port %d out of range", s.Server.Port)
	}
	if s.Data.Port < 1 || s.Data.Port > 65535 {
		bad("data.port %d out of range", s.Data.Port)
	}
	if s.Server.ShutdownTimeout <= 0 {
		bad("server.shutdown_timeout must be positive")
	}
	if s.Server.RequestsPerMinute < 0 {
		bad("server.requests_per_minute must not be negative")
	}

	switch s.Store.Driver {
	case "sqlite":
	case "postgres", "mysql":
		if s.Store.DSN == "" {
			bad("store.dsn is required for driver %s", s.Store.Driver)
		}
	default:
		bad("store.driver %q is not one of sqlite, postgres, mysql", s.Store.Driver)
	}

	if s.Auth.AccessTTL <= 0 || s.Auth.RefreshTTL <= 0 {
		bad("auth.access_ttl and auth.refresh_ttl must be positive")
	}
	if s.Auth.RefreshMaxAttempts < 1 {
		bad("auth.refresh_max_attempts must be at least 1")
	}
	if s.Auth.RefreshWindow <= 0 {
		bad("auth.refresh_window must be positive")
	}
	for _, n := range s.Auth.TrustedNetworks {
		if _, err := parseNetwork(n); err != nil {
			bad("auth.trusted_networks: %q is not an address or CIDR", n)
		}
	}

	switch s.Cache.Backend {
	case CacheMemory, CacheSQL:
	default:
		bad("cache.backend %q is not one of memory, sql", s.Cache.Backend)
	}
	if s.Cache.TTL <= 0 {
		bad("cache.ttl must be positive")
	}
	if s.Cache.Size < 1 {
		bad("cache.size must be at least 1")
	}
	if s.Cache.Backend == CacheSQL && s.Cache.PurgeInterval <= 0 {
		bad("cache.purge_interval must be positive for the sql backend")
	}

	switch s.Verifier.Mode {
	case "local", "stub":
	case "http":
		if u, err := url.Parse(s.Verifier.URL); err != nil || u.Scheme == "" || u.Host == "" {
			bad("verifier.url %q must be an absolute URL in http mode", s.Verifier.URL)
		}
	default:
		bad("verifier.mode %q is not one of local, http, stub", s.Verifier.Mode)
	}
	if s.Verifier.Attempts < 1 {
		bad("verifier.attempts must be at least 1")
	}
	if s.Verifier.Timeout <= 0 {
		bad("verifier.timeout must be positive")
	}

	if _, err := ParseLevel(s.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if s.Log.Format != "text" && s.Log.Format != "json" {
		bad("log.format %q is not one of text, json", s.Log.Format)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}

func parseNetwork(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		return netip.ParsePrefix(s)
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(a, a.BitLen()), nil
}

const masked = "********"

var kvPassword = regexp.MustCompile(`(password=)(\S+)`)

// Redacted returns a copy safe to print: the JWT secret and any password
// inside the store DSN are masked.
func (s Settings) Redacted() Settings {
	out := s
	out.Server.CORSOrigins = append([]string(nil), s.Server.CORSOrigins...)
	out.Auth.TrustedNetworks = append([]string(nil), s.Auth.TrustedNetworks...)
	if out.Auth.JWTSecret != "" {
		out.Auth.JWTSecret = masked
	}
	out.Store.DSN = redactDSN(s.Store.Driver, s.Store.DSN)
	return out
}

func redactDSN(driver, dsn string) string {
	if dsn == "" {
		return ""
	}
	switch driver {
	case "mysql":
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return masked
		}
		if cfg.Passwd != "" {
			cfg.Passwd = masked
		}
		return cfg.FormatDSN()
	case "postgres":
		if strings.Contains(dsn, "://") {
			u, err := url.Parse(dsn)
			if err != nil {
				return masked
			}
			return u.Redacted()
		}
		return kvPassword.ReplaceAllString(dsn, "${1}"+masked)
	}
	return dsn
}
