// Package config holds the flag and yaml configuration surface of the
// badged command. Flags win over the config file, the config file wins
// over defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/badgeworks/badged"
)

type Config struct {
	ConfigFile string

	Address         string `yaml:"address"`
	SupportListener string `yaml:"support-listener"`

	ApplicationLogLevel  string `yaml:"application-log-level"`
	ApplicationLogPrefix string `yaml:"application-log-prefix"`
	ApplicationLogJSON   bool   `yaml:"application-log-json"`

	CorsAllowedOrigins   string        `yaml:"cors-allowed-origins"`
	CorsAllowCredentials bool          `yaml:"cors-allow-credentials"`
	CorsMaxAge           time.Duration `yaml:"cors-max-age"`

	SecretsDir            string        `yaml:"secrets-dir"`
	SecretCacheTTL        time.Duration `yaml:"secret-cache-ttl"`
	SecretRefreshInterval time.Duration `yaml:"secret-refresh-interval"`

	RedisAddrs string        `yaml:"redis-addrs"`
	NonceTTL   time.Duration `yaml:"nonce-ttl"`

	RequestTimeout  time.Duration `yaml:"request-timeout"`
	MaxRequestBytes int64         `yaml:"max-request-bytes"`

	DevMode bool `yaml:"dev-mode"`

	flags *flag.FlagSet
}

const (
	defaultAddress         = ":9090"
	defaultSupportListener = ":9911"
	defaultLogLevel        = "INFO"
	defaultLogPrefix       = "[APP]"
	defaultRequestTimeout  = 25 * time.Second
)

func NewConfig() *Config {
	cfg := new(Config)

	fs := flag.NewFlagSet("badged", flag.ExitOnError)

	fs.StringVar(&cfg.ConfigFile, "config-file", "", "yaml file to load the configuration from, flags win over its values")

	fs.StringVar(&cfg.Address, "address", defaultAddress, "network address that badged should listen on")
	fs.StringVar(&cfg.SupportListener, "support-listener", defaultSupportListener, "network address for the support endpoints (/metrics), empty disables them")

	fs.StringVar(&cfg.ApplicationLogLevel, "application-log-level", defaultLogLevel, "log level of the application log")
	fs.StringVar(&cfg.ApplicationLogPrefix, "application-log-prefix", defaultLogPrefix, "prefix for application log entries")
	fs.BoolVar(&cfg.ApplicationLogJSON, "application-log-json", false, "when set, application log is in JSON format")

	fs.StringVar(&cfg.CorsAllowedOrigins, "cors-allowed-origins", "", "comma separated list of origins allowed to call the service, empty allows any origin")
	fs.BoolVar(&cfg.CorsAllowCredentials, "cors-allow-credentials", false, "when set, credentialed cross-origin calls are allowed for the listed origins")
	fs.DurationVar(&cfg.CorsMaxAge, "cors-max-age", time.Hour, "how long browsers may cache preflight answers")

	fs.StringVar(&cfg.SecretsDir, "secrets-dir", "", "directory with per-organization signing secrets, one <org>.<token-type> file each")
	fs.DurationVar(&cfg.SecretCacheTTL, "secret-cache-ttl", 15*time.Minute, "how long resolved secrets are cached")
	fs.DurationVar(&cfg.SecretRefreshInterval, "secret-refresh-interval", 10*time.Minute, "how often the secrets directory is re-read")

	fs.StringVar(&cfg.RedisAddrs, "redis-addrs", "", "comma separated redis shard addresses for the nonce and result stores")
	fs.DurationVar(&cfg.NonceTTL, "nonce-ttl", 45*time.Minute, "how long used nonces stay blocked")

	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", defaultRequestTimeout, "deadline for handling one request")
	fs.Int64Var(&cfg.MaxRequestBytes, "max-request-bytes", 1<<20, "largest accepted request body")

	fs.BoolVar(&cfg.DevMode, "dev-mode", false, "run with in-memory stores instead of redis")

	cfg.flags = fs
	return cfg
}

// Parse loads the configuration from the command line, applying the
// config file first when one is given.
func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[1:])
}

func (c *Config) ParseArgs(args []string) error {
	if err := c.flags.Parse(args); err != nil {
		return err
	}

	if c.ConfigFile != "" {
		dat, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("invalid config file %q: %w", c.ConfigFile, err)
		}
		if err := yaml.Unmarshal(dat, c); err != nil {
			return fmt.Errorf("invalid config file %q: %w", c.ConfigFile, err)
		}
		// Parse again so explicit flags win over file values.
		if err := c.flags.Parse(args); err != nil {
			return err
		}
	}

	if !c.DevMode && c.RedisAddrs == "" {
		return fmt.Errorf("redis-addrs is required unless dev-mode is set")
	}
	if !c.DevMode && c.SecretsDir == "" {
		return fmt.Errorf("secrets-dir is required unless dev-mode is set")
	}
	return nil
}

// ToOptions converts the parsed configuration to runtime options.
func (c *Config) ToOptions() badged.Options {
	return badged.Options{
		Address:         c.Address,
		SupportListener: c.SupportListener,

		ApplicationLogLevel:  c.ApplicationLogLevel,
		ApplicationLogPrefix: c.ApplicationLogPrefix,
		ApplicationLogJSON:   c.ApplicationLogJSON,

		CorsAllowedOrigins:   splitList(c.CorsAllowedOrigins),
		CorsAllowCredentials: c.CorsAllowCredentials,
		CorsMaxAge:           c.CorsMaxAge,

		SecretsDir:            c.SecretsDir,
		SecretCacheTTL:        c.SecretCacheTTL,
		SecretRefreshInterval: c.SecretRefreshInterval,

		RedisAddrs: splitList(c.RedisAddrs),
		NonceTTL:   c.NonceTTL,

		RequestTimeout:  c.RequestTimeout,
		MaxRequestBytes: c.MaxRequestBytes,

		DevMode: c.DevMode,
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
