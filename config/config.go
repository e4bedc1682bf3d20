// Package config loads lingoctl settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// .env and environment variables, then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	lc "github.com/panyam/lingoclient"
)

// Environment variables read by ApplyEnv.
const (
	EnvConfigFile      = "LINGO_CONFIG"
	EnvEnvironment     = "LINGO_ENV"
	EnvStorePath       = "LINGO_STORE_PATH"
	EnvStoreKey        = "LINGO_STORE_KEY"
	EnvTimeout         = "LINGO_TIMEOUT"
	EnvFlightTimeout   = "LINGO_FLIGHT_TIMEOUT"
	EnvReloginCooldown = "LINGO_RELOGIN_COOLDOWN"
	EnvStrictParams    = "LINGO_STRICT_PARAMS"
	EnvCode            = "LINGO_CODE"
)

// Duration is a time.Duration written as "30s" in YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds everything needed to build a client.
type Config struct {
	Env     lc.Environment               `yaml:"env"`
	Domains map[string]map[string]string `yaml:"domains"`

	StorePath string `yaml:"store_path"`
	StoreKey  string `yaml:"store_key"`

	Timeout         Duration `yaml:"timeout"`
	FlightTimeout   Duration `yaml:"flight_timeout"`
	ReloginCooldown Duration `yaml:"relogin_cooldown"`
	StrictParams    bool     `yaml:"strict_params"`

	Headers map[string]string `yaml:"headers"`

	// Code is the platform login code. It is never read from the file.
	Code string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Env: lc.EnvProduction,
		Domains: map[string]map[string]string{
			string(lc.EnvProduction): {
				"v1": "https://api.lingo.app/v1",
				"v2": "https://api.lingo.app/v2",
			},
			string(lc.EnvPreview): {
				"v1": "https://preview.api.lingo.app/v1",
				"v2": "https://preview.api.lingo.app/v2",
			},
			string(lc.EnvDevelopment): {
				"v1": "http://localhost:8080/v1",
				"v2": "http://localhost:8080/v2",
			},
		},
		Timeout:       Duration(lc.DefaultTimeout),
		FlightTimeout: Duration(lc.DefaultFlightTimeout),
	}
}

// LoadFile merges the YAML file at path into c. Domains are merged per
// environment so a file can override a single version.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if file.Env != "" {
		c.Env = file.Env
	}
	for env, versions := range file.Domains {
		if c.Domains == nil {
			c.Domains = make(map[string]map[string]string)
		}
		if c.Domains[env] == nil {
			c.Domains[env] = make(map[string]string)
		}
		for version, base := range versions {
			c.Domains[env][version] = base
		}
	}
	if file.StorePath != "" {
		c.StorePath = file.StorePath
	}
	if file.StoreKey != "" {
		c.StoreKey = file.StoreKey
	}
	if file.Timeout != 0 {
		c.Timeout = file.Timeout
	}
	if file.FlightTimeout != 0 {
		c.FlightTimeout = file.FlightTimeout
	}
	if file.ReloginCooldown != 0 {
		c.ReloginCooldown = file.ReloginCooldown
	}
	if file.StrictParams {
		c.StrictParams = true
	}
	for k, v := range file.Headers {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		c.Headers[k] = v
	}
	return nil
}

// ApplyEnv overrides c from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvEnvironment); ok && v != "" {
		c.Env = lc.Environment(v)
	}
	if v, ok := lookup(EnvStorePath); ok && v != "" {
		c.StorePath = v
	}
	if v, ok := lookup(EnvStoreKey); ok && v != "" {
		c.StoreKey = v
	}
	if v, ok := lookup(EnvCode); ok && v != "" {
		c.Code = v
	}

	durations := []struct {
		name string
		dst  *Duration
	}{
		{EnvTimeout, &c.Timeout},
		{EnvFlightTimeout, &c.FlightTimeout},
		{EnvReloginCooldown, &c.ReloginCooldown},
	}
	for _, d := range durations {
		v, ok := lookup(d.name)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = Duration(parsed)
	}

	if v, ok := lookup(EnvStrictParams); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvStrictParams, err)
		}
		c.StrictParams = b
	}
	return nil
}

// Validate checks that the active environment is known and has domains.
func (c *Config) Validate() error {
	env, err := lc.ParseEnvironment(string(c.Env))
	if err != nil {
		return err
	}
	c.Env = env
	if len(c.Domains[string(env)]) == 0 {
		return &lc.ConfigError{Reason: fmt.Sprintf("no domains configured for environment %q", env)}
	}
	if c.Timeout < 0 || c.FlightTimeout < 0 || c.ReloginCooldown < 0 {
		return &lc.ConfigError{Reason: "durations must not be negative"}
	}
	return nil
}

// DomainTable converts the configured domains.
func (c *Config) DomainTable() lc.DomainTable {
	table := make(lc.DomainTable, len(c.Domains))
	for env, versions := range c.Domains {
		m := make(map[string]string, len(versions))
		for version, base := range versions {
			m[version] = strings.TrimRight(base, "/")
		}
		table[lc.Environment(env)] = m
	}
	return table
}

// Resolver builds a resolver for the active environment.
func (c *Config) Resolver() *lc.Resolver {
	r := lc.NewResolver(c.Env, c.DomainTable())
	r.StrictParams = c.StrictParams
	return r
}

// ClientOptions returns the client options implied by c.
func (c *Config) ClientOptions() []lc.ClientOption {
	opts := []lc.ClientOption{
		lc.WithTimeout(time.Duration(c.Timeout)),
		lc.WithTokenOptions(
			lc.WithFlightTimeout(time.Duration(c.FlightTimeout)),
			lc.WithReloginCooldown(time.Duration(c.ReloginCooldown)),
		),
	}
	for k, v := range c.Headers {
		opts = append(opts, lc.WithHeader(k, v))
	}
	if c.Code != "" {
		opts = append(opts, lc.WithCodeSource(lc.StaticCode(c.Code)))
	}
	return opts
}

// Load parses args with fs and layers defaults, the config file, .env,
// the environment and the flags that were set. Remaining arguments are
// returned.
func Load(fs *flag.FlagSet, args []string) (*Config, []string, error) {
	var (
		configPath    = fs.String("config", "", "path to a YAML config file (or set "+EnvConfigFile+")")
		envFile       = fs.String("env-file", ".env", "dotenv file to load")
		env           = fs.String("env", "", "environment: production, preview or development")
		storePath     = fs.String("store", "", "credential store file")
		storeKey      = fs.String("store-key", "", "passphrase sealing the store file")
		timeout       = fs.Duration("timeout", 0, "per-request timeout")
		flightTimeout = fs.Duration("flight-timeout", 0, "refresh/login step timeout")
		cooldown      = fs.Duration("relogin-cooldown", 0, "fail fast after a failed login for this long")
		strict        = fs.Bool("strict-params", false, "fail on missing path parameters")
	)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	// A missing .env file is fine; the environment may be injected.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("failed to load %s: %w", *envFile, err)
	}

	cfg := Default()
	path := *configPath
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "env":
			cfg.Env = lc.Environment(*env)
		case "store":
			cfg.StorePath = *storePath
		case "store-key":
			cfg.StoreKey = *storeKey
		case "timeout":
			cfg.Timeout = Duration(*timeout)
		case "flight-timeout":
			cfg.FlightTimeout = Duration(*flightTimeout)
		case "relogin-cooldown":
			cfg.ReloginCooldown = Duration(*cooldown)
		case "strict-params":
			cfg.StrictParams = *strict
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}
