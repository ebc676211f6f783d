package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	ServerAddress     string        `env:"DINI_SERVER_ADDRESS" env-default:"http://localhost:8000"`
	PollInterval      time.Duration `env:"DINI_POLL_INTERVAL" env-default:"5s"`
	HeartbeatInterval time.Duration `env:"DINI_HEARTBEAT_INTERVAL" env-default:"60s"`
	RequestTimeout    time.Duration `env:"DINI_REQUEST_TIMEOUT" env-default:"10s"`
	InsecureTLS       bool          `env:"DINI_INSECURE_TLS" env-default:"false"`
	SessionBackend    string        `env:"DINI_SESSION_BACKEND" env-default:"bolt"`
	SessionPath       string        `env:"DINI_SESSION_PATH"`
	OpeningBalance    float64       `env:"DINI_OPENING_BALANCE" env-default:"0"`
	MiningMin         time.Duration `env:"DINI_MINING_MIN" env-default:"3s"`
	MiningMax         time.Duration `env:"DINI_MINING_MAX" env-default:"7s"`
	MiningTick        time.Duration `env:"DINI_MINING_TICK" env-default:"100ms"`
	MiningReward      float64       `env:"DINI_MINING_REWARD" env-default:"20"`
	MiningSeed        uint64        `env:"DINI_MINING_SEED" env-default:"0"`
	LogLevel          string        `env:"DINI_LOG_LEVEL" env-default:"warn"`
}

type ServerConfig struct {
	Addr             string        `env:"RUN_ADDRESS" env-default:"localhost:8000"`
	DatabaseURL      string        `env:"DATABASE_URI"`
	PrivateKey       string        `env:"PRIVATE_KEY" env-default:"privatekey"`
	AuthDisabledURLs []string      `env:"AUTH_DISABLED_URLS" env-default:"/login,/register" env-separator:","`
	SessionTTL       time.Duration `env:"SESSION_TTL" env-default:"5m"`
	SettleInterval   time.Duration `env:"SETTLE_INTERVAL" env-default:"1s"`
	SettleDelay      time.Duration `env:"SETTLE_DELAY" env-default:"1s"`
	FailureRate      float64       `env:"FAILURE_RATE" env-default:"0.25"`
	OpeningBalance   float64       `env:"OPENING_BALANCE" env-default:"0"`
	TLSCertFile      string        `env:"TLS_CERT_FILE"`
	TLSKeyFile       string        `env:"TLS_KEY_FILE"`
	LogLevel         string        `env:"LOG_LEVEL" env-default:"info"`
}

// Load reads the client configuration from the environment. Flags given
// explicitly in args take precedence. Unparsed arguments remain in fs.Args().
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("couldn't read environment variables: %w", err)
	}

	flags := *cfg
	fs.StringVar(&flags.ServerAddress, "s", cfg.ServerAddress, "wallet server address")
	fs.StringVar(&flags.SessionPath, "session", cfg.SessionPath, "session file path")
	fs.StringVar(&flags.LogLevel, "l", cfg.LogLevel, "log level")
	fs.BoolVar(&flags.InsecureTLS, "k", cfg.InsecureTLS, "skip TLS certificate verification")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("couldn't parse flags: %w", err)
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "s":
			cfg.ServerAddress = flags.ServerAddress
		case "session":
			cfg.SessionPath = flags.SessionPath
		case "l":
			cfg.LogLevel = flags.LogLevel
		case "k":
			cfg.InsecureTLS = flags.InsecureTLS
		}
	})

	if cfg.SessionPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		cfg.SessionPath = filepath.Join(dir, "dini", "session.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.ServerAddress == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("heartbeat interval must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.MiningTick <= 0 {
		errs = append(errs, errors.New("mining tick must be positive"))
	}
	if c.MiningMin <= 0 || c.MiningMin > c.MiningMax {
		errs = append(errs, fmt.Errorf("mining bounds [%s, %s] are invalid", c.MiningMin, c.MiningMax))
	}
	if c.MiningReward < 0 {
		errs = append(errs, errors.New("mining reward must not be negative"))
	}
	switch c.SessionBackend {
	case "bolt", "badger":
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.SessionBackend))
	}
	return errors.Join(errs...)
}

// LoadServer reads the reference server configuration the same way Load does.
func LoadServer(fs *flag.FlagSet, args []string) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("couldn't read environment variables: %w", err)
	}

	flags := *cfg
	fs.StringVar(&flags.Addr, "a", cfg.Addr, "HTTP server address")
	fs.StringVar(&flags.DatabaseURL, "d", cfg.DatabaseURL, "database URL")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("couldn't parse flags: %w", err)
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "a":
			cfg.Addr = flags.Addr
		case "d":
			cfg.DatabaseURL = flags.DatabaseURL
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServerConfig) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database URL is required"))
	}
	if c.PrivateKey == "" {
		errs = append(errs, errors.New("private key is required"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session TTL must be positive"))
	}
	if c.SettleInterval <= 0 {
		errs = append(errs, errors.New("settle interval must be positive"))
	}
	if c.SettleDelay < 0 {
		errs = append(errs, errors.New("settle delay must not be negative"))
	}
	if c.FailureRate < 0 || c.FailureRate > 1 {
		errs = append(errs, fmt.Errorf("failure rate %v is outside [0, 1]", c.FailureRate))
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, errors.New("TLS needs both a certificate and a key file"))
	}
	return errors.Join(errs...)
}

func (c *ServerConfig) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
