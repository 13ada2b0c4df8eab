package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cast"

	"github.com/GPTx-global/gora/oracle/log"
	"github.com/GPTx-global/gora/oracle/retry"
	"github.com/GPTx-global/gora/x/gora/types"
)

const (
	FileName    = "config.toml"
	EnvFileName = ".env"
	EnvPrefix   = "GORA"
)

// Environment overrides, applied after the config file.
const (
	EnvMainAppID          = "GORA_MAIN_APP_ID"
	EnvTokenAssetID       = "GORA_TOKEN_ASSET_ID"
	EnvTokenDepositAmount = "GORA_TOKEN_DEPOSIT_AMOUNT"
	EnvAlgoDepositAmount  = "GORA_ALGO_DEPOSIT_AMOUNT"
	EnvHashAlgorithm      = "GORA_HASH_ALGORITHM"
	EnvAppID              = "GORA_APP_ID"
	EnvDestAppID          = "GORA_DEST_APP_ID"
	EnvListenAddr         = "GORA_LISTEN_ADDR"
)

// Config is resolved once by Load and passed around by pointer; nothing
// writes to it afterwards.
type Config struct {
	Home string `toml:"-"`

	Dispatcher dispatcherConfig `toml:"dispatcher"`
	Client     clientConfig     `toml:"client"`
	Submit     submitConfig     `toml:"submit"`
	Preview    previewConfig    `toml:"preview"`
	Daemon     daemonConfig     `toml:"daemon"`
}

type dispatcherConfig struct {
	MainAppID          uint64 `toml:"main_app_id"`
	HashAlgorithm      string `toml:"hash_algorithm"`
	TokenAssetID       uint64 `toml:"token_asset_id"`
	TokenDepositAmount uint64 `toml:"token_deposit_amount"`
	AlgoDepositAmount  uint64 `toml:"algo_deposit_amount"`
}

type clientConfig struct {
	AppID                uint64 `toml:"app_id"`
	DestAppID            uint64 `toml:"dest_app_id"`
	StoreFailedResponses bool   `toml:"store_failed_responses"`
}

type submitConfig struct {
	RetryAttempts  int    `toml:"retry_attempts"`
	RetryBaseDelay string `toml:"retry_base_delay"`
	RetryMaxDelay  string `toml:"retry_max_delay"`
	AttachBoxRef   bool   `toml:"attach_box_ref"`
}

type previewConfig struct {
	Workers   int    `toml:"workers"`
	Timeout   string `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
}

type daemonConfig struct {
	ListenAddr  string   `toml:"listen_addr"`
	CORSOrigins []string `toml:"cors_origins"`
	DBBackend   string   `toml:"db_backend"`
}

// Default returns the configuration written to a fresh home directory.
func Default(home string) *Config {
	return &Config{
		Home: home,
		Dispatcher: dispatcherConfig{
			HashAlgorithm:      string(types.DefaultHashAlgorithm),
			TokenDepositAmount: types.DefaultTokenDepositAmount,
			AlgoDepositAmount:  types.DefaultAlgoDepositAmount,
		},
		Client: clientConfig{
			StoreFailedResponses: true,
		},
		Submit: submitConfig{
			RetryAttempts:  1,
			RetryBaseDelay: "500ms",
			RetryMaxDelay:  "10s",
			AttachBoxRef:   true,
		},
		Preview: previewConfig{
			Workers:   4,
			Timeout:   "10s",
			UserAgent: "gorad",
		},
		Daemon: daemonConfig{
			ListenAddr:  "127.0.0.1:8417",
			CORSOrigins: []string{"*"},
			DBBackend:   "goleveldb",
		},
	}
}

// DefaultHome is ~/.gorad.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gorad"
	}
	return filepath.Join(home, ".gorad")
}

// Load reads <home>/config.toml, writing the default file first when there
// is none, then applies <home>/.env and the process environment, which wins.
func Load(home string) (*Config, error) {
	path := filepath.Join(home, FileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteDefault(home); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		log.Infof("Created default config at %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default(home)
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	cfg.Home = home

	envFile, err := readEnvFile(filepath.Join(home, EnvFileName))
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(envFile); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log.Infof("Loaded config from %s", path)
	return cfg, nil
}

// WriteDefault writes the default config file into home.
func WriteDefault(home string) error {
	if err := os.MkdirAll(home, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", home, err)
	}

	data, err := toml.Marshal(Default(home))
	if err != nil {
		return fmt.Errorf("failed to marshal TOML: %w", err)
	}

	return os.WriteFile(filepath.Join(home, FileName), data, 0644)
}

func readEnvFile(path string) (map[string]string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return env, nil
}

func (c *Config) applyEnv(envFile map[string]string) error {
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := envFile[key]
		return v, ok
	}

	uints := []struct {
		key string
		dst *uint64
	}{
		{EnvMainAppID, &c.Dispatcher.MainAppID},
		{EnvTokenAssetID, &c.Dispatcher.TokenAssetID},
		{EnvTokenDepositAmount, &c.Dispatcher.TokenDepositAmount},
		{EnvAlgoDepositAmount, &c.Dispatcher.AlgoDepositAmount},
		{EnvAppID, &c.Client.AppID},
		{EnvDestAppID, &c.Client.DestAppID},
	}
	for _, u := range uints {
		v, ok := lookup(u.key)
		if !ok || v == "" {
			continue
		}
		n, err := cast.ToUint64E(v)
		if err != nil {
			return fmt.Errorf("%s: %w", u.key, err)
		}
		*u.dst = n
	}

	if v, ok := lookup(EnvHashAlgorithm); ok && v != "" {
		c.Dispatcher.HashAlgorithm = v
	}
	if v, ok := lookup(EnvListenAddr); ok && v != "" {
		c.Daemon.ListenAddr = v
	}

	return nil
}

func (c *Config) Validate() error {
	if err := types.HashAlgorithm(c.Dispatcher.HashAlgorithm).Validate(); err != nil {
		return err
	}
	if c.Dispatcher.TokenDepositAmount == 0 {
		return fmt.Errorf("token deposit amount is required")
	}
	if c.Dispatcher.AlgoDepositAmount == 0 {
		return fmt.Errorf("algo deposit amount is required")
	}
	if _, err := c.RetryConfig(); err != nil {
		return err
	}
	if c.Preview.Workers < 1 {
		return fmt.Errorf("preview workers must be at least 1")
	}
	if _, err := cast.ToDurationE(c.Preview.Timeout); err != nil {
		return fmt.Errorf("preview timeout: %w", err)
	}
	switch c.Daemon.DBBackend {
	case "goleveldb", "memdb":
	default:
		return fmt.Errorf("unsupported db backend %q", c.Daemon.DBBackend)
	}
	return nil
}

// Params returns the pinned protocol parameters. The dispatcher identity is
// derived from the main app id.
func (c *Config) Params() (types.Params, error) {
	p := types.NewParams(c.Dispatcher.MainAppID, types.HashAlgorithm(c.Dispatcher.HashAlgorithm))
	p.TokenAssetID = c.Dispatcher.TokenAssetID
	p.TokenDepositAmount = c.Dispatcher.TokenDepositAmount
	p.AlgoDepositAmount = c.Dispatcher.AlgoDepositAmount
	p.StoreFailedResponses = c.Client.StoreFailedResponses
	if err := p.Validate(); err != nil {
		return types.Params{}, err
	}
	return p, nil
}

func (c *Config) RetryConfig() (retry.Config, error) {
	base, err := cast.ToDurationE(c.Submit.RetryBaseDelay)
	if err != nil {
		return retry.Config{}, fmt.Errorf("retry base delay: %w", err)
	}
	maxDelay, err := cast.ToDurationE(c.Submit.RetryMaxDelay)
	if err != nil {
		return retry.Config{}, fmt.Errorf("retry max delay: %w", err)
	}
	cfg := retry.Config{
		MaxAttempts: c.Submit.RetryAttempts,
		BaseDelay:   base,
		MaxDelay:    maxDelay,
		Multiplier:  2.0,
	}
	return cfg, cfg.Validate()
}

func (c *Config) PreviewTimeout() time.Duration {
	d, _ := cast.ToDurationE(c.Preview.Timeout)
	return d
}

func (c *Config) DBDir() string {
	return filepath.Join(c.Home, "data")
}

// Print logs the resolved configuration.
func (c *Config) Print() {
	log.Infof("%-22s: %s", "Home", c.Home)
	log.Infof("%-22s: %d", "Main App ID", c.Dispatcher.MainAppID)
	if c.Dispatcher.MainAppID != 0 {
		log.Infof("%-22s: %s", "Dispatcher Identity", types.ApplicationAddress(c.Dispatcher.MainAppID))
	}
	log.Infof("%-22s: %s", "Hash Algorithm", c.Dispatcher.HashAlgorithm)
	log.Infof("%-22s: %d", "Token Asset ID", c.Dispatcher.TokenAssetID)
	log.Infof("%-22s: %d", "Token Deposit Amount", c.Dispatcher.TokenDepositAmount)
	log.Infof("%-22s: %d", "Algo Deposit Amount", c.Dispatcher.AlgoDepositAmount)
	log.Infof("%-22s: %d", "App ID", c.Client.AppID)
	log.Infof("%-22s: %d", "Dest App ID", c.Client.DestAppID)
	log.Infof("%-22s: %s", "Listen Addr", c.Daemon.ListenAddr)
}
