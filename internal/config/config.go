// Package config loads and validates the daemon's configuration file
// (§6 "tokenPath, wikiSpaceId, auth.*, sync.*"), layering environment
// overrides over the file via viper the way the rest of the pack's CLIs
// do.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/tmbmode/feishu-wiki-sync/internal/utils"
)

var (
	home, _                = os.UserHomeDir()
	DefaultConfigPath      = home + "/.feishu-wiki-sync/config.yaml"
	DefaultTokenPath       = home + "/.feishu-wiki-sync/token"
	DefaultWebSocketURL    = "wss://open.feishu.cn/callback/ws"
	DefaultPollInterval    = 300
	DefaultInitialSync     = true
	DefaultDeleteOnMissing = true
)

// Auth holds the app credentials. Both fields are read from the config
// file's auth section, and FEISHU_APP_ID/FEISHU_APP_SECRET override
// them. Nothing in this package uses them to acquire a token; Validate
// only warns when either is unset.
type Auth struct {
	ClientID     string `mapstructure:"clientId"`
	ClientSecret string `mapstructure:"clientSecret"`
}

// Sync holds the tunables §6 lists for the sync engine itself.
type Sync struct {
	FolderPath                 string `mapstructure:"folderPath"`
	PollIntervalSeconds        int    `mapstructure:"pollIntervalSeconds"`
	InitialSync                bool   `mapstructure:"initialSync"`
	DeleteRemoteOnLocalMissing bool   `mapstructure:"deleteRemoteOnLocalMissing"`
}

// Config is the fully resolved, validated configuration for one daemon
// instance.
type Config struct {
	TokenPath    string `mapstructure:"tokenPath"`
	WikiSpaceID  string `mapstructure:"wikiSpaceId"`
	WebSocketURL string `mapstructure:"webSocketUrl"`
	Auth         Auth   `mapstructure:"auth"`
	Sync         Sync   `mapstructure:"sync"`

	Path string `mapstructure:"-"`
}

// Load reads path (YAML or JSON, detected by viper) and layers
// FEISHU_APP_ID/FEISHU_APP_SECRET environment overrides onto auth.*, per
// §6. An empty path falls back to DefaultConfigPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	resolved, err := utils.ResolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %q: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(resolved)

	v.SetDefault("tokenPath", DefaultTokenPath)
	v.SetDefault("webSocketUrl", DefaultWebSocketURL)
	v.SetDefault("sync.pollIntervalSeconds", DefaultPollInterval)
	v.SetDefault("sync.initialSync", DefaultInitialSync)
	v.SetDefault("sync.deleteRemoteOnLocalMissing", DefaultDeleteOnMissing)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", resolved, err)
	}

	v.SetEnvPrefix("FEISHU")
	v.AutomaticEnv()
	_ = v.BindEnv("auth.clientId", "FEISHU_APP_ID")
	_ = v.BindEnv("auth.clientSecret", "FEISHU_APP_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", resolved, err)
	}
	cfg.Path = resolved

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes paths and rejects configurations the engine can't
// run with.
func (c *Config) Validate() error {
	if c.WikiSpaceID == "" {
		return fmt.Errorf("config: wikiSpaceId is required")
	}
	if c.Sync.FolderPath == "" {
		return fmt.Errorf("config: sync.folderPath is required")
	}

	var err error
	c.TokenPath, err = utils.ResolvePath(c.TokenPath)
	if err != nil {
		return fmt.Errorf("config: tokenPath: %w", err)
	}
	c.Sync.FolderPath, err = utils.ResolvePath(c.Sync.FolderPath)
	if err != nil {
		return fmt.Errorf("config: sync.folderPath: %w", err)
	}

	if c.Sync.PollIntervalSeconds < 0 {
		return fmt.Errorf("config: sync.pollIntervalSeconds must not be negative")
	}

	if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
		slog.Warn("auth.clientId/auth.clientSecret not set; relying on a pre-provisioned token file")
	}

	return nil
}

// ReadToken reads the bearer token from TokenPath, trimming trailing
// whitespace a hand-edited token file commonly picks up. Some tenant
// access tokens are issued as JWTs; when the token looks like one, its
// claims are parsed unverified (the wiki API itself is the verifier)
// purely to warn on an expired token before the daemon spends a cycle
// failing every request.
func (c *Config) ReadToken() (string, error) {
	data, err := os.ReadFile(c.TokenPath)
	if err != nil {
		return "", fmt.Errorf("read token file %s: %w", c.TokenPath, err)
	}
	token := strings.TrimSpace(string(data))
	warnIfExpiredJWT(token)
	return token, nil
}

func warnIfExpiredJWT(token string) {
	if strings.Count(token, ".") != 2 {
		return
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		slog.Warn("token file holds an expired JWT", "expiredAt", claims.ExpiresAt.Time)
	}
}

func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("wikiSpaceId", c.WikiSpaceID),
		slog.String("folderPath", c.Sync.FolderPath),
		slog.Int("pollIntervalSeconds", c.Sync.PollIntervalSeconds),
		slog.Bool("initialSync", c.Sync.InitialSync),
		slog.String("tokenPath", c.TokenPath),
	)
}
