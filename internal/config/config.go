package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "LINKDECK"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultPublicURL       = "http://localhost:8080"
	defaultDatabasePath    = "linkdeck.db"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultCookieName      = "linkdeck_session"
	defaultSessionTTLMins  = 24 * 60
	minSigningSecretLength = 16
)

// OAuthProviders lists the provider keys read from the oauth.* configuration tree.
var OAuthProviders = []string{"github", "twitter", "facebook"}

// OAuthClientConfig holds the client registration for one OAuth provider.
type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
}

// Enabled reports whether both halves of the client registration are present.
func (c OAuthClientConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// AppConfig captures runtime configuration for the web server.
type AppConfig struct {
	HTTPAddress    string
	PublicURL      string
	AllowedOrigins []string
	DatabasePath   string
	LogLevel       string
	LogFormat      string
	SigningSecret  string
	CookieName     string
	SessionTTL     time.Duration
	SecureCookie   bool
	OAuthClients   map[string]OAuthClientConfig
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.public_url", defaultPublicURL)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTLMins)
	configViper.SetDefault("session.secure_cookie", false)
	for _, provider := range OAuthProviders {
		// Defaults make the nested keys visible to AutomaticEnv lookups.
		configViper.SetDefault("oauth."+provider+".client_id", "")
		configViper.SetDefault("oauth."+provider+".client_secret", "")
	}
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    strings.TrimSpace(configViper.GetString("http.address")),
		PublicURL:      strings.TrimRight(strings.TrimSpace(configViper.GetString("http.public_url")), "/"),
		AllowedOrigins: configViper.GetStringSlice("http.allowed_origins"),
		DatabasePath:   strings.TrimSpace(configViper.GetString("database.path")),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      configViper.GetString("log.format"),
		SigningSecret:  configViper.GetString("session.signing_secret"),
		CookieName:     strings.TrimSpace(configViper.GetString("session.cookie_name")),
		SessionTTL:     time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		SecureCookie:   configViper.GetBool("session.secure_cookie"),
		OAuthClients:   make(map[string]OAuthClientConfig, len(OAuthProviders)),
	}
	for _, provider := range OAuthProviders {
		cfg.OAuthClients[provider] = OAuthClientConfig{
			ClientID:     strings.TrimSpace(configViper.GetString("oauth." + provider + ".client_id")),
			ClientSecret: strings.TrimSpace(configViper.GetString("oauth." + provider + ".client_secret")),
		}
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// StorageConfig is the subset of configuration needed by maintenance commands.
type StorageConfig struct {
	DatabasePath string
	LogLevel     string
	LogFormat    string
}

// LoadStorage parses the database and logging settings without requiring session secrets.
func LoadStorage(configViper *viper.Viper) (StorageConfig, error) {
	cfg := StorageConfig{
		DatabasePath: strings.TrimSpace(configViper.GetString("database.path")),
		LogLevel:     configViper.GetString("log.level"),
		LogFormat:    configViper.GetString("log.format"),
	}
	if cfg.DatabasePath == "" {
		return StorageConfig{}, fmt.Errorf("database.path is required")
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if len(strings.TrimSpace(c.SigningSecret)) < minSigningSecretLength {
		return fmt.Errorf("session.signing_secret must be at least %d characters", minSigningSecretLength)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.CookieName == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	parsed, err := url.Parse(c.PublicURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("http.public_url must be an absolute URL")
	}
	for provider, client := range c.OAuthClients {
		if (client.ClientID == "") != (client.ClientSecret == "") {
			return fmt.Errorf("oauth.%s requires both client_id and client_secret", provider)
		}
	}
	return nil
}
