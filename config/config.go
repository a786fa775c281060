package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the auth server.
type Config struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	LogLevel  string `mapstructure:"log_level"`
	IssuerURL string `mapstructure:"issuer_url"`

	// LoginURL is where the authorization endpoint sends browsers that
	// arrive without a session.
	LoginURL string `mapstructure:"login_url"`

	MongoURI    string `mapstructure:"mongo_uri"`
	MongoDBName string `mapstructure:"mongo_db_name"`

	// RedisAddr enables the Redis token cache when non-empty; otherwise
	// an in-process cache is used.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// SigningKeyPath points at an RSA private key PEM. When empty the
	// server signs with HS256 using JWTSecret instead.
	SigningKeyPath string `mapstructure:"signing_key_path"`
	JWTSecret      string `mapstructure:"jwt_secret"`
	SigningKeyID   string `mapstructure:"signing_key_id"`

	AuthCodeTTL     time.Duration `mapstructure:"auth_code_ttl"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	StateTTL        time.Duration `mapstructure:"state_ttl"`

	LockoutWindow    time.Duration `mapstructure:"lockout_window"`
	LockoutThreshold int64         `mapstructure:"lockout_threshold"`

	// FederationCallbackBaseURL is this server's callback prefix for
	// external providers, e.g. "https://auth.example.com/auth/federation".
	FederationCallbackBaseURL string `mapstructure:"federation_callback_base_url"`
	// FederationClientID is the first-party client external logins are
	// attributed to.
	FederationClientID string `mapstructure:"federation_client_id"`

	GoogleClientID     string `mapstructure:"google_client_id"`
	GoogleClientSecret string `mapstructure:"google_client_secret"`
	GitHubClientID     string `mapstructure:"github_client_id"`
	GitHubClientSecret string `mapstructure:"github_client_secret"`
}

// LoadConfig loads configuration from file and environment variables.
// Environment variables use the PULSEAUTH_ prefix, e.g.
// PULSEAUTH_MONGO_URI.
func LoadConfig() (Config, error) {
	viper.SetConfigName("auth_config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/pulseplan/")

	viper.SetEnvPrefix("PULSEAUTH")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("http_addr", "0.0.0.0:8080")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("issuer_url", "http://localhost:8080")
	viper.SetDefault("login_url", "http://localhost:3000/login")
	viper.SetDefault("mongo_uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo_db_name", "pulseplan_auth")
	viper.SetDefault("signing_key_id", "primary")
	viper.SetDefault("auth_code_ttl", "10m")
	viper.SetDefault("access_token_ttl", "1h")
	viper.SetDefault("refresh_token_ttl", "720h")
	viper.SetDefault("state_ttl", "10m")
	viper.SetDefault("lockout_window", "30m")
	viper.SetDefault("lockout_threshold", 5)
	viper.SetDefault("federation_client_id", "pulseplan-web")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
		// No config file is fine; defaults and env vars cover it.
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}
