package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Roles a deployment can run as. The role decides which route surface the
// server registers; everything else is shared.
const (
	RoleSponsor   = "sponsor"
	RoleCRO       = "cro"
	RoleRegulator = "regulator"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	Role        string   `mapstructure:"ROLE"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// The clinical repository every domain operation reads and writes.
	FHIRServerURL string `mapstructure:"FHIR_SERVER_URL"`
	FHIRAuthMode  string `mapstructure:"FHIR_AUTH_MODE"` // none | apikey | oauth
	FHIRAPIKey    string `mapstructure:"FHIR_API_KEY"`

	OAuthTokenURL     string `mapstructure:"OAUTH_TOKEN_URL"`
	OAuthClientID     string `mapstructure:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string `mapstructure:"OAUTH_CLIENT_SECRET"`
	OAuthScope        string `mapstructure:"OAUTH_SCOPE"`

	// Identity advertised on shared resources.
	OrganizationName string `mapstructure:"ORGANIZATION_NAME"`
	OrganizationID   string `mapstructure:"ORGANIZATION_ID"`

	RequestTimeoutSeconds int `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	BundleTimeoutSeconds  int `mapstructure:"BUNDLE_TIMEOUT_SECONDS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("ROLE", RoleSponsor)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("FHIR_SERVER_URL", "http://localhost:8080/fhir")
	v.SetDefault("FHIR_AUTH_MODE", "none")
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 10)
	v.SetDefault("BUNDLE_TIMEOUT_SECONDS", 45)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("ROLE")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("FHIR_SERVER_URL")
	v.BindEnv("FHIR_AUTH_MODE")
	v.BindEnv("FHIR_API_KEY")
	v.BindEnv("OAUTH_TOKEN_URL")
	v.BindEnv("OAUTH_CLIENT_ID")
	v.BindEnv("OAUTH_CLIENT_SECRET")
	v.BindEnv("OAUTH_SCOPE")
	v.BindEnv("ORGANIZATION_NAME")
	v.BindEnv("ORGANIZATION_ID")
	v.BindEnv("REQUEST_TIMEOUT_SECONDS")
	v.BindEnv("BUNDLE_TIMEOUT_SECONDS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run: a known role, a
// repository URL, and complete OAuth settings when that mode is selected.
func (c *Config) Validate() error {
	switch c.Role {
	case RoleSponsor, RoleCRO, RoleRegulator:
	default:
		return fmt.Errorf("ROLE must be %q, %q, or %q, got %q",
			RoleSponsor, RoleCRO, RoleRegulator, c.Role)
	}

	if c.FHIRServerURL == "" {
		return fmt.Errorf("FHIR_SERVER_URL is required")
	}

	switch c.FHIRAuthMode {
	case "none":
	case "apikey":
		if c.FHIRAPIKey == "" {
			return fmt.Errorf("FHIR_API_KEY is required when FHIR_AUTH_MODE is \"apikey\"")
		}
	case "oauth":
		if c.OAuthTokenURL == "" || c.OAuthClientID == "" || c.OAuthClientSecret == "" {
			return fmt.Errorf("OAUTH_TOKEN_URL, OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET are required when FHIR_AUTH_MODE is \"oauth\"")
		}
	default:
		return fmt.Errorf("FHIR_AUTH_MODE must be \"none\", \"apikey\", or \"oauth\", got %q", c.FHIRAuthMode)
	}

	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive")
	}
	if c.BundleTimeoutSeconds <= 0 {
		return fmt.Errorf("BUNDLE_TIMEOUT_SECONDS must be positive")
	}

	return nil
}
