package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS,required"`
	Environment   string `env:"ENVIRONMENT,required"`
	Database      DatabaseConfig
	Migration     MigrationConfig
	ContaAzul     ContaAzulConfig
	OAuth         OAuthConfig
	Sync          SyncConfig
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST,required"`
	Port     int    `env:"DB_PORT,required"`
	User     string `env:"DB_USER,required"`
	Password string `env:"DB_PASSWORD,required"`
	Name     string `env:"DB_NAME,required"`
	Params   string `env:"DB_PARAMS,required"`
}

type MigrationConfig struct {
	Dir string `env:"MIGRATION_DIR"`
}

type ContaAzulConfig struct {
	BaseURL       string `env:"CONTAAZUL_BASE_URL"`
	LegacyBaseURL string `env:"CONTAAZUL_LEGACY_BASE_URL"`
}

// OAuthClient holds the credentials of one registered OAuth client. The
// integration keeps two, one per API generation.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

type OAuthConfig struct {
	Legacy OAuthClient
	V2     OAuthClient
}

type SyncConfig struct {
	PageSize            int           `env:"SYNC_PAGE_SIZE"`
	BatchSize           int           `env:"SYNC_BATCH_SIZE"`
	RequestDelay        time.Duration `env:"SYNC_REQUEST_DELAY_MS"`
	SubResourcePerMin   int           `env:"SYNC_SUB_RESOURCE_PER_MINUTE"`
	CategoryAttempts    int           `env:"SYNC_CATEGORY_ATTEMPTS"`
	Cron                string        `env:"SYNC_CRON"`
	NamespacePrefix     string        `env:"SYNC_NAMESPACE_PREFIX"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	viper.SetDefault("CONTAAZUL_BASE_URL", "https://api-v2.contaazul.com/v1")
	viper.SetDefault("CONTAAZUL_LEGACY_BASE_URL", "https://api.contaazul.com/v1")
	viper.SetDefault("TOKEN_URL", "https://api.contaazul.com/auth/token")
	viper.SetDefault("TOKEN_NEW_URL", "https://auth.contaazul.com/oauth2/token")
	viper.SetDefault("SYNC_PAGE_SIZE", 100)
	viper.SetDefault("SYNC_BATCH_SIZE", 100)
	viper.SetDefault("SYNC_REQUEST_DELAY_MS", 300)
	viper.SetDefault("SYNC_SUB_RESOURCE_PER_MINUTE", 50)
	viper.SetDefault("SYNC_CATEGORY_ATTEMPTS", 3)
	viper.SetDefault("SYNC_NAMESPACE_PREFIX", "wh_")

	config := &Config{
		ServerAddress: viper.GetString("SERVER_ADDRESS"),
		Environment:   viper.GetString("ENVIRONMENT"),
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Name:     viper.GetString("DB_NAME"),
			Params:   viper.GetString("DB_PARAMS"),
		},
		Migration: MigrationConfig{
			Dir: viper.GetString("MIGRATION_DIR"),
		},
		ContaAzul: ContaAzulConfig{
			BaseURL:       viper.GetString("CONTAAZUL_BASE_URL"),
			LegacyBaseURL: viper.GetString("CONTAAZUL_LEGACY_BASE_URL"),
		},
		OAuth: OAuthConfig{
			Legacy: OAuthClient{
				ClientID:     viper.GetString("CLIENT_ID"),
				ClientSecret: viper.GetString("CLIENT_SECRET"),
				TokenURL:     viper.GetString("TOKEN_URL"),
			},
			V2: OAuthClient{
				ClientID:     viper.GetString("CLIENT_NEW_ID"),
				ClientSecret: viper.GetString("CLIENT_NEW_SECRET"),
				TokenURL:     viper.GetString("TOKEN_NEW_URL"),
			},
		},
		Sync: SyncConfig{
			PageSize:          viper.GetInt("SYNC_PAGE_SIZE"),
			BatchSize:         viper.GetInt("SYNC_BATCH_SIZE"),
			RequestDelay:      time.Duration(viper.GetInt("SYNC_REQUEST_DELAY_MS")) * time.Millisecond,
			SubResourcePerMin: viper.GetInt("SYNC_SUB_RESOURCE_PER_MINUTE"),
			CategoryAttempts:  viper.GetInt("SYNC_CATEGORY_ATTEMPTS"),
			Cron:              viper.GetString("SYNC_CRON"),
			NamespacePrefix:   viper.GetString("SYNC_NAMESPACE_PREFIX"),
		},
	}

	return config, nil
}

// GetDSN returns the MySQL DSN string for the control database
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Params,
	)
}

// GetMigrationDBURL returns the database URL for migrations
func (c *Config) GetMigrationDBURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%d)/%s?%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Params,
	)
}

// Client returns the OAuth client registered for the given API generation.
func (o OAuthConfig) Client(generation string) OAuthClient {
	if generation == "legacy" {
		return o.Legacy
	}
	return o.V2
}
