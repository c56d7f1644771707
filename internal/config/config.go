package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Marketplaces MarketplacesConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	CORSOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  int // in minutes
	RefreshExpiry int // in days
}

// MarketplaceConfig holds the connection settings for one marketplace API.
// Credentials left empty here fall back to the persisted settings row.
type MarketplaceConfig struct {
	BaseURL           string
	ClientID          string
	APIKey            string
	RequestsPerMinute int
}

type MarketplacesConfig struct {
	Source MarketplaceConfig
	Target MarketplaceConfig
}

func Load() *Config {
	// Best effort; variables may come from the real environment instead
	_ = godotenv.Load()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("JWT_ACCESS_EXPIRY", 15)
	viper.SetDefault("JWT_REFRESH_EXPIRY", 7)
	viper.SetDefault("SOURCE_API_BASE_URL", "https://api-seller.source.example")
	viper.SetDefault("TARGET_API_BASE_URL", "https://content-api.target.example")
	viper.SetDefault("SOURCE_API_RATE_LIMIT", 60)
	viper.SetDefault("TARGET_API_RATE_LIMIT", 70)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:        viper.GetString("SERVER_PORT"),
			Env:         viper.GetString("SERVER_ENV"),
			CORSOrigins: strings.Split(viper.GetString("CORS_ALLOWED_ORIGINS"), ","),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_DATABASE"),
			Schema:   viper.GetString("DB_SCHEMA"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:        viper.GetString("JWT_SECRET"),
			AccessExpiry:  viper.GetInt("JWT_ACCESS_EXPIRY"),
			RefreshExpiry: viper.GetInt("JWT_REFRESH_EXPIRY"),
		},
		Marketplaces: MarketplacesConfig{
			Source: MarketplaceConfig{
				BaseURL:           viper.GetString("SOURCE_API_BASE_URL"),
				ClientID:          viper.GetString("SOURCE_API_CLIENT_ID"),
				APIKey:            viper.GetString("SOURCE_API_KEY"),
				RequestsPerMinute: viper.GetInt("SOURCE_API_RATE_LIMIT"),
			},
			Target: MarketplaceConfig{
				BaseURL:           viper.GetString("TARGET_API_BASE_URL"),
				APIKey:            viper.GetString("TARGET_API_KEY"),
				RequestsPerMinute: viper.GetInt("TARGET_API_RATE_LIMIT"),
			},
		},
	}
}
