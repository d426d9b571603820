package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "resume-aggregator"
)

type Config struct {
	Server   *ServerConfig   `mapstructure:"server"`
	HH       *HHConfig       `mapstructure:"hh"`
	Avito    *AvitoConfig    `mapstructure:"avito"`
	Redis    *RedisConfig    `mapstructure:"redis"`
	Postgres *PostgresConfig `mapstructure:"postgres"`
	AI       *AIConfig       `mapstructure:"ai"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

type HHConfig struct {
	// TokenFiles are equivalent access-token slots rotated on rate limits.
	TokenFiles       []string `mapstructure:"token-files"`
	ClientID         string   `mapstructure:"client-id"`
	ClientSecretFile string   `mapstructure:"client-secret-file"`
	RefreshTokenFile string   `mapstructure:"refresh-token-file"`
	EmployerID       string   `mapstructure:"employer-id"`
}

type AvitoConfig struct {
	ClientID         string `mapstructure:"client-id"`
	ClientSecretFile string `mapstructure:"client-secret-file"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AIConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MinimumMatchScore float64       `mapstructure:"minimum-match-score"`
	Gemini            *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	Model      string `mapstructure:"model"`
	APIKeyFile string `mapstructure:"api-key-file"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "resume-aggregator searches, normalizes and caches candidate resumes from several job boards",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("redis.addr", "REDIS_ADDR"); err != nil {
		log.Fatalf("binding REDIS_ADDR environment variable: %v", err)
	}
	if err := viper.BindEnv("postgres.dsn", "POSTGRES_DSN"); err != nil {
		log.Fatalf("binding POSTGRES_DSN environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resume-aggregator.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config needed only for the serve and search commands.
	if serveCmd.CalledAs() == "" && searchCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
