package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PHOTOBOOTH"

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PaginationConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

type Config struct {
	Port          string           `mapstructure:"port"`
	UploadDir     string           `mapstructure:"upload_dir"`
	CaptureDir    string           `mapstructure:"capture_dir"`
	DBPath        string           `mapstructure:"db_path"`
	MaxUploadSize int64            `mapstructure:"max_upload_size"`
	MaxPixels     int64            `mapstructure:"max_pixels"`
	StaticPrefix  string           `mapstructure:"static_prefix"`
	CORS          CORSConfig       `mapstructure:"cors"`
	Pagination    PaginationConfig `mapstructure:"pagination"`
	Log           LogConfig        `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "3002")
	v.SetDefault("upload_dir", "./uploads")
	v.SetDefault("capture_dir", "./captures")
	v.SetDefault("db_path", "./db.sqlite")
	v.SetDefault("max_upload_size", 10*1024*1024)
	v.SetDefault("max_pixels", 40_000_000)
	v.SetDefault("static_prefix", "/captures")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("pagination.default_limit", 10)
	v.SetDefault("pagination.max_limit", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from defaults, an optional photobooth.yaml in the
// working directory or configFile when set, PHOTOBOOTH_* environment variables
// and flags, in increasing order of precedence.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("photobooth")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if flags != nil {
		var bindErr error
		// --db-path binds to db_path
		flags.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("invalid max_upload_size: %d", c.MaxUploadSize)
	}
	if c.MaxPixels <= 0 {
		return fmt.Errorf("invalid max_pixels: %d", c.MaxPixels)
	}
	if c.Pagination.DefaultLimit < 1 || c.Pagination.MaxLimit < c.Pagination.DefaultLimit {
		return fmt.Errorf("invalid pagination limits: default %d, max %d",
			c.Pagination.DefaultLimit, c.Pagination.MaxLimit)
	}
	if !strings.HasPrefix(c.StaticPrefix, "/") {
		return fmt.Errorf("static_prefix must start with /: %q", c.StaticPrefix)
	}
	return nil
}

// NewLogger builds the process logger described by the log section.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	switch c.Log.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format: %s", c.Log.Format)
	}

	return logger, nil
}
