// Package config loads service settings from defaults, an optional YAML file,
// a .env file and EXTRACTOR_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type DataConfig struct {
	SourceCSV string `mapstructure:"source_csv"`
}

type OutputConfig struct {
	Dir       string        `mapstructure:"dir"`
	Retention time.Duration `mapstructure:"retention"`
}

// PolicyConfig drives the validator. Interpreter parses submissions on this
// host even when they run in Docker.
type PolicyConfig struct {
	AllowedImports []string      `mapstructure:"allowed_imports"`
	DeniedCalls    []string      `mapstructure:"denied_calls"`
	Interpreter    string        `mapstructure:"interpreter"`
	CheckTimeout   time.Duration `mapstructure:"check_timeout"`
}

type DockerConfig struct {
	Image    string  `mapstructure:"image"`
	PoolSize int     `mapstructure:"pool_size"`
	CPULimit float64 `mapstructure:"cpu_limit"`
}

type ExecutorConfig struct {
	Backend        string        `mapstructure:"backend"`
	Interpreter    string        `mapstructure:"interpreter"`
	TempDir        string        `mapstructure:"temp_dir"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MemoryLimitMB  int64         `mapstructure:"memory_limit_mb"`
	CPUTime        time.Duration `mapstructure:"cpu_time"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
	Docker         DockerConfig  `mapstructure:"docker"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Data     DataConfig     `mapstructure:"data"`
	Output   OutputConfig   `mapstructure:"output"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

const (
	BackendLocal  = "local"
	BackendDocker = "docker"
)

// EnvPrefix is prepended to every environment key: server.port → EXTRACTOR_SERVER_PORT.
const EnvPrefix = "EXTRACTOR"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)

	v.SetDefault("storage.db_path", "data/extractor.db")
	v.SetDefault("data.source_csv", "data/source.csv")

	v.SetDefault("output.dir", "data/output")
	v.SetDefault("output.retention", time.Hour)

	v.SetDefault("policy.allowed_imports", []string{"pandas", "numpy"})
	v.SetDefault("policy.denied_calls", []string{"exec", "eval", "open"})
	v.SetDefault("policy.interpreter", "python3")
	v.SetDefault("policy.check_timeout", 10*time.Second)

	v.SetDefault("executor.backend", BackendLocal)
	v.SetDefault("executor.interpreter", "python3")
	v.SetDefault("executor.temp_dir", "")
	v.SetDefault("executor.timeout", 30*time.Second)
	v.SetDefault("executor.memory_limit_mb", 1024)
	v.SetDefault("executor.cpu_time", 30*time.Second)
	v.SetDefault("executor.max_output_bytes", 1024*1024)
	v.SetDefault("executor.docker.image", "python:3.12-slim")
	v.SetDefault("executor.docker.pool_size", 3)
	v.SetDefault("executor.docker.cpu_limit", 0.5)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration. path names a YAML file to read; when empty,
// extractor.yaml is looked up in the working directory and $HOME/.extractor
// and skipped if absent.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Hosting platforms hand the listen port over as plain PORT.
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("binding PORT: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("extractor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.extractor")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	switch c.Executor.Backend {
	case BackendLocal, BackendDocker:
	default:
		errs = append(errs, fmt.Errorf("executor.backend must be %q or %q, got %q", BackendLocal, BackendDocker, c.Executor.Backend))
	}
	if c.Executor.Timeout < 0 {
		errs = append(errs, errors.New("executor.timeout must not be negative"))
	}
	if c.Output.Dir == "" {
		errs = append(errs, errors.New("output.dir is required"))
	}
	if len(c.Policy.AllowedImports) == 0 {
		errs = append(errs, errors.New("policy.allowed_imports must name at least one module"))
	}
	if c.Policy.Interpreter == "" {
		errs = append(errs, errors.New("policy.interpreter is required"))
	}
	if c.Policy.CheckTimeout < 0 {
		errs = append(errs, errors.New("policy.check_timeout must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "tint":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text, json or tint, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// MemoryLimitBytes converts executor.memory_limit_mb to bytes.
func (e ExecutorConfig) MemoryLimitBytes() int64 {
	return e.MemoryLimitMB * 1024 * 1024
}
