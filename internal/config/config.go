package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Data   DataConfig   `yaml:"data"`
	Log    LogConfig    `yaml:"log"`
	Runner RunnerConfig `yaml:"runner"`
	Trace  TraceConfig  `yaml:"trace"`
	MCP    MCPConfig    `yaml:"mcp"`

	// Path is the YAML file the configuration was read from, if any.
	Path string `yaml:"-"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DataConfig struct {
	Dir string `yaml:"dir"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	Path  string `yaml:"path"`
}

type RunnerConfig struct {
	// Workers bounds concurrent tasks across projects. Zero means one per CPU.
	Workers int `yaml:"workers"`
}

type TraceConfig struct {
	// Exporter is "none" or "stdout".
	Exporter string `yaml:"exporter"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when neither a file nor the environment sets a value.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Data: DataConfig{
			Dir: "data",
		},
		Log: LogConfig{
			Level: "info",
		},
		Trace: TraceConfig{
			Exporter: "none",
		},
		MCP: MCPConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	return LoadFile(os.Getenv("CLUSTERBENCH_CONFIG_PATH"))
}

// LoadFile is Load with an explicit config file path. An empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
		cfg.Path = path
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that cannot be corrected silently.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data dir must not be empty")
	}
	if c.Runner.Workers < 0 {
		return fmt.Errorf("invalid workers %d", c.Runner.Workers)
	}
	switch c.Trace.Exporter {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("invalid trace exporter %q", c.Trace.Exporter)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Data.Dir = dir
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = strings.ToLower(level)
	}
	if jsonLogs := os.Getenv("JSON_LOGS"); jsonLogs != "" {
		v, err := strconv.ParseBool(jsonLogs)
		if err != nil {
			return fmt.Errorf("invalid JSON_LOGS: %w", err)
		}
		cfg.Log.JSON = v
	}
	if logPath := os.Getenv("CLUSTERBENCH_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}
	if workersStr := os.Getenv("WORKERS"); workersStr != "" {
		workers, err := strconv.Atoi(workersStr)
		if err != nil {
			return fmt.Errorf("invalid WORKERS: %w", err)
		}
		cfg.Runner.Workers = workers
	}
	if exporter := os.Getenv("TRACE_EXPORTER"); exporter != "" {
		cfg.Trace.Exporter = exporter
	}
	if enabled := os.Getenv("MCP_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid MCP_ENABLED: %w", err)
		}
		cfg.MCP.Enabled = v
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
