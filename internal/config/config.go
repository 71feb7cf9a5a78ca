package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrNoConfigPath 表示未指定路径且无法确定 $HOME。
var ErrNoConfigPath = errors.New("config path is empty and $HOME is not set")

// Driver 是历史数据源的后端名称。
type Driver string

const (
	DriverJSONL  Driver = "jsonl"
	DriverSQLite Driver = "sqlite"
)

// Config 是配置文件的结构。
type Config struct {
	Source           string `toml:"source"`
	Driver           Driver `toml:"driver"`
	PageSize         int    `toml:"page_size"`
	ResetDelayMs     int    `toml:"reset_delay_ms"`
	ReinitDelayMs    int    `toml:"reinit_delay_ms"`
	RetryDelayMs     int    `toml:"retry_delay_ms"`
	BootstrapDelayMs int    `toml:"bootstrap_delay_ms"`
	LogPath          string `toml:"log_path"`
	LogLevel         string `toml:"log_level"`
	Path             string `toml:"-"`
}

func Default() Config {
	return Config{
		Driver:           DriverJSONL,
		PageSize:         20,
		ResetDelayMs:     1000,
		ReinitDelayMs:    100,
		RetryDelayMs:     100,
		BootstrapDelayMs: 2000,
		LogLevel:         "info",
	}
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".chatlog", "config.toml")
}

// Load 在 Default 之上读取 path（为空时用 DefaultPath），文件不存在不算错误，
// 最后应用环境变量覆盖。
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, ErrNoConfigPath
	}
	cfg.Path = path

	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	if env := strings.TrimSpace(os.Getenv("CHATLOG_SOURCE")); env != "" {
		cfg.Source = env
	}
	if env := strings.TrimSpace(os.Getenv("CHATLOG_DRIVER")); env != "" {
		cfg.Driver = Driver(env)
	}
	return cfg
}

// ApplyKVOverrides 应用 -c key=value 覆盖，未知 key 和无法解析的数字会被忽略。
func ApplyKVOverrides(cfg Config, overrides []string) Config {
	for _, raw := range overrides {
		key, val, ok := strings.Cut(raw, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch key {
		case "source":
			cfg.Source = val
		case "driver":
			cfg.Driver = Driver(val)
		case "log_path":
			cfg.LogPath = val
		case "log_level":
			cfg.LogLevel = val
		case "page_size":
			setInt(&cfg.PageSize, val)
		case "reset_delay_ms":
			setInt(&cfg.ResetDelayMs, val)
		case "reinit_delay_ms":
			setInt(&cfg.ReinitDelayMs, val)
		case "retry_delay_ms":
			setInt(&cfg.RetryDelayMs, val)
		case "bootstrap_delay_ms":
			setInt(&cfg.BootstrapDelayMs, val)
		}
	}
	return cfg
}

func setInt(dst *int, val string) {
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return
	}
	*dst = n
}

// Validate 检查数据源无法使用的配置。
func (c Config) Validate() error {
	switch c.Driver {
	case DriverJSONL, DriverSQLite:
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if strings.TrimSpace(c.Source) == "" {
		return errors.New("source is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	return nil
}

func (c Config) ResetDelay() time.Duration     { return ms(c.ResetDelayMs) }
func (c Config) ReinitDelay() time.Duration    { return ms(c.ReinitDelayMs) }
func (c Config) RetryDelay() time.Duration     { return ms(c.RetryDelayMs) }
func (c Config) BootstrapDelay() time.Duration { return ms(c.BootstrapDelayMs) }

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Save 把 cfg 写入 path（为空时用 DefaultPath）。
func Save(path string, cfg Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return ErrNoConfigPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
