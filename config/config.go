// Package config 加载 sockd 服务端配置：默认值 <- YAML 文件 <- .env <- SOCKD_ 环境变量。
// 命令行参数由 cmd/sockd 在最后覆盖。
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/legamerdc/sockd"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 为环境变量前缀
const EnvPrefix = "SOCKD_"

// Log 为日志输出配置
type Log struct {
	Level      string `yaml:"level" env:"LEVEL"`
	Format     string `yaml:"format" env:"FORMAT"` // console | json
	File       string `yaml:"file" env:"FILE"`     // 为空时输出到 stderr
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

type Config struct {
	Address       string               `yaml:"address" env:"ADDRESS"`
	Port          int                  `yaml:"port" env:"PORT"`
	Backlog       int                  `yaml:"backlog" env:"BACKLOG"`
	Strategy      sockd.Strategy       `yaml:"strategy" env:"STRATEGY"`
	WatchCapacity int                  `yaml:"watch_capacity" env:"WATCH_CAPACITY"`
	Overflow      sockd.OverflowPolicy `yaml:"overflow" env:"OVERFLOW"`
	Handoff       sockd.HandoffMode    `yaml:"handoff" env:"HANDOFF"`
	Workers       int                  `yaml:"workers" env:"WORKERS"`
	QueueSize     int                  `yaml:"queue_size" env:"QUEUE_SIZE"`
	StrictErrors  bool                 `yaml:"strict_errors" env:"STRICT_ERRORS"`
	Handler       string               `yaml:"handler" env:"HANDLER"`
	Daemon        bool                 `yaml:"daemon" env:"DAEMON"` // 脱离终端在后台运行
	Log           Log                  `yaml:"log" envPrefix:"LOG_"`
}

// Default 返回默认配置
func Default() Config {
	d := sockd.DefaultConfig()
	return Config{
		Address:       d.Address,
		Port:          d.Port,
		Backlog:       d.Backlog,
		Strategy:      d.Strategy,
		WatchCapacity: d.WatchCapacity,
		Overflow:      d.Overflow,
		Handoff:       d.Handoff,
		Workers:       d.Workers,
		QueueSize:     d.QueueSize,
		Handler:       "echo",
		Log: Log{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load 依次应用默认值、YAML 文件（path 为空时跳过）、dotenv 文件与环境变量。
// dotenv 不覆盖已存在的环境变量；缺失的 dotenv 文件被忽略。
func Load(path string, dotenv ...string) (Config, error) {
	c := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return c, fmt.Errorf("config: %w", err)
		}
		defer f.Close()
		if err := Decode(f, &c); err != nil {
			return c, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	for _, name := range dotenv {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return c, fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if err := env.Parse(&c, env.Options{Prefix: EnvPrefix}); err != nil {
		return c, fmt.Errorf("config: env: %w", err)
	}
	return c, nil
}

// Decode 从 YAML 解码到 c，未知字段报错
func Decode(r io.Reader, c *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Encode 以 YAML 输出配置
func (c Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ServerConfig 映射为 sockd.Config（Logger 由调用方设置）
func (c Config) ServerConfig() sockd.Config {
	return sockd.Config{
		Address:       c.Address,
		Port:          c.Port,
		Backlog:       c.Backlog,
		Strategy:      c.Strategy,
		WatchCapacity: c.WatchCapacity,
		Overflow:      c.Overflow,
		Handoff:       c.Handoff,
		Workers:       c.Workers,
		QueueSize:     c.QueueSize,
		StrictErrors:  c.StrictErrors,
	}
}

// Validate 校验映射后的服务端配置
func (c Config) Validate() error {
	sc := c.ServerConfig()
	return sc.Validate()
}
