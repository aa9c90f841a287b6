package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"dpk/pkg/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultChunkSize    = 1024
	defaultMaxLineBytes = 1024 * 1024 // 1MB
)

type LogConfig struct {
	Format   string `yaml:"format"`   // 日志格式，支持 "console" 或 "json"
	LogDir   string `yaml:"log_dir"`  // 日志目录（可为相对路径或绝对路径），为空时输出到 stderr
	Level    string `yaml:"level"`    // 日志级别：debug / info / warn / error
	Compress bool   `yaml:"compress"` // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// BatchConfig 表示批量计算 partition key 的配置
type BatchConfig struct {
	Workers      int  `yaml:"workers"`        // 并发计算的 worker 数，<=0 时使用 CPU 核数
	ChunkSize    int  `yaml:"chunk_size"`     // 每批并发处理的事件数
	MaxLineBytes int  `yaml:"max_line_bytes"` // 单行事件最大字节数
	SkipInvalid  bool `yaml:"skip_invalid"`   // 遇到非法事件时跳过（输出空行）而不是中止
}

// DpkConfig 是主配置结构体
type DpkConfig struct {
	LogConf   LogConfig   `yaml:"logger"` // 日志配置
	BatchConf BatchConfig `yaml:"batch"`  // 批处理配置
}

// Default 返回全部使用默认值的配置
func Default() DpkConfig {
	var c DpkConfig
	c.applyDefaults()
	return c
}

// Load 读取 YAML 配置文件并补全默认值
func Load(path string) (DpkConfig, error) {
	var c DpkConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

// LoadOrDefault 配置文件不存在时使用默认配置
func LoadOrDefault(path string) (DpkConfig, error) {
	c, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return c, err
}

func MustLoad(path string) DpkConfig {
	c, err := Load(path)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *DpkConfig) applyDefaults() {
	if c.BatchConf.Workers <= 0 {
		c.BatchConf.Workers = runtime.NumCPU()
	}
	if c.BatchConf.ChunkSize <= 0 {
		c.BatchConf.ChunkSize = defaultChunkSize
	}
	if c.BatchConf.MaxLineBytes <= 0 {
		c.BatchConf.MaxLineBytes = defaultMaxLineBytes
	}
}

func (c *DpkConfig) Validate() error {
	switch c.LogConf.Format {
	case "", logger.FormatConsole, logger.FormatJSON:
	default:
		return fmt.Errorf("logger.format must be %q or %q, got %q", logger.FormatConsole, logger.FormatJSON, c.LogConf.Format)
	}
	if c.BatchConf.MaxLineBytes < 16 {
		return fmt.Errorf("batch.max_line_bytes too small: %d", c.BatchConf.MaxLineBytes)
	}
	return nil
}
