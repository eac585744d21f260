package runtime

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kanengo/rigging/internal/env"
)

const (
	appKey      = "github.com/kanengo/rigging"
	shortAppKey = "rigging"
)

// Config 是 rigging.toml 的解析结果, 除 app section 外的各个 section 原始数据缓存在 Sections 里,
// 后续再用 ParseConfigSection 解析对应的 section 配置
type Config struct {
	Name     string
	LogLevel slog.Level
	Env      map[string]string
	Sections map[string]string
}

// ParseConfig 解析配置 获取 app section 配置
func ParseConfig(file string, input string, sectionValidator func(string, string) error) (*Config, error) {
	var sections map[string]toml.Primitive
	md, err := toml.Decode(input, &sections)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	config := &Config{Sections: make(map[string]string)}
	for k, v := range sections {
		var section map[string]any
		if err := md.PrimitiveDecode(v, &section); err != nil {
			return nil, fmt.Errorf("decoding section %q: %w", k, err)
		}
		var buf strings.Builder
		if err := toml.NewEncoder(&buf).Encode(section); err != nil {
			return nil, fmt.Errorf("encoding section %q: %w", k, err)
		}
		config.Sections[k] = buf.String()
	}

	if err := extractApp(config); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	if sectionValidator != nil {
		for k, v := range config.Sections {
			if err := sectionValidator(k, v); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}
	}

	return config, nil
}

// LoadConfig 读取并解析配置文件, 文件不存在时返回默认配置
func LoadConfig(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return &Config{LogLevel: slog.LevelInfo, Sections: map[string]string{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseConfig(file, string(data), ValidateSection)
}

// ParseConfigSection 解析某个section 配置
func ParseConfigSection(key, shortKey string, sections map[string]string, dst any) error {
	section, ok := sections[key]
	if shortKey != "" {
		if shortKeySection, ok2 := sections[shortKey]; ok2 {
			if ok {
				return fmt.Errorf("conflicting sections %q and %q", key, shortKey)
			}
			key, section, ok = shortKey, shortKeySection, ok2
		}
	}
	if !ok {
		if x, ok := dst.(interface{ Validate() error }); ok {
			return x.Validate()
		}
		return nil
	}

	md, err := toml.Decode(section, dst)
	if err != nil {
		return err
	}

	if unknown := md.Undecoded(); len(unknown) > 0 {
		return fmt.Errorf("section %q has unknown keys %v", key, unknown)
	}

	if x, ok := dst.(interface{ Validate() error }); ok {
		if err := x.Validate(); err != nil {
			return fmt.Errorf("section %q is invalid: %w", key, err)
		}
	}

	return nil
}

func extractApp(config *Config) error {
	type appConfig struct {
		Name     string
		Env      []string
		LogLevel string `toml:"log_level"`
	}

	parsed := &appConfig{}
	if err := ParseConfigSection(appKey, shortAppKey, config.Sections, parsed); err != nil {
		return err
	}

	config.Name = parsed.Name

	kvs, err := env.Parse(parsed.Env)
	if err != nil {
		return err
	}
	config.Env = kvs

	logLevel, err := parseLogLevel(parsed.LogLevel)
	if err != nil {
		return err
	}
	config.LogLevel = logLevel

	return nil
}

// ApplyEnv 将配置里的环境变量写入进程环境, 已经设置的变量不覆盖
func (c *Config) ApplyEnv() error {
	for k, v := range c.Env {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}

func parseLogLevel(logLevel string) (slog.Level, error) {
	cl := logLevel
	l := slog.LevelInfo
	logLevel = strings.ToLower(logLevel)
	switch logLevel {
	case "debug":
		l = slog.LevelDebug
	case "info", "":
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	case "fatal":
		l = slog.LevelError + 1
	default:
		return 0, fmt.Errorf("invalid log level: %q", cl)
	}

	return l, nil
}

// ClientConfig is the [client] section read by generate-client.
type ClientConfig struct {
	OutDir      string `toml:"out_dir"`
	ProgramName string `toml:"program_name"`
	Mocks       bool
}

func (c *ClientConfig) Validate() error {
	if c.OutDir == "" {
		c.OutDir = "."
	}
	return nil
}

// DevnodeConfig is the [devnode] section.
type DevnodeConfig struct {
	Addr string
	// Journal is the sqlite file executed messages are written to, none when empty.
	Journal   string
	BlockTime time.Duration `toml:"block_time"`
	GasLimit  uint64        `toml:"gas_limit"`
	MaxBlocks int           `toml:"max_blocks"`
	// Etcd endpoints the node registers its address with.
	Etcd     []string
	Register string
}

const (
	DefaultDevnodeAddr = "127.0.0.1:9944"
	DefaultBlockTime   = time.Second
	DefaultRegisterKey = "/rigging/devnode/"
)

func (c *DevnodeConfig) Validate() error {
	if c.Addr == "" {
		c.Addr = DefaultDevnodeAddr
	}
	if c.BlockTime < 0 {
		return fmt.Errorf("negative block_time %v", c.BlockTime)
	}
	if c.BlockTime == 0 {
		c.BlockTime = DefaultBlockTime
	}
	if c.MaxBlocks < 0 {
		return fmt.Errorf("negative max_blocks %d", c.MaxBlocks)
	}
	if c.Register == "" {
		c.Register = DefaultRegisterKey
	}
	if !strings.HasSuffix(c.Register, "/") {
		return fmt.Errorf("register key %q must end with /", c.Register)
	}
	return nil
}

// BenchConfig is the [bench] section.
type BenchConfig struct {
	File string
}

const DefaultBenchFile = "bench_data.json"

func (c *BenchConfig) Validate() error {
	if c.File == "" {
		c.File = DefaultBenchFile
	}
	return nil
}

// Section keys accepted in rigging.toml besides the app section.
var knownSections = map[string]func() any{
	"client":  func() any { return &ClientConfig{} },
	"devnode": func() any { return &DevnodeConfig{} },
	"bench":   func() any { return &BenchConfig{} },
}

// ValidateSection checks a known section, unknown sections are rejected.
func ValidateSection(key, section string) error {
	if key == appKey || key == shortAppKey {
		return nil
	}
	mk, ok := knownSections[key]
	if !ok {
		return fmt.Errorf("unknown section %q", key)
	}
	return ParseConfigSection(key, "", map[string]string{key: section}, mk())
}
