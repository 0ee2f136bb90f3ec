package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment overrides, e.g. STREAMSPACE_SERVER_PORT
const EnvPrefix = "STREAMSPACE_"

// Storage drivers
const (
	StorageFile   = "file"
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config is the merged application configuration
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Log     LogConfig     `koanf:"log"`
	Storage StorageConfig `koanf:"storage"`
	Media   MediaConfig   `koanf:"media"`
	Engine  EngineConfig  `koanf:"engine"`
	Retry   RetryConfig   `koanf:"retry"`
}

type ServerConfig struct {
	Port        int      `koanf:"port"`
	CORSOrigins []string `koanf:"cors_origins"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // console or json
	File   string `koanf:"file"`
}

type StorageConfig struct {
	Driver    string `koanf:"driver"`
	Dir       string `koanf:"dir"`
	RedisAddr string `koanf:"redis_addr"`
}

type MediaConfig struct {
	VideoDir        string   `koanf:"video_dir"`
	AudioDir        string   `koanf:"audio_dir"`
	DescriptorDir   string   `koanf:"descriptor_dir"`
	VideoExtensions []string `koanf:"video_extensions"`
	AudioExtensions []string `koanf:"audio_extensions"`
}

type EngineConfig struct {
	// Driver selects the transfer engine: torrent or fake
	Driver            string `koanf:"driver"`
	Seed              bool   `koanf:"seed"`
	ListenPort        int    `koanf:"listen_port"`
	RequireEncryption bool   `koanf:"require_encryption"`
	DataDir           string `koanf:"data_dir"`
}

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	Wait        time.Duration `koanf:"wait"`
}

// DataRoot returns the OS-appropriate base directory for media and state.
// STREAMSPACE_HOME overrides it.
func DataRoot() string {
	if custom := os.Getenv("STREAMSPACE_HOME"); custom != "" {
		return custom
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if can't get home dir
		return filepath.Join(".", "streamspace")
	}
	return filepath.Join(homeDir, "Streamspace")
}

// DefaultConfig returns the baseline configuration
func DefaultConfig() Config {
	root := DataRoot()
	return Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173", "http://localhost:5174"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Driver:    StorageFile,
			Dir:       filepath.Join(root, "jobs"),
			RedisAddr: "localhost:6379",
		},
		Media: MediaConfig{
			VideoDir:      filepath.Join(root, "video"),
			AudioDir:      filepath.Join(root, "audio"),
			DescriptorDir: filepath.Join(root, "torrents"),
		},
		Engine: EngineConfig{
			Driver:            "torrent",
			Seed:              false,
			ListenPort:        42069,
			RequireEncryption: true,
			DataDir:           filepath.Join(root, "engine"),
		},
		Retry: RetryConfig{
			MaxAttempts: 4,
			Wait:        time.Second,
		},
	}
}

// defaultsMap flattens DefaultConfig for koanf's confmap provider
func defaultsMap() map[string]any {
	def := DefaultConfig()
	return map[string]any{
		"server.port":         def.Server.Port,
		"server.cors_origins": def.Server.CORSOrigins,

		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		"storage.driver":     def.Storage.Driver,
		"storage.dir":        def.Storage.Dir,
		"storage.redis_addr": def.Storage.RedisAddr,

		"media.video_dir":        def.Media.VideoDir,
		"media.audio_dir":        def.Media.AudioDir,
		"media.descriptor_dir":   def.Media.DescriptorDir,
		"media.video_extensions": def.Media.VideoExtensions,
		"media.audio_extensions": def.Media.AudioExtensions,

		"engine.driver":             def.Engine.Driver,
		"engine.seed":               def.Engine.Seed,
		"engine.listen_port":        def.Engine.ListenPort,
		"engine.require_encryption": def.Engine.RequireEncryption,
		"engine.data_dir":           def.Engine.DataDir,

		"retry.max_attempts": def.Retry.MaxAttempts,
		"retry.wait":         def.Retry.Wait.String(),
	}
}

// BindFlags defines the command-line overrides. Flag names are config keys.
func BindFlags(flags *pflag.FlagSet) {
	def := DefaultConfig()
	flags.Int("server.port", def.Server.Port, "HTTP listen port")
	flags.String("log.level", def.Log.Level, "Log level (debug, info, warn, error)")
	flags.String("log.format", def.Log.Format, "Log format (console, json)")
	flags.String("storage.driver", def.Storage.Driver, "Job store driver (file, memory, redis)")
	flags.String("engine.driver", def.Engine.Driver, "Transfer engine (torrent, fake)")
}

// Load merges configuration sources. Precedence, highest first:
//  1. Command-line flags that were set explicitly
//  2. Environment variables (STREAMSPACE_SERVER_PORT -> server.port)
//  3. Config file (YAML), when path is not empty
//  4. Default values
func Load(flags *pflag.FlagSet, path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("error loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("error loading environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("error loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps STREAMSPACE_STORAGE_REDIS_ADDR to storage.redis_addr: the first
// underscore separates the section, the rest belong to the key.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}

// Validate rejects settings the server cannot start with
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageFile, StorageMemory, StorageRedis:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Engine.Driver {
	case "torrent", "fake":
	default:
		return fmt.Errorf("unknown engine driver %q", c.Engine.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	return nil
}
