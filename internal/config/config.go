// Package config loads dekvault settings from defaults, an optional YAML
// file and DEKVAULT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/illarion/dekvault/internal/crypto"
	"github.com/illarion/dekvault/internal/remote"
	"github.com/illarion/dekvault/internal/storage"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name used for config files and directories
	AppName = "dekvault"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "DEKVAULT"
)

// Local key store backends
const (
	LocalStoreBolt    = "bolt"
	LocalStoreKeyring = "keyring"
)

// Log formats
const (
	LogFormatHuman = "human"
	LogFormatJSON  = "json"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the dekvault configuration
type Config struct {
	DataDir    string `mapstructure:"data_dir"`
	Identity   string `mapstructure:"identity"`
	LocalStore string `mapstructure:"local_store"` // bolt or keyring

	Remote struct {
		Backend string `mapstructure:"backend"` // file, mongo, s3, memory

		File struct {
			Dir string `mapstructure:"dir"`
		} `mapstructure:"file"`

		Mongo struct {
			URI        string `mapstructure:"uri"`
			Database   string `mapstructure:"database"`
			Collection string `mapstructure:"collection"`
		} `mapstructure:"mongo"`

		S3 struct {
			Bucket   string `mapstructure:"bucket"`
			Prefix   string `mapstructure:"prefix"`
			Region   string `mapstructure:"region"`
			Endpoint string `mapstructure:"endpoint"` // For S3-compatible storage
		} `mapstructure:"s3"`
	} `mapstructure:"remote"`

	// Cost of new wraps. Existing bundles carry their own parameters.
	KDF struct {
		Algorithm  string `mapstructure:"algorithm"`
		Iterations uint32 `mapstructure:"iterations"` // pbkdf2-sha256
		Time       uint32 `mapstructure:"time"`       // argon2id
		MemoryKiB  uint32 `mapstructure:"memory_kib"` // argon2id
		Threads    uint8  `mapstructure:"threads"`    // argon2id
	} `mapstructure:"kdf"`
	Cipher string `mapstructure:"cipher"`

	Log struct {
		Format string `mapstructure:"format"`
		Debug  bool   `mapstructure:"debug"`
		File   string `mapstructure:"file"`
	} `mapstructure:"log"`

	MetricsAddr      string `mapstructure:"metrics_addr"`
	RejectConcurrent bool   `mapstructure:"reject_concurrent"`

	// File is the config file that was read, empty if none
	File string `mapstructure:"-"`
}

// Load reads the configuration. An empty cfgFile searches the default
// locations; a missing file there is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		addSearchPaths(v)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		cfg.File = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.Remote.File.Dir == "" {
		cfg.Remote.File.Dir = filepath.Join(cfg.DataDir, "remote")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	dataDir := ".dekvault"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".dekvault")
	}
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("identity", defaultIdentity())
	v.SetDefault("local_store", LocalStoreBolt)

	// Remote defaults. remote.file.dir follows data_dir when unset.
	v.SetDefault("remote.backend", remote.BackendFile)
	v.SetDefault("remote.file.dir", "")
	v.SetDefault("remote.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("remote.mongo.database", "dekvault")
	v.SetDefault("remote.mongo.collection", "key_bundles")
	v.SetDefault("remote.s3.bucket", "")
	v.SetDefault("remote.s3.prefix", "dekvault/")
	v.SetDefault("remote.s3.region", "us-east-1")
	v.SetDefault("remote.s3.endpoint", "")

	// Crypto defaults
	v.SetDefault("kdf.algorithm", crypto.KDFArgon2id)
	v.SetDefault("kdf.iterations", crypto.DefaultIters)
	v.SetDefault("kdf.time", crypto.DefaultArgonTime)
	v.SetDefault("kdf.memory_kib", crypto.DefaultArgonMemory)
	v.SetDefault("kdf.threads", crypto.DefaultArgonThreads)
	v.SetDefault("cipher", crypto.CipherAESGCM)

	// Logging defaults
	v.SetDefault("log.format", LogFormatHuman)
	v.SetDefault("log.debug", false)
	v.SetDefault("log.file", "")

	v.SetDefault("metrics_addr", "")
	v.SetDefault("reject_concurrent", false)
}

// addSearchPaths adds config search paths
func addSearchPaths(v *viper.Viper) {
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, AppName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, "."+AppName))
	}
	v.AddConfigPath(".")
}

func defaultIdentity() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

// Validate checks enumerated settings and crypto parameters
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is empty", ErrInvalidConfig)
	}

	switch c.LocalStore {
	case LocalStoreBolt, LocalStoreKeyring:
	default:
		return fmt.Errorf("%w: unknown local_store %q", ErrInvalidConfig, c.LocalStore)
	}

	switch c.Remote.Backend {
	case remote.BackendFile, remote.BackendMemory:
	case remote.BackendMongo:
		if c.Remote.Mongo.URI == "" {
			return fmt.Errorf("%w: remote.mongo.uri is required", ErrInvalidConfig)
		}
	case remote.BackendS3:
		if c.Remote.S3.Bucket == "" {
			return fmt.Errorf("%w: remote.s3.bucket is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown remote.backend %q", ErrInvalidConfig, c.Remote.Backend)
	}

	switch c.Log.Format {
	case LogFormatHuman, LogFormatJSON:
	default:
		return fmt.Errorf("%w: unknown log.format %q", ErrInvalidConfig, c.Log.Format)
	}

	if _, err := c.WrapOptions(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// WrapOptions returns the algorithms and cost for new wraps
func (c *Config) WrapOptions() (crypto.WrapOptions, error) {
	var params crypto.KDFParams
	switch c.KDF.Algorithm {
	case crypto.KDFPBKDF2:
		params = crypto.PBKDF2Params(c.KDF.Iterations)
	case crypto.KDFArgon2id:
		params = crypto.KDFParams{
			Algorithm:   crypto.KDFArgon2id,
			Iterations:  c.KDF.Time,
			Memory:      c.KDF.MemoryKiB,
			Parallelism: c.KDF.Threads,
		}
	default:
		return crypto.WrapOptions{}, fmt.Errorf("unknown kdf.algorithm %q", c.KDF.Algorithm)
	}
	if err := params.Validate(); err != nil {
		return crypto.WrapOptions{}, err
	}
	if _, err := crypto.NonceSize(c.Cipher); err != nil {
		return crypto.WrapOptions{}, err
	}
	return crypto.WrapOptions{KDF: params, Cipher: c.Cipher}, nil
}

// RemoteConfig returns the remote store settings
func (c *Config) RemoteConfig() remote.Config {
	return remote.Config{
		Backend:         c.Remote.Backend,
		Dir:             c.Remote.File.Dir,
		MongoURI:        c.Remote.Mongo.URI,
		MongoDatabase:   c.Remote.Mongo.Database,
		MongoCollection: c.Remote.Mongo.Collection,
		S3Bucket:        c.Remote.S3.Bucket,
		S3Prefix:        c.Remote.S3.Prefix,
		S3Region:        c.Remote.S3.Region,
		S3Endpoint:      c.Remote.S3.Endpoint,
	}
}

// DBPath returns the local database path
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, storage.DBFile)
}
