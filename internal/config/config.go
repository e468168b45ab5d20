// Package config loads and validates the py2graph YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingProjectPath = errors.New("config: project path is required")
	ErrUnsupportedBackend = errors.New("config: unsupported backend")
	ErrUnsupportedCache   = errors.New("config: unsupported cache")
)

// Backend and cache database names.
const (
	BackendKuzu   = "kuzu"
	BackendSQLite = "sqlite"
	BackendFileDB = "filedb"
	BackendMemory = "memory"

	CacheNone   = "none"
	CacheMemory = "memory"
	CacheBadger = "badger"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "config.yaml"

var validate = validator.New()

// Config is the file-level configuration of a run.
type Config struct {
	ProjectPath string        `yaml:"projectPath,omitempty"`
	Cache       CacheConfig   `yaml:"cache"`
	Backend     BackendConfig `yaml:"backend"`
}

// CacheConfig selects the vertex-ID cache.
type CacheConfig struct {
	Database string `yaml:"database" validate:"oneof=none memory badger"`
	Badger   struct {
		// Path is the cache directory. Empty keeps the cache in memory.
		Path string `yaml:"path,omitempty"`
	} `yaml:"badger"`
}

// BackendConfig selects the graph store.
type BackendConfig struct {
	Database string `yaml:"database" validate:"oneof=kuzu sqlite filedb memory"`
	Kuzu     struct {
		// Path is the database directory. Empty keeps the graph in memory.
		Path string `yaml:"path,omitempty"`
	} `yaml:"kuzu"`
	SQLite struct {
		Path string `yaml:"path,omitempty"`
	} `yaml:"sqlite"`
	FileDB struct {
		VertexFile string `yaml:"vertexFile,omitempty"`
		EdgeFile   string `yaml:"edgeFile,omitempty"`
	} `yaml:"filedb"`
}

// Default returns the configuration used when no file exists: a Kuzu
// graph and a Badger cache under .py2graph.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Cache.Database == "" {
		c.Cache.Database = CacheBadger
		if c.Cache.Badger.Path == "" {
			c.Cache.Badger.Path = filepath.Join(".py2graph", "cache")
		}
	}
	if c.Backend.Database == "" {
		c.Backend.Database = BackendKuzu
		if c.Backend.Kuzu.Path == "" {
			c.Backend.Kuzu.Path = filepath.Join(".py2graph", "graph.kuzu")
		}
	}
	if c.Backend.Database == BackendSQLite && c.Backend.SQLite.Path == "" {
		c.Backend.SQLite.Path = filepath.Join(".py2graph", "graph.db")
	}
	if c.Backend.Database == BackendFileDB {
		if c.Backend.FileDB.VertexFile == "" {
			c.Backend.FileDB.VertexFile = filepath.Join("tmp", "vertex.jsonl")
		}
		if c.Backend.FileDB.EdgeFile == "" {
			c.Backend.FileDB.EdgeFile = filepath.Join("tmp", "edge.jsonl")
		}
	}
}

// Load reads the YAML file at path. A missing file yields Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Validate reports the first configuration error. Callers must treat any
// error as fatal.
func (c *Config) Validate() error {
	if c.ProjectPath == "" {
		return ErrMissingProjectPath
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				switch fe.Namespace() {
				case "Config.Backend.Database":
					return fmt.Errorf("%w: %q", ErrUnsupportedBackend, c.Backend.Database)
				case "Config.Cache.Database":
					return fmt.Errorf("%w: %q", ErrUnsupportedCache, c.Cache.Database)
				}
			}
		}
		return fmt.Errorf("config: %w", err)
	}
	if c.Backend.Database == BackendFileDB {
		v, e := c.Backend.FileDB.VertexFile, c.Backend.FileDB.EdgeFile
		if filepath.Clean(v) == filepath.Clean(e) {
			return fmt.Errorf("config: filedb vertex and edge files must differ, both are %q", v)
		}
	}
	return nil
}
