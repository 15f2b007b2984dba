package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/codegraph/internal/parser"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendKuzu   = "kuzu"
	BackendNeo4j  = "neo4j"
)

// Config holds project-level settings loaded from ckg.yml.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Ingest IngestConfig `yaml:"ingest"`
	Query  QueryConfig  `yaml:"query"`
	Log    LogConfig    `yaml:"log"`
	HTTP   HTTPConfig   `yaml:"http"`
}

// StoreConfig selects and configures the graph store.
type StoreConfig struct {
	Backend  string      `yaml:"backend" validate:"oneof=memory kuzu neo4j"`
	KuzuPath string      `yaml:"kuzuPath,omitempty"`
	Neo4j    Neo4jConfig `yaml:"neo4j,omitempty"`
}

// Neo4jConfig holds Neo4j connection settings.
type Neo4jConfig struct {
	URI      string `yaml:"uri,omitempty" validate:"omitempty,uri"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	Workers        int           `yaml:"workers" validate:"gte=0"`
	ParseTimeout   time.Duration `yaml:"parseTimeout" validate:"gte=0"`
	ExcludeDirs    []string      `yaml:"excludeDirs,omitempty"`
	Languages      []string      `yaml:"languages,omitempty" validate:"dive,language"`
	ParseCacheSize int           `yaml:"parseCacheSize" validate:"gte=0"`
}

// QueryConfig tunes the query API.
type QueryConfig struct {
	MainModules int `yaml:"mainModules" validate:"gt=0"`
	NodeCap     int `yaml:"nodeCap" validate:"gt=0"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development,omitempty"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:  BackendKuzu,
			KuzuPath: filepath.Join(".ckg", "graph"),
			Neo4j:    Neo4jConfig{Username: "neo4j", Database: "neo4j"},
		},
		Ingest: IngestConfig{
			ParseTimeout:   10 * time.Second,
			ExcludeDirs:    []string{"vendor", "node_modules"},
			ParseCacheSize: 4096,
		},
		Query: QueryConfig{MainModules: 5, NodeCap: 500},
		Log:   LogConfig{Level: "info"},
		HTTP:  HTTPConfig{Addr: ":8080"},
	}
}

// Load reads an optional .env and then ckg.yml or ckg.yaml from dir. A
// missing file yields the defaults. CKG_* environment variables override
// file values. The result is validated.
func Load(dir string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg := Defaults()
	for _, name := range []string{"ckg.yml", "ckg.yaml"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: read %s: %w", name, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", name, err)
		}
		break
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Store.Backend, "CKG_STORE_BACKEND")
	set(&c.Store.KuzuPath, "CKG_KUZU_PATH")
	set(&c.Store.Neo4j.URI, "CKG_NEO4J_URI")
	set(&c.Store.Neo4j.Username, "CKG_NEO4J_USER")
	set(&c.Store.Neo4j.Password, "CKG_NEO4J_PASSWORD")
	set(&c.Store.Neo4j.Database, "CKG_NEO4J_DATABASE")
	set(&c.Log.Level, "CKG_LOG_LEVEL")
	set(&c.HTTP.Addr, "CKG_HTTP_ADDR")
}

// applyDefaults fills zero values a partial file left behind.
func (c *Config) applyDefaults() {
	d := Defaults()
	c.Store.Backend = strings.ToLower(c.Store.Backend)
	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	if c.Store.KuzuPath == "" {
		c.Store.KuzuPath = d.Store.KuzuPath
	}
	if c.Ingest.ParseTimeout == 0 {
		c.Ingest.ParseTimeout = d.Ingest.ParseTimeout
	}
	if c.Ingest.ParseCacheSize == 0 {
		c.Ingest.ParseCacheSize = d.Ingest.ParseCacheSize
	}
	if c.Query.MainModules == 0 {
		c.Query.MainModules = d.Query.MainModules
	}
	if c.Query.NodeCap == 0 {
		c.Query.NodeCap = d.Query.NodeCap
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = d.HTTP.Addr
	}
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("language", func(fl validator.FieldLevel) bool {
		_, ok := parser.ParseLanguage(fl.Field().String())
		return ok
	})
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		s := sl.Current().Interface().(StoreConfig)
		if s.Backend == BackendNeo4j && s.Neo4j.URI == "" {
			sl.ReportError(s.Neo4j.URI, "Neo4j.URI", "uri", "required_for_neo4j", "")
		}
	}, StoreConfig{})
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// Languages returns the configured language filter as parser tags.
func (c *Config) Languages() []parser.Language {
	var out []parser.Language
	for _, l := range c.Ingest.Languages {
		if lang, ok := parser.ParseLanguage(l); ok {
			out = append(out, lang)
		}
	}
	return out
}
