package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/katakuxiko/medchat/internal/model"
)

// ErrMissingKey is returned by validation when a required credential is absent.
var ErrMissingKey = errors.New("missing required credential")

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	UploadDir    string        `yaml:"upload_dir"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// LoaderConfig controls how PDFs are discovered and parsed.
type LoaderConfig struct {
	DataDir     string `yaml:"data_dir"`
	Pattern     string `yaml:"pattern"`
	Extractor   string `yaml:"extractor"`
	SkipInvalid bool   `yaml:"skip_invalid"`
}

type ChunkerConfig struct {
	Strategy string `yaml:"strategy"`
	Size     int    `yaml:"size"`
	Overlap  int    `yaml:"overlap"`
}

// EmbedderConfig is shared by the indexer and the server so both sides
// embed with the same model.
type EmbedderConfig struct {
	Type      string        `yaml:"type"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// IndexConfig describes the vector index and how entries are written to it.
type IndexConfig struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	Name      string `yaml:"name"`
	Dimension int    `yaml:"dimension"`
	Metric    string `yaml:"metric"`
	Cloud     string `yaml:"cloud"`
	Region    string `yaml:"region"`
	Dedup     bool   `yaml:"dedup"`
	BatchSize int    `yaml:"batch_size"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// LLMConfig points at an OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Loader    LoaderConfig    `yaml:"loader"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	LLM       LLMConfig       `yaml:"llm"`
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence. A path that does not exist is
// treated as "no file".
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			UploadDir:    "data/uploads",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 2 * time.Minute,
		},
		Log:     LogConfig{Level: "info"},
		Loader:  LoaderConfig{DataDir: "data", Pattern: "*.pdf", Extractor: "rsc"},
		Chunker: ChunkerConfig{Strategy: "window", Size: 500, Overlap: 20},
		Embedder: EmbedderConfig{
			Type:      "openai",
			BaseURL:   "http://localhost:8081/v1",
			Model:     "sentence-transformers/all-MiniLM-L6-v2",
			Dimension: 384,
			BatchSize: 32,
			Timeout:   30 * time.Second,
		},
		Index: IndexConfig{
			Driver:    "postgres",
			DSN:       "host=localhost port=5432 user=postgres dbname=medchat sslmode=disable",
			Name:      "medical-chatbot",
			Dimension: 384,
			Metric:    "cosine",
			Cloud:     "aws",
			Region:    "us-east-1",
			Dedup:     true,
			BatchSize: 100,
		},
		Retrieval: RetrievalConfig{TopK: 3},
		LLM: LLMConfig{
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:       "gemini-2.5-flash",
			Temperature: 0.3,
			Timeout:     60 * time.Second,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getenv("SERVER_ADDR", cfg.Server.Addr)
	cfg.Log.Level = getenv("LOG_LEVEL", cfg.Log.Level)
	cfg.Loader.DataDir = getenv("DATA_DIR", cfg.Loader.DataDir)

	cfg.Embedder.Type = getenv("EMBEDDER_TYPE", cfg.Embedder.Type)
	cfg.Embedder.BaseURL = getenv("EMBEDDER_BASE_URL", cfg.Embedder.BaseURL)
	cfg.Embedder.APIKey = getenv("EMBEDDER_API_KEY", cfg.Embedder.APIKey)
	cfg.Embedder.Model = getenv("EMBED_MODEL", cfg.Embedder.Model)

	cfg.Index.Driver = getenv("VECTOR_DRIVER", cfg.Index.Driver)
	cfg.Index.DSN = getenv("VECTOR_DSN", cfg.Index.DSN)
	cfg.Index.Name = getenv("VECTOR_INDEX", cfg.Index.Name)
	cfg.Index.Dedup = getenvBool("INDEX_DEDUP", cfg.Index.Dedup)

	cfg.LLM.BaseURL = getenv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getenv("GEMINI_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getenv("LLM_MODEL", cfg.LLM.Model)
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Chunker.Size <= 0 {
		cfg.Chunker.Size = def.Chunker.Size
	}
	if cfg.Embedder.Dimension <= 0 {
		cfg.Embedder.Dimension = def.Embedder.Dimension
	}
	if cfg.Embedder.BatchSize <= 0 {
		cfg.Embedder.BatchSize = def.Embedder.BatchSize
	}
	if cfg.Index.Dimension <= 0 {
		cfg.Index.Dimension = cfg.Embedder.Dimension
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = def.Index.Metric
	}
	if cfg.Index.BatchSize <= 0 {
		cfg.Index.BatchSize = def.Index.BatchSize
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Loader.Pattern == "" {
		cfg.Loader.Pattern = def.Loader.Pattern
	}
}

// ValidateIndexer checks the settings needed by the offline indexing run.
func (c *Config) ValidateIndexer() error {
	if c.Index.DSN == "" {
		return fmt.Errorf("%w: VECTOR_DSN", ErrMissingKey)
	}
	if c.Index.Name == "" {
		return errors.New("index name is empty")
	}
	if c.Index.Dimension != c.Embedder.Dimension {
		return fmt.Errorf("index dimension %d does not match embedder dimension %d",
			c.Index.Dimension, c.Embedder.Dimension)
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("chunk overlap %d must be in [0, %d)", c.Chunker.Overlap, c.Chunker.Size)
	}
	return nil
}

// ValidateServer checks the settings needed to answer queries.
func (c *Config) ValidateServer() error {
	if err := c.ValidateIndexer(); err != nil {
		return err
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingKey)
	}
	if c.LLM.Model == "" {
		return errors.New("llm model is empty")
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Spec returns the vector index description held by the index section.
func (c IndexConfig) Spec() model.IndexSpec {
	return model.IndexSpec{
		Name:      c.Name,
		Dimension: c.Dimension,
		Metric:    c.Metric,
		Cloud:     c.Cloud,
		Region:    c.Region,
	}
}
