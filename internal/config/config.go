package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// LLMConfig points at one OpenAI-compatible or Ollama backend.
type LLMConfig struct {
	Provider    string `yaml:"provider"` // "openai" or "ollama"
	BaseURL     string `yaml:"base_url"`
	Key         string `yaml:"key"`
	KeyEnv      string `yaml:"key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// StoreConfig selects the chunk store backend.
type StoreConfig struct {
	Backend  string `yaml:"backend"` // "memory", "chromem" or "postgres"
	Path     string `yaml:"path"`    // chromem persistence directory
	DSN      string `yaml:"dsn"`     // postgres connection string
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

// RAGConfig tunes chunking and retrieval.
type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
}

type Config struct {
	EmbedLLM  LLMConfig   `yaml:"embed_llm"`
	VisionLLM LLMConfig   `yaml:"vision_llm"`
	Store     StoreConfig `yaml:"store"`
	RAG       RAGConfig   `yaml:"rag"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

func ApplyDefaults(cfg *Config) {
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 900
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 200
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 4
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "chromem"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./chromemdb"
	}
	resolveKey(&cfg.EmbedLLM)
	resolveKey(&cfg.VisionLLM)
}

// resolveKey lets the yaml file name an environment variable instead of
// embedding the credential itself.
func resolveKey(llm *LLMConfig) {
	if llm.Key == "" && llm.KeyEnv != "" {
		llm.Key = os.Getenv(llm.KeyEnv)
	}
	if llm.TimeoutSecs == 0 {
		llm.TimeoutSecs = 60
	}
}
