// Package config provides configuration management for Boswell.
// Settings load from an optional YAML file and environment variables with
// the BOSWELL_ prefix; the environment takes precedence over the file, and
// every option carries a sensible default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for a Boswell instance. It is immutable after
// Load: constructed once at startup and threaded to every component.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Confidence ConfidenceConfig `yaml:"confidence"`
	Engine     EngineConfig     `yaml:"engine"`
	Janitor    JanitorConfig    `yaml:"janitor"`
	Gatekeeper GatekeeperConfig `yaml:"gatekeeper"`
	LLM        LLMConfig        `yaml:"llm"`
}

// StorageConfig selects and locates the backing stores.
type StorageConfig struct {
	// Engine is "sqlite" (default) or "postgres".
	Engine string `yaml:"engine"`

	// DatabasePath is the SQLite database file.
	DatabasePath string `yaml:"database_path"`

	// PostgresDSN is the connection string for the postgres engine.
	PostgresDSN string `yaml:"postgres_dsn"`

	// VectorIndexPath is the sidecar index file (sqlite engine only).
	VectorIndexPath string `yaml:"vector_index_path"`
}

// EmbeddingConfig describes the embedding model runtime.
type EmbeddingConfig struct {
	// Model is the active embedding model name. Changing it requires the
	// offline reindex procedure.
	Model string `yaml:"embedding_model"`

	// Dimension is the instance-scoped vector dimension.
	Dimension int `yaml:"embedding_dimension"`

	// ModelsDir holds model artefacts.
	ModelsDir string `yaml:"models_dir"`
}

// ConfidenceConfig tunes the deterministic confidence formula.
type ConfidenceConfig struct {
	// Boost scales support-relationship contributions (default 0.1).
	Boost float64 `yaml:"boost"`

	// Penalty scales contradiction contributions (default 0.2).
	Penalty float64 `yaml:"penalty"`

	// DiversityMaxTypes saturates the source-diversity factor (default 3).
	DiversityMaxTypes int `yaml:"diversity_max_types"`

	// InstanceTrust scales the final interval (default 1.0, full trust).
	InstanceTrust float64 `yaml:"instance_trust"`

	// CacheTTL bounds how old a stale cache entry may be served while a
	// recomputation is in flight (default 300s).
	CacheTTL time.Duration `yaml:"confidence_cache_ttl"`

	// Staleness half-lives per tier.
	HalfLifeEphemeral time.Duration `yaml:"staleness_half_life_ephemeral"`
	HalfLifeTask      time.Duration `yaml:"staleness_half_life_task"`
	HalfLifeProject   time.Duration `yaml:"staleness_half_life_project"`
	HalfLifePermanent time.Duration `yaml:"staleness_half_life_permanent"`
}

// HalfLife returns the staleness half-life for a tier name.
func (c ConfidenceConfig) HalfLife(tier string) time.Duration {
	switch tier {
	case "ephemeral":
		return c.HalfLifeEphemeral
	case "task":
		return c.HalfLifeTask
	case "project":
		return c.HalfLifeProject
	case "permanent":
		return c.HalfLifePermanent
	default:
		return c.HalfLifeTask
	}
}

// EngineConfig tunes the write/read path.
type EngineConfig struct {
	// DuplicateThreshold is the similarity cutoff for semantic dedup
	// (default 0.95).
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`

	// MaxNamespaceDepth bounds namespace nesting (default 5).
	MaxNamespaceDepth int `yaml:"max_namespace_depth"`

	// QueueSize bounds the engine's internal work queues; full queues
	// reject with Busy.
	QueueSize int `yaml:"queue_size"`
}

// JanitorConfig tunes the background workers.
type JanitorConfig struct {
	// DemotionThreshold is the eff_lo below which inactive permanent claims
	// demote (default 0.2).
	DemotionThreshold float64 `yaml:"demotion_threshold"`

	// InactivityWindow is how long without access before demotion applies
	// (default 30 days).
	InactivityWindow time.Duration `yaml:"inactivity_window"`

	// GCRetention keeps forgotten claims recoverable before hard delete
	// (default 30 days).
	GCRetention time.Duration `yaml:"gc_retention_period"`

	// ContradictionMaxPerPass bounds LLM-assisted contradiction checks per
	// run (default 20).
	ContradictionMaxPerPass int `yaml:"contradiction_max_per_pass"`

	// BatchSize bounds rows touched per janitor pass (default 200).
	BatchSize int `yaml:"batch_size"`

	// AbandonAfter is the processing-flag abandonment threshold
	// (default 10 min).
	AbandonAfter time.Duration `yaml:"abandon_after"`

	// Per-janitor schedules.
	StalenessInterval     time.Duration `yaml:"staleness_interval"`
	DemotionInterval      time.Duration `yaml:"demotion_interval"`
	GCInterval            time.Duration `yaml:"gc_interval"`
	RecomputeInterval     time.Duration `yaml:"recompute_interval"`
	ContradictionInterval time.Duration `yaml:"contradiction_interval"`
}

// GatekeeperConfig binds tier boundaries to named reasoners.
type GatekeeperConfig struct {
	// Boundary bindings name the reasoner evaluating each crossing.
	// Empty means the default binding.
	EphemeralTaskReasoner    string `yaml:"ephemeral_task_reasoner"`
	TaskProjectReasoner      string `yaml:"task_project_reasoner"`
	ProjectPermanentReasoner string `yaml:"project_permanent_reasoner"`

	// ContextLimit bounds the existing-claims context handed to the
	// reasoner (default 20).
	ContextLimit int `yaml:"context_limit"`

	// Timeout bounds each boundary evaluation (default 15s).
	Timeout time.Duration `yaml:"timeout"`
}

// LLMConfig configures provider adapters.
type LLMConfig struct {
	// Provider is "ollama" (default), "openai", or "static".
	Provider string `yaml:"provider"`

	OllamaURL   string `yaml:"ollama_url"`
	OllamaModel string `yaml:"ollama_model"`

	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIModel   string `yaml:"openai_model"`

	// Timeout bounds each provider call (default 30s).
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerSecond rate-limits provider calls; 0 disables.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Load builds the configuration from the optional YAML file at path (empty
// path skips the file) overlaid with BOSWELL_ environment variables.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Engine.DuplicateThreshold <= 0 || c.Engine.DuplicateThreshold > 1 {
		return fmt.Errorf("config: duplicate threshold %v outside (0, 1]", c.Engine.DuplicateThreshold)
	}
	if c.Engine.MaxNamespaceDepth <= 0 {
		return fmt.Errorf("config: max namespace depth must be positive")
	}
	if c.Confidence.InstanceTrust < 0 || c.Confidence.InstanceTrust > 1 {
		return fmt.Errorf("config: instance trust %v outside [0, 1]", c.Confidence.InstanceTrust)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:          "sqlite",
			DatabasePath:    "./data/boswell.db",
			VectorIndexPath: "./data/boswell.vec",
		},
		Embedding: EmbeddingConfig{
			Model:     "nomic-embed-text",
			Dimension: 768,
			ModelsDir: "./models",
		},
		Confidence: ConfidenceConfig{
			Boost:             0.1,
			Penalty:           0.2,
			DiversityMaxTypes: 3,
			InstanceTrust:     1.0,
			CacheTTL:          300 * time.Second,
			HalfLifeEphemeral: 4 * time.Hour,
			HalfLifeTask:      3 * 24 * time.Hour,
			HalfLifeProject:   4 * 7 * 24 * time.Hour,
			HalfLifePermanent: 6 * 30 * 24 * time.Hour,
		},
		Engine: EngineConfig{
			DuplicateThreshold: 0.95,
			MaxNamespaceDepth:  5,
			QueueSize:          256,
		},
		Janitor: JanitorConfig{
			DemotionThreshold:       0.2,
			InactivityWindow:        30 * 24 * time.Hour,
			GCRetention:             30 * 24 * time.Hour,
			ContradictionMaxPerPass: 20,
			BatchSize:               200,
			AbandonAfter:            10 * time.Minute,
			StalenessInterval:       time.Hour,
			DemotionInterval:        6 * time.Hour,
			GCInterval:              24 * time.Hour,
			RecomputeInterval:       time.Minute,
			ContradictionInterval:   12 * time.Hour,
		},
		Gatekeeper: GatekeeperConfig{
			ContextLimit: 20,
			Timeout:      15 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "qwen2.5:7b",
			OpenAIModel: "gpt-4o-mini",
			Timeout:     30 * time.Second,
		},
	}
}

// applyEnv overlays BOSWELL_ environment variables on cfg.
func applyEnv(cfg *Config) {
	setString(&cfg.Storage.Engine, "BOSWELL_STORAGE_ENGINE")
	setString(&cfg.Storage.DatabasePath, "BOSWELL_DATABASE_PATH")
	setString(&cfg.Storage.PostgresDSN, "BOSWELL_POSTGRES_DSN")
	setString(&cfg.Storage.VectorIndexPath, "BOSWELL_VECTOR_INDEX_PATH")

	setString(&cfg.Embedding.Model, "BOSWELL_EMBEDDING_MODEL")
	setInt(&cfg.Embedding.Dimension, "BOSWELL_EMBEDDING_DIMENSION")
	setString(&cfg.Embedding.ModelsDir, "BOSWELL_MODELS_DIR")

	setFloat(&cfg.Confidence.Boost, "BOSWELL_BOOST")
	setFloat(&cfg.Confidence.Penalty, "BOSWELL_PENALTY")
	setInt(&cfg.Confidence.DiversityMaxTypes, "BOSWELL_DIVERSITY_MAX_TYPES")
	setFloat(&cfg.Confidence.InstanceTrust, "BOSWELL_INSTANCE_TRUST")
	setDuration(&cfg.Confidence.CacheTTL, "BOSWELL_CONFIDENCE_CACHE_TTL")
	setDuration(&cfg.Confidence.HalfLifeEphemeral, "BOSWELL_STALENESS_HALF_LIFE_EPHEMERAL")
	setDuration(&cfg.Confidence.HalfLifeTask, "BOSWELL_STALENESS_HALF_LIFE_TASK")
	setDuration(&cfg.Confidence.HalfLifeProject, "BOSWELL_STALENESS_HALF_LIFE_PROJECT")
	setDuration(&cfg.Confidence.HalfLifePermanent, "BOSWELL_STALENESS_HALF_LIFE_PERMANENT")

	setFloat(&cfg.Engine.DuplicateThreshold, "BOSWELL_DUPLICATE_THRESHOLD")
	setInt(&cfg.Engine.MaxNamespaceDepth, "BOSWELL_MAX_NAMESPACE_DEPTH")
	setInt(&cfg.Engine.QueueSize, "BOSWELL_QUEUE_SIZE")

	setFloat(&cfg.Janitor.DemotionThreshold, "BOSWELL_DEMOTION_THRESHOLD")
	setDuration(&cfg.Janitor.InactivityWindow, "BOSWELL_INACTIVITY_WINDOW")
	setDuration(&cfg.Janitor.GCRetention, "BOSWELL_GC_RETENTION_PERIOD")
	setInt(&cfg.Janitor.ContradictionMaxPerPass, "BOSWELL_CONTRADICTION_MAX_PER_PASS")
	setInt(&cfg.Janitor.BatchSize, "BOSWELL_JANITOR_BATCH_SIZE")
	setDuration(&cfg.Janitor.AbandonAfter, "BOSWELL_JANITOR_ABANDON_AFTER")
	setDuration(&cfg.Janitor.StalenessInterval, "BOSWELL_JANITOR_STALENESS_INTERVAL")
	setDuration(&cfg.Janitor.DemotionInterval, "BOSWELL_JANITOR_DEMOTION_INTERVAL")
	setDuration(&cfg.Janitor.GCInterval, "BOSWELL_JANITOR_GC_INTERVAL")
	setDuration(&cfg.Janitor.RecomputeInterval, "BOSWELL_JANITOR_RECOMPUTE_INTERVAL")
	setDuration(&cfg.Janitor.ContradictionInterval, "BOSWELL_JANITOR_CONTRADICTION_INTERVAL")

	setString(&cfg.Gatekeeper.EphemeralTaskReasoner, "BOSWELL_GATEKEEPER_EPHEMERAL_TASK_REASONER")
	setString(&cfg.Gatekeeper.TaskProjectReasoner, "BOSWELL_GATEKEEPER_TASK_PROJECT_REASONER")
	setString(&cfg.Gatekeeper.ProjectPermanentReasoner, "BOSWELL_GATEKEEPER_PROJECT_PERMANENT_REASONER")
	setInt(&cfg.Gatekeeper.ContextLimit, "BOSWELL_GATEKEEPER_CONTEXT_LIMIT")
	setDuration(&cfg.Gatekeeper.Timeout, "BOSWELL_GATEKEEPER_TIMEOUT")

	setString(&cfg.LLM.Provider, "BOSWELL_LLM_PROVIDER")
	setString(&cfg.LLM.OllamaURL, "BOSWELL_OLLAMA_URL")
	setString(&cfg.LLM.OllamaModel, "BOSWELL_OLLAMA_MODEL")
	setString(&cfg.LLM.OpenAIBaseURL, "BOSWELL_OPENAI_BASE_URL")
	setString(&cfg.LLM.OpenAIAPIKey, "BOSWELL_OPENAI_API_KEY")
	setString(&cfg.LLM.OpenAIModel, "BOSWELL_OPENAI_MODEL")
	setDuration(&cfg.LLM.Timeout, "BOSWELL_LLM_TIMEOUT")
	setFloat(&cfg.LLM.RequestsPerSecond, "BOSWELL_LLM_REQUESTS_PER_SECOND")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
