package llm

import (
	"fmt"

	"github.com/boswell-ai/boswell/internal/config"
	"github.com/boswell-ai/boswell/internal/storage"
)

// Registry resolves named provider bindings. Providers register by name;
// subsystems (gatekeeper boundaries, the extractor, the synthesizer) refer
// to a binding and receive ErrUnsupported when nothing is bound.
type Registry struct {
	reasoners map[string]Reasoner
	embedders map[string]Embedder

	// defaultReasoner and defaultEmbedder serve the empty binding name.
	defaultReasoner string
	defaultEmbedder string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		reasoners: make(map[string]Reasoner),
		embedders: make(map[string]Embedder),
	}
}

// RegisterReasoner adds a reasoner binding. The first registration becomes
// the default.
func (r *Registry) RegisterReasoner(name string, reasoner Reasoner) {
	r.reasoners[name] = reasoner
	if r.defaultReasoner == "" {
		r.defaultReasoner = name
	}
}

// RegisterEmbedder adds an embedder binding. The first registration becomes
// the default.
func (r *Registry) RegisterEmbedder(name string, embedder Embedder) {
	r.embedders[name] = embedder
	if r.defaultEmbedder == "" {
		r.defaultEmbedder = name
	}
}

// Reasoner resolves a binding name; empty resolves the default.
func (r *Registry) Reasoner(name string) (Reasoner, error) {
	if name == "" {
		name = r.defaultReasoner
	}
	reasoner, ok := r.reasoners[name]
	if !ok {
		return nil, fmt.Errorf("%w: no reasoner bound as %q", storage.ErrUnsupported, name)
	}
	return reasoner, nil
}

// Embedder resolves a binding name; empty resolves the default.
func (r *Registry) Embedder(name string) (Embedder, error) {
	if name == "" {
		name = r.defaultEmbedder
	}
	embedder, ok := r.embedders[name]
	if !ok {
		return nil, fmt.Errorf("%w: no embedder bound as %q", storage.ErrUnsupported, name)
	}
	return embedder, nil
}

// NewRegistryFromConfig builds the registry the configuration asks for.
// The static reasoner and hash embedder are always registered as "static"
// and "hash" so degraded operation has somewhere to land.
func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	reg := NewRegistry()
	breaker := CircuitBreakerConfig{RequestsPerSecond: cfg.LLM.RequestsPerSecond}

	switch cfg.LLM.Provider {
	case "ollama":
		client := NewOllamaClient(OllamaConfig{
			BaseURL:        cfg.LLM.OllamaURL,
			Model:          cfg.LLM.OllamaModel,
			EmbeddingModel: cfg.Embedding.Model,
			Dimension:      cfg.Embedding.Dimension,
			Timeout:        cfg.LLM.Timeout,
			Breaker:        breaker,
		})
		reg.RegisterReasoner("ollama", NewPromptReasoner("ollama", client))
		reg.RegisterEmbedder("ollama", client)
	case "openai":
		client := NewOpenAIClient(OpenAIConfig{
			BaseURL:        cfg.LLM.OpenAIBaseURL,
			APIKey:         cfg.LLM.OpenAIAPIKey,
			Model:          cfg.LLM.OpenAIModel,
			EmbeddingModel: cfg.Embedding.Model,
			Dimension:      cfg.Embedding.Dimension,
			Timeout:        cfg.LLM.Timeout,
			Breaker:        breaker,
		})
		reg.RegisterReasoner("openai", NewPromptReasoner("openai", client))
		reg.RegisterEmbedder("openai", client)
	case "static":
		// Registered below for every provider.
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", storage.ErrInvalid, cfg.LLM.Provider)
	}

	reg.RegisterReasoner("static", NewStaticReasoner())
	reg.RegisterEmbedder("hash", NewHashEmbedder(cfg.Embedding.Dimension))
	return reg, nil
}
