// Command boswelld runs a Boswell instance: the claim engine plus the
// janitor suite, serving until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/boswell-ai/boswell/internal/config"
	"github.com/boswell-ai/boswell/internal/engine"
	"github.com/boswell-ai/boswell/internal/janitor"
	"github.com/boswell-ai/boswell/internal/llm"
	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/internal/storage/postgres"
	"github.com/boswell-ai/boswell/internal/storage/sqlite"
	"github.com/boswell-ai/boswell/internal/vector"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional; env vars override)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("boswelld: %v", err)
	}

	core, err := buildEngine(cfg)
	if err != nil {
		log.Fatalf("boswelld: %v", err)
	}
	defer core.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A corrupt sidecar at startup forces the offline rebuild before the
	// instance serves.
	if err := core.VerifyConsistency(ctx); err != nil {
		if errors.Is(err, storage.ErrCorrupt) {
			log.Printf("boswelld: vector index inconsistent, rebuilding: %v", err)
			if err := core.Reindex(ctx); err != nil {
				log.Fatalf("boswelld: rebuild failed: %v", err)
			}
		} else {
			log.Fatalf("boswelld: consistency check failed: %v", err)
		}
	}

	metrics := janitor.NewMetrics(nil)
	scheduler := janitor.NewScheduler(metrics)
	scheduler.Add(janitor.NewStalenessJanitor(core.Store(), core.Confidence(), *cfg, nil), cfg.Janitor.StalenessInterval)
	scheduler.Add(janitor.NewTierMigrationJanitor(core.Store(), core.Index(), core.Confidence(), *cfg, nil), cfg.Janitor.DemotionInterval)
	scheduler.Add(janitor.NewGCJanitor(core.Store(), core.Index(), core.Confidence(), *cfg, nil), cfg.Janitor.GCInterval)
	scheduler.Add(janitor.NewRecomputeJanitor(core.Store(), core.Confidence(), *cfg, nil), cfg.Janitor.RecomputeInterval)
	scheduler.Add(janitor.NewContradictionJanitor(core.Store(), core.Confidence(), core.Registry(), *cfg, nil), cfg.Janitor.ContradictionInterval)

	log.Printf("boswelld: serving (engine=%s, dimension=%d)", cfg.Storage.Engine, cfg.Embedding.Dimension)
	if err := scheduler.Run(ctx); err != nil {
		log.Printf("boswelld: scheduler: %v", err)
	}
	log.Printf("boswelld: shutdown complete")
}

// buildEngine wires the configured storage engine, vector projection, and
// provider registry into the core.
func buildEngine(cfg *config.Config) (*engine.Boswell, error) {
	registry, err := llm.NewRegistryFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	var (
		store storage.ClaimStore
		index storage.VectorIndex
	)
	switch cfg.Storage.Engine {
	case "postgres":
		pg, err := postgres.NewClaimStore(cfg.Storage.PostgresDSN, postgres.Options{
			MaxNamespaceDepth:  cfg.Engine.MaxNamespaceDepth,
			EmbeddingDimension: cfg.Embedding.Dimension,
		})
		if err != nil {
			return nil, err
		}
		store = pg
		index = postgres.NewVectorIndex(pg)
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0o755); err != nil {
			return nil, err
		}
		sq, err := sqlite.NewClaimStore(cfg.Storage.DatabasePath, sqlite.Options{
			MaxNamespaceDepth:  cfg.Engine.MaxNamespaceDepth,
			EmbeddingDimension: cfg.Embedding.Dimension,
		})
		if err != nil {
			return nil, err
		}
		idx, err := vector.Open(cfg.Storage.VectorIndexPath, cfg.Embedding.Dimension)
		if err != nil {
			// A damaged sidecar is recoverable: drop it and let the
			// consistency check force a rebuild.
			log.Printf("boswelld: %v; discarding sidecar", err)
			if rmErr := os.Remove(cfg.Storage.VectorIndexPath); rmErr != nil && !os.IsNotExist(rmErr) {
				sq.Close()
				return nil, rmErr
			}
			idx, err = vector.Open(cfg.Storage.VectorIndexPath, cfg.Embedding.Dimension)
			if err != nil {
				sq.Close()
				return nil, err
			}
		}
		store = sq
		index = idx
	}

	return engine.New(cfg, store, index, registry, nil)
}
