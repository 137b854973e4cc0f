// Command boswell-admin runs core-only administrative operations against a
// Boswell instance: offline reindex, backup, restore, and consistency
// verification. The instance must not be serving while reindex or restore
// runs.
//
// Exit codes: 0 success, 1 generic failure, 2 invalid configuration,
// 3 data corruption detected, 4 version incompatibility.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/boswell-ai/boswell/internal/backup"
	"github.com/boswell-ai/boswell/internal/config"
	"github.com/boswell-ai/boswell/internal/engine"
	"github.com/boswell-ai/boswell/internal/llm"
	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/internal/storage/sqlite"
	"github.com/boswell-ai/boswell/internal/vector"
)

// Exit codes per the admin contract.
const (
	exitOK           = 0
	exitFailure      = 1
	exitBadConfig    = 2
	exitCorruption   = 3
	exitIncompatible = 4
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "boswell-admin",
		Short:         "Administrative operations for a Boswell instance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (optional; env vars override)")

	root.AddCommand(reindexCmd(), backupCmd(), restoreCmd(), verifyCmd())

	if err := root.Execute(); err != nil {
		log.Printf("boswell-admin: %v", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrCorrupt):
		return exitCorruption
	case errors.Is(err, storage.ErrUnsupported):
		return exitIncompatible
	case errors.Is(err, errBadConfig):
		return exitBadConfig
	default:
		return exitFailure
	}
}

var errBadConfig = errors.New("invalid configuration")

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadConfig, err)
	}
	return cfg, nil
}

// openCore opens the SQLite-backed core for offline operations. The
// postgres engine keeps its vector projection in-database and needs no
// offline reindex.
func openCore(cfg *config.Config) (*engine.Boswell, error) {
	if cfg.Storage.Engine != "sqlite" {
		return nil, fmt.Errorf("%w: offline operations require the sqlite engine", errBadConfig)
	}

	store, err := sqlite.NewClaimStore(cfg.Storage.DatabasePath, sqlite.Options{
		MaxNamespaceDepth:  cfg.Engine.MaxNamespaceDepth,
		EmbeddingDimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		return nil, err
	}

	index, err := vector.Open(cfg.Storage.VectorIndexPath, cfg.Embedding.Dimension)
	if err != nil {
		store.Close()
		return nil, err
	}

	registry, err := llm.NewRegistryFromConfig(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return engine.New(cfg, store, index, registry, nil)
}

func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the vector sidecar from the claims table (stop-the-world)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			core, err := openCore(cfg)
			if err != nil {
				return err
			}
			defer core.Close()

			if err := core.Reindex(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("reindex complete")
			return nil
		},
	}
}

func backupCmd() *cobra.Command {
	var backupDir string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a verified point-in-time backup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := backup.NewService(cfg.Storage.DatabasePath, cfg.Storage.VectorIndexPath,
				backupDir, backup.DefaultRetention(), true)
			if err != nil {
				return err
			}
			result, err := svc.BackupNow(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("backup written: %s (%d bytes, sha256 %s)\n",
				result.DatabasePath, result.Size, result.Checksum)
			return nil
		},
	}
	cmd.Flags().StringVar(&backupDir, "dir", "./backups", "backup directory")
	return cmd
}

func restoreCmd() *cobra.Command {
	var backupDir string
	cmd := &cobra.Command{
		Use:   "restore <backup-file>",
		Short: "Restore the database from a backup (instance must be stopped)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := backup.NewService(cfg.Storage.DatabasePath, cfg.Storage.VectorIndexPath,
				backupDir, backup.DefaultRetention(), true)
			if err != nil {
				return err
			}
			if err := svc.Restore(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("restore complete; run `boswell-admin verify` before serving")
			return nil
		},
	}
	cmd.Flags().StringVar(&backupDir, "dir", "./backups", "backup directory")
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Cross-check the vector sidecar against the claims table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			core, err := openCore(cfg)
			if err != nil {
				return err
			}
			defer core.Close()

			if err := core.VerifyConsistency(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("stores are consistent")
			return nil
		},
	}
}
