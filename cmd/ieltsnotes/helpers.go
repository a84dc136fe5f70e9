package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/ieltsnotes/internal/bootstrap"
	"github.com/at-ishikawa/ieltsnotes/internal/cli"
	"github.com/at-ishikawa/ieltsnotes/internal/config"
	"github.com/at-ishikawa/ieltsnotes/internal/database"
	"github.com/at-ishikawa/ieltsnotes/internal/flatstore"
	"github.com/at-ishikawa/ieltsnotes/internal/storage"
)

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	return loader.Load()
}

// session is what a command gets to work with once storage is open.
type session struct {
	cfg     *config.Config
	manager *storage.Manager
	console *cli.InteractiveCLI
	out     io.Writer
}

type storageMode int

const (
	// initStorage opens both databases and runs the migration.
	initStorage storageMode = iota
	// openStorage only opens the databases.
	openStorage
)

// runWithStorage loads the config, opens the profile storage and closes it
// again when fn returns or the command is interrupted.
func runWithStorage(cmd *cobra.Command, mode storageMode, fn func(ctx context.Context, s *session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loadConfig() > %w", err)
	}
	if err := os.MkdirAll(cfg.Profile.Directory, 0755); err != nil {
		return fmt.Errorf("os.MkdirAll(%s) > %w", cfg.Profile.Directory, err)
	}
	flat, err := flatstore.OpenFileStore(cfg.FlatStorePath(), cfg.FlatStore.QuotaBytes)
	if err != nil {
		return fmt.Errorf("flatstore.OpenFileStore() > %w", err)
	}

	out := cmd.OutOrStdout()
	console := cli.NewInteractiveCLI(cmd.InOrStdin(), out)
	manager := storage.New(flat, storage.Options{
		NotesPath: cfg.NotesDBPath(),
		AudioPath: cfg.AudioDBPath(),
		Database: database.Options{
			BusyTimeout:      time.Duration(cfg.Database.BusyTimeoutMS) * time.Millisecond,
			RecreateAttempts: cfg.Database.RecreateAttempts,
			RecreateDelay:    cfg.Database.RecreateRetryDelay,
			Blocked: func(path string, err error) {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "  [WARN]  %s is in use by another process, retrying\n", filepath.Base(path))
			},
		},
		RecentSessions: cfg.Practice.RecentSessions,
		PruneAge:       cfg.PruneAge(),
		Notifier:       cli.NewConsoleNotifier(console),
		Prompter:       cli.NewConsolePrompter(console),
		Progress:       cmd.ErrOrStderr(),
	})

	app := bootstrap.New()
	app.AddShutdownHook(func(ctx context.Context) error {
		return manager.Close()
	})
	return app.Run(cmd.Context(), func(ctx context.Context) error {
		switch mode {
		case openStorage:
			if err := manager.Open(ctx); err != nil {
				return fmt.Errorf("manager.Open() > %w", err)
			}
		default:
			if err := manager.Init(ctx); err != nil {
				return fmt.Errorf("manager.Init() > %w", err)
			}
		}
		return fn(ctx, &session{cfg: cfg, manager: manager, console: console, out: out})
	})
}

// createOutput returns w when path is empty.
func createOutput(path string, w io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return w, func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("os.MkdirAll() > %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("os.Create(%s) > %w", path, err)
	}
	return f, f.Close, nil
}
