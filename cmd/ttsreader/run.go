package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/tts-reader/internal/align"
	"github.com/example/tts-reader/internal/cache"
	"github.com/example/tts-reader/internal/config"
	"github.com/example/tts-reader/internal/job"
	"github.com/example/tts-reader/internal/synth"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		scriptPath string
		roles      []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one script job to completion without the HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if scriptPath == "" {
				return fmt.Errorf("--script is required")
			}
			if len(roles) == 0 {
				return fmt.Errorf("at least one --role is required")
			}

			text, err := os.ReadFile(scriptPath)
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}

			if err := cfg.EnsureDirs(); err != nil {
				return err
			}
			store, err := job.NewStore(cfg.JobsDir())
			if err != nil {
				return err
			}
			runner, err := buildRunner(&cfg, store)
			if err != nil {
				return err
			}

			id, err := store.Create(job.Request{Script: string(text), Roles: roles})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Server.RequestTimeout)*time.Second)
			defer cancel()

			runner.Run(ctx, id)

			rec, err := store.Status(id)
			if err != nil {
				return err
			}
			if rec.State != job.StateReady {
				return fmt.Errorf("job %s ended %s: %s", id, rec.State, rec.Error)
			}

			_, _ = fmt.Fprintf(os.Stdout, "job %s ready\naudio:   %s\ntimings: %s\n",
				id, store.AudioPath(id), store.TimingsPath(id))
			return nil
		},
	}

	cmd.Flags().StringVar(&scriptPath, "script", "", "Path to the script file")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role present in the script (repeatable)")

	return cmd
}

func buildRunner(cfg *config.Config, store *job.Store) (*job.Runner, error) {
	log := slog.Default()
	timeout := time.Duration(cfg.Server.RequestTimeout) * time.Second

	client, err := synth.NewGoogleClient(cfg.Synth.Endpoint, cfg.Synth.APIKey, timeout)
	if err != nil {
		return nil, fmt.Errorf("initialize synthesis client: %w", err)
	}
	coord := synth.NewCoordinator(client, cfg.Synth, log)

	whisper := align.NewWhisperClient(cfg.Align.Endpoint, timeout)
	engine := align.NewEngine(whisper, cfg.Align, log)

	idx := cache.NewIndex(cfg.CacheDir())
	return job.NewRunner(store, cfg, coord, engine, idx, log), nil
}
