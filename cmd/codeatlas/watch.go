package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codeatlas-dev/codeatlas/internal/config"
	"github.com/codeatlas-dev/codeatlas/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Index a repository and re-index it on file changes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	repo, err := repoFromArgs(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(repo)
	if err != nil {
		return err
	}

	// Initial index so the watcher has a registered project to poll.
	if err := indexOnce(cmd.Context(), cfg, repo); err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	w := watcher.New(s, func(ctx context.Context, projectName, rootPath string) error {
		wcfg, err := config.Load(rootPath)
		if err != nil {
			return err
		}
		return indexOnce(ctx, wcfg, rootPath)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("watching %s (ctrl-c to stop)\n", repo)
	w.Run(ctx)
	return nil
}

func indexOnce(ctx context.Context, cfg *config.Config, repo string) error {
	p, cleanup, err := buildPipeline(cfg, repo)
	if err != nil {
		return err
	}
	defer cleanup()
	_, err = p.Run(ctx)
	return err
}
