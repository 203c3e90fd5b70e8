package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/meshtiler/internal/logger"
	"github.com/Faultbox/meshtiler/internal/pipeline"
	"github.com/Faultbox/meshtiler/internal/store"
	"github.com/Faultbox/meshtiler/internal/watch"
)

var watchExtra []string

var watchCmd = &cobra.Command{
	Use:   "watch <input>",
	Short: "Re-tile a model whenever it changes",
	Long: `Watch tiles the input once and again after every change to it or to the
files given with --also (material libraries, textures). Incremental updates
are always enabled, so unchanged tiles are not rewritten.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchExtra, "also", nil, "Additional files that trigger a re-tile")
	watchCmd.Flags().StringVar(&tileTaskID, "task", "", "Task ID (defaults to the input name)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	input := args[0]
	if strings.HasPrefix(input, "sdf:") {
		return fmt.Errorf("cannot watch procedural input %s", input)
	}
	task := pipeline.Task{ID: taskID(input), Input: input}
	if tileTaskID != "" {
		task.ID = tileTaskID
	}
	if err := store.ValidateTaskID(task.ID); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Slicing.EnableIncrementalUpdates = true
	o, err := newOrchestrator()
	if err != nil {
		return err
	}

	w, err := watch.New(watch.DefaultDebounce, logger.Log.Named("watch"))
	if err != nil {
		return err
	}
	changed := make(chan string, 1)
	files := append([]string{input}, watchExtra...)
	if err := w.Watch(files, func(path string) {
		select {
		case changed <- path:
		default:
		}
	}); err != nil {
		w.Close()
		return err
	}
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("watcher stopped", zap.Error(err))
		}
	}()

	out := cmd.OutOrStdout()
	for {
		res, err := o.Run(ctx, task)
		printResult(out, res)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("tiling failed", zap.String("task", task.ID), zap.Error(err))
		}
		logger.Info("waiting for changes", zap.Strings("files", files))

		select {
		case <-ctx.Done():
			return nil
		case path := <-changed:
			logger.Info("re-tiling", zap.String("changed", path))
		}
	}
}
