package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Faultbox/meshtiler/internal/logger"
	"github.com/Faultbox/meshtiler/internal/pipeline"
	"github.com/Faultbox/meshtiler/internal/store"
)

var tileTaskID string

var tileCmd = &cobra.Command{
	Use:   "tile <input>...",
	Short: "Tile one or more models",
	Long: `Tile reads each input (.obj, .stl or an sdf: procedural shape such as
"sdf:sphere?r=10") and writes its tiles under <output>/<task>/.
Several inputs run as independent tasks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTile,
}

func init() {
	tileCmd.Flags().StringVar(&tileTaskID, "task", "", "Task ID (single input only, defaults to the input name)")
	rootCmd.AddCommand(tileCmd)
}

func runTile(cmd *cobra.Command, args []string) error {
	if tileTaskID != "" && len(args) > 1 {
		return fmt.Errorf("--task needs exactly one input")
	}
	tasks := make([]pipeline.Task, len(args))
	for i, input := range args {
		tasks[i] = pipeline.Task{ID: taskID(input), Input: input}
	}
	if tileTaskID != "" {
		tasks[0].ID = tileTaskID
	}
	for _, task := range tasks {
		if err := store.ValidateTaskID(task.ID); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o, err := newOrchestrator()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(tasks) == 1 {
		res, err := o.Run(ctx, tasks[0])
		printResult(out, res)
		return err
	}
	results, err := o.RunBatch(ctx, tasks)
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(out, "%s: failed: %v\n", r.Task.ID, r.Err)
		}
		printResult(out, r.Result)
	}
	return err
}

func newOrchestrator() (*pipeline.Orchestrator, error) {
	return pipeline.New(pipeline.Options{
		Config:   cfg,
		Progress: pipeline.LogSink{Log: logger.Log.Named("progress")},
		Logger:   logger.Log,
	})
}

// taskID derives a directory-safe task name from an input.
func taskID(input string) string {
	if shape, ok := strings.CutPrefix(input, "sdf:"); ok {
		shape, _, _ = strings.Cut(shape, "?")
		return "sdf-" + shape
	}
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func printResult(w io.Writer, res *pipeline.Result) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "%s: %d tiles in %s\n", res.TaskID, res.Tiles, res.Duration.Round(1e6))
	for _, l := range res.Levels {
		fmt.Fprintf(w, "  lod %d: %d triangles, %d leaves, %d written", l.LOD, l.Triangles, l.Leaves, l.Written)
		if l.Failed > 0 {
			fmt.Fprintf(w, ", %d failed", l.Failed)
		}
		fmt.Fprintln(w)
	}
	for _, err := range res.Errors {
		fmt.Fprintf(w, "  omitted: %v\n", err)
	}
}
