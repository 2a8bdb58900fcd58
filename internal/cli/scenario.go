package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/storeclone/internal/harness"
	"github.com/roach88/storeclone/internal/logging"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Filter    string // glob on scenario file names
	GoldenDir string // compare snapshots with <dir>/<name>.golden
	Update    bool   // rewrite golden files instead of comparing
	Snapshot  bool   // print every snapshot
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`

	snapshot []byte
}

// ScenarioSummary is the outcome of a scenario command.
type ScenarioSummary struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`

	showSnapshots bool
}

func (s ScenarioSummary) renderText(w io.Writer) error {
	if s.Total == 0 {
		_, err := fmt.Fprintln(w, "No scenarios found.")
		return err
	}
	for _, r := range s.Scenarios {
		mark := "✓"
		if !r.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", mark, r.Name)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		if s.showSnapshots && len(r.snapshot) > 0 {
			for _, line := range strings.Split(strings.TrimSuffix(string(r.snapshot), "\n"), "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
	_, err := fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", s.Passed, s.Failed, s.Total)
	return err
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <file-or-dir>",
		Short: "Run workflow scenarios against in-memory stores",
		Long: `Run YAML workflow scenarios end to end.

Each scenario seeds in-memory source and target stores and an in-memory
ledger, drives the orchestrator through its steps and checks the
assertions. No network access and no configuration file are needed.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing path, bad filter)

Examples:
  storeclone scenario ./scenarios
  storeclone scenario ./scenarios/weekly-run.yaml --snapshot
  storeclone scenario ./scenarios --golden ./scenarios/golden
  storeclone scenario ./scenarios --golden ./scenarios/golden --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenario files whose name matches this glob")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "directory of golden snapshots to compare with")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden snapshots (requires --golden)")
	cmd.Flags().BoolVar(&opts.Snapshot, "snapshot", false, "print each scenario snapshot")

	return cmd
}

func runScenarios(cmd *cobra.Command, opts *ScenarioOptions, path string) error {
	if opts.Update && opts.GoldenDir == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}
	files, err := findScenarioFiles(path, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "find scenarios", err)
	}

	logger := zap.NewNop()
	if opts.Verbose {
		if logger, err = logging.NewWriter(cmd.ErrOrStderr(), "console", "debug"); err != nil {
			return WrapExitError(ExitCommandError, "create logger", err)
		}
	}

	summary := ScenarioSummary{
		Scenarios:     make([]ScenarioResult, 0, len(files)),
		Total:         len(files),
		showSnapshots: opts.Snapshot,
	}
	for _, file := range files {
		r := runScenarioFile(cmd.Context(), file, opts, logger)
		if r.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
		summary.Scenarios = append(summary.Scenarios, r)
	}

	if err := opts.formatter(cmd).Success(summary); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", summary.Failed, summary.Total))
	}
	return nil
}

func runScenarioFile(ctx context.Context, file string, opts *ScenarioOptions, logger *zap.Logger) ScenarioResult {
	out := ScenarioResult{Name: filepath.Base(file), File: file}

	s, err := harness.LoadScenario(file)
	if err != nil {
		out.Errors = []string{err.Error()}
		return out
	}
	out.Name = s.Name

	result, err := harness.Run(ctx, s, harness.Options{Logger: logger.With(zap.String("scenario", s.Name))})
	if err != nil {
		out.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return out
	}
	out.Errors = result.Errors
	out.snapshot = harness.Snapshot(result)

	if opts.GoldenDir != "" {
		if err := checkGolden(opts, s.Name, out.snapshot); err != nil {
			out.Errors = append(out.Errors, err.Error())
		}
	}
	out.Pass = len(out.Errors) == 0
	return out
}

func checkGolden(opts *ScenarioOptions, name string, snapshot []byte) error {
	path := filepath.Join(opts.GoldenDir, name+".golden")
	if opts.Update {
		if err := os.MkdirAll(opts.GoldenDir, 0o755); err != nil {
			return fmt.Errorf("create golden directory: %w", err)
		}
		if err := os.WriteFile(path, snapshot, 0o644); err != nil {
			return fmt.Errorf("write golden file: %w", err)
		}
		return nil
	}

	want, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(want, snapshot) {
		return fmt.Errorf("snapshot does not match %s (run with --update to regenerate)", path)
	}
	return nil
}

// findScenarioFiles returns path itself, or every .yaml/.yml file below it.
func findScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			if ok, _ := filepath.Match(filter, name); !ok {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	return files, err
}
