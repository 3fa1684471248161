package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/stepwise/internal/analysis"
	"github.com/MikeSquared-Agency/stepwise/internal/transcript"
)

const outputSuffix = ".steps.json"

// Config holds the batch command configuration.
type Config struct {
	Input     string // a transcript file or a directory of them
	OutputDir string
	StatePath string
	Source    string // source label for persisted runs (default: "batch")
	DryRun    bool   // analyse but write nothing
}

// Pipeline persists and announces an analysed batch.
type Pipeline interface {
	Process(ctx context.Context, source string, results []analysis.Result) uuid.UUID
}

// FileReport is written next to each processed input as <name>.steps.json.
type FileReport struct {
	File        string            `json:"file"`
	RunID       string            `json:"run_id,omitempty"`
	Summary     analysis.Summary  `json:"summary"`
	Transcripts []analysis.Report `json:"transcripts"`
}

// FileSummary is the per-file line of the final report.
type FileSummary struct {
	Path        string
	Transcripts int
	Failed      int
	Duplicates  int
	Dialogues   int
	Ambiguous   int
}

// Runner orchestrates an offline batch run.
type Runner struct {
	cfg      Config
	analyzer *analysis.Analyzer
	pipeline Pipeline
	logger   *slog.Logger
	out      io.Writer
}

// NewRunner creates a batch runner. pipeline may be nil.
func NewRunner(cfg Config, a *analysis.Analyzer, pipeline Pipeline, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		analyzer: a,
		pipeline: pipeline,
		logger:   logger,
		out:      os.Stdout,
	}
}

// SetOutput redirects the final summary, which goes to stdout by default.
func (r *Runner) SetOutput(w io.Writer) {
	r.out = w
}

func (r *Runner) sourceLabel() string {
	if r.cfg.Source != "" {
		return r.cfg.Source
	}
	return "batch"
}

// Run executes the batch.
func (r *Runner) Run(ctx context.Context) error {
	statePath := r.cfg.StatePath
	if statePath == "" {
		statePath = DefaultStatePath
	}
	state, err := LoadState(statePath)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	files, err := r.discoverFiles()
	if err != nil {
		return fmt.Errorf("discover files: %w", err)
	}

	var pending []string
	for _, f := range files {
		if !state.IsProcessed(f) {
			pending = append(pending, f)
		}
	}
	state.FilesRemaining = len(pending)
	r.logger.Info("files discovered", "total", len(files), "pending", len(pending))

	seen := make(map[string]bool)
	var summaries []FileSummary

	for _, path := range pending {
		select {
		case <-ctx.Done():
			r.logger.Info("batch interrupted, saving state")
			_ = state.Save()
			r.printSummary(summaries, state)
			return ctx.Err()
		default:
		}

		fs, err := r.processFile(ctx, path, seen)
		if err != nil && ctx.Err() != nil {
			// The interrupted file stays pending and is redone on resume.
			r.logger.Info("batch interrupted mid-file, saving state", "path", path)
			if !r.cfg.DryRun {
				_ = state.Save()
			}
			r.printSummary(summaries, state)
			return ctx.Err()
		}
		if err != nil {
			r.logger.Warn("failed to process file", "path", path, "error", err)
			state.AddError(fmt.Sprintf("%s: %v", path, err))
			state.FilesRemaining--
			continue
		}

		summaries = append(summaries, fs)
		state.TranscriptsProcessed += fs.Transcripts
		state.DuplicatesSkipped += fs.Duplicates
		state.DialoguesFound += fs.Dialogues
		state.AmbiguousFound += fs.Ambiguous
		if !r.cfg.DryRun {
			state.MarkProcessed(path)
		}
		state.FilesRemaining--
		if !r.cfg.DryRun {
			if err := state.Save(); err != nil {
				r.logger.Warn("failed to save state", "error", err)
			}
		}
	}

	if !r.cfg.DryRun {
		if err := state.Save(); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}

	r.logger.Info("batch complete",
		"files_processed", len(summaries),
		"transcripts", state.TranscriptsProcessed,
		"dialogues", state.DialoguesFound,
		"dry_run", r.cfg.DryRun,
	)
	r.printSummary(summaries, state)
	return nil
}

func (r *Runner) processFile(ctx context.Context, path string, seen map[string]bool) (FileSummary, error) {
	fs := FileSummary{Path: path}

	ts, err := transcript.ParseFile(path)
	if err != nil {
		return fs, fmt.Errorf("parse: %w", err)
	}
	ts, fs.Duplicates = dedupe(ts, seen)

	r.logger.Info("processing file", "path", path, "transcripts", len(ts), "duplicates", fs.Duplicates)
	results := r.analyzer.AnalyzeBatch(ctx, ts)
	if err := ctx.Err(); err != nil {
		return fs, err
	}
	sum := analysis.Summarize(results)
	fs.Transcripts = sum.Transcripts
	fs.Failed = sum.Failed
	fs.Dialogues = sum.Dialogues
	fs.Ambiguous = sum.Ambiguous

	if r.cfg.DryRun {
		return fs, nil
	}

	report := FileReport{
		File:        path,
		Summary:     sum,
		Transcripts: analysis.Reports(results),
	}
	if r.pipeline != nil && len(results) > 0 {
		if id := r.pipeline.Process(ctx, r.sourceLabel(), results); id != uuid.Nil {
			report.RunID = id.String()
		}
	}

	if err := r.writeReport(path, report); err != nil {
		return fs, err
	}
	return fs, nil
}

func (r *Runner) writeReport(input string, report FileReport) error {
	out := r.outputPath(input)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	r.logger.Debug("report written", "path", out)
	return nil
}

// outputPath mirrors the input's position under the input directory inside
// OutputDir, replacing the .json extension with .steps.json.
func (r *Runner) outputPath(input string) string {
	rel := filepath.Base(input)
	root := expandHome(r.cfg.Input)
	if info, err := os.Stat(root); err == nil && info.IsDir() {
		if p, err := filepath.Rel(root, input); err == nil {
			rel = p
		}
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + outputSuffix

	dir := r.cfg.OutputDir
	if dir == "" {
		dir = filepath.Dir(input)
		rel = filepath.Base(rel)
	}
	return filepath.Join(expandHome(dir), rel)
}

func (r *Runner) discoverFiles() ([]string, error) {
	root := expandHome(r.cfg.Input)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("input not found: %s", root)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip errors
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		if strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, outputSuffix) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (r *Runner) printSummary(summaries []FileSummary, state *State) {
	fmt.Fprint(r.out, FormatSummary(summaries))
	fmt.Fprintf(r.out, "Errors: %d\n", len(state.Errors))
	if r.cfg.DryRun {
		fmt.Fprintf(r.out, "Mode: DRY RUN (nothing written)\n")
	} else {
		fmt.Fprintf(r.out, "State file: %s\n", state.path)
	}
}

// FormatSummary renders per-file counts followed by totals.
func FormatSummary(summaries []FileSummary) string {
	var sb strings.Builder
	sb.WriteString("\n=== Batch Summary ===\n")

	var total FileSummary
	for _, f := range summaries {
		fmt.Fprintf(&sb, "  - %s: %d transcripts, %d dialogues, %d low confidence",
			filepath.Base(f.Path), f.Transcripts, f.Dialogues, f.Ambiguous)
		if f.Failed > 0 {
			fmt.Fprintf(&sb, " (%d failed)", f.Failed)
		}
		if f.Duplicates > 0 {
			fmt.Fprintf(&sb, " (%d duplicates skipped)", f.Duplicates)
		}
		sb.WriteString("\n")

		total.Transcripts += f.Transcripts
		total.Failed += f.Failed
		total.Duplicates += f.Duplicates
		total.Dialogues += f.Dialogues
		total.Ambiguous += f.Ambiguous
	}

	fmt.Fprintf(&sb, "Files processed: %d\n", len(summaries))
	fmt.Fprintf(&sb, "Transcripts: %d (%d failed, %d duplicates skipped)\n", total.Transcripts, total.Failed, total.Duplicates)
	fmt.Fprintf(&sb, "Dialogues: %d (%d low confidence)\n", total.Dialogues, total.Ambiguous)
	return sb.String()
}
