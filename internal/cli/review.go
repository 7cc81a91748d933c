package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dshills/ai-peer-review/internal/cache"
	"github.com/dshills/ai-peer-review/internal/config"
	"github.com/dshills/ai-peer-review/internal/output"
	"github.com/dshills/ai-peer-review/internal/paper"
	"github.com/dshills/ai-peer-review/internal/providers"
	"github.com/dshills/ai-peer-review/internal/review"
	"github.com/dshills/ai-peer-review/internal/tokens"
)

// Seams replaced in tests.
var (
	newClientFactory = func(cfg config.Config) review.ClientFactory {
		return func(info providers.ModelInfo) (providers.Generator, error) {
			return providers.New(info, cfg.APIKey(info.Service))
		}
	}
	loadPaper = paper.Load
	// tokenCounter picks the tokenizer per model; nil uses the engine default.
	tokenCounter func(string) tokens.Counter
)

type reviewOptions struct {
	outputDir   string
	metaReview  bool
	models      string
	overwrite   bool
	metaModel   string
	concurrency int
	noCache     bool
}

// invertedBool is a boolean flag that stores the negation of its value, so
// that --x and --no-x share one setting and the last one given wins.
type invertedBool struct{ p *bool }

func (b *invertedBool) String() string {
	if b == nil || b.p == nil {
		return "false"
	}
	return strconv.FormatBool(!*b.p)
}

func (b *invertedBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*b.p = !v
	return nil
}

func (b *invertedBool) Type() string { return "bool" }

func newReviewCmd(root *rootOptions) *cobra.Command {
	opts := &reviewOptions{}

	cmd := &cobra.Command{
		Use:   "review <pdf_path>",
		Short: "Process a paper and generate peer reviews using multiple LLMs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd, root, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.outputDir, "output-dir", "", "Base directory to store reviews and meta-review (default ./papers)")
	f.BoolVar(&opts.metaReview, "meta-review", true, "Generate meta-review after individual reviews")
	f.Var(&invertedBool{p: &opts.metaReview}, "no-meta-review", "Skip the meta-review")
	f.Lookup("no-meta-review").NoOptDefVal = "true"
	f.StringVar(&opts.models, "models", "", "Comma-separated list of models to use. Default is all supported models.")
	f.BoolVar(&opts.overwrite, "overwrite", false, "Overwrite existing reviews")
	f.Var(&invertedBool{p: &opts.overwrite}, "no-overwrite", "Keep existing reviews (default)")
	f.Lookup("no-overwrite").NoOptDefVal = "true"
	f.StringVar(&opts.metaModel, "meta-model", "", "Model writing the meta-review and concerns table")
	f.IntVar(&opts.concurrency, "concurrency", 0, "Number of models queried in parallel")
	f.BoolVar(&opts.noCache, "no-cache", false, "Do not reuse cached model responses")
	return cmd
}

// overrides maps flags the user set onto config keys.
func (o *reviewOptions) overrides(cmd *cobra.Command) map[string]any {
	m := make(map[string]any)
	if cmd.Flags().Changed("output-dir") {
		m["output_dir"] = o.outputDir
	}
	if o.metaModel != "" {
		m["meta_review_model"] = o.metaModel
	}
	if o.concurrency > 0 {
		m["max_concurrency"] = o.concurrency
	}
	return m
}

func runReview(cmd *cobra.Command, root *rootOptions, opts *reviewOptions, pdfPath string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := config.Load(root.configFile, opts.overrides(cmd))
	if err != nil {
		return usageError("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		return usageError("invalid configuration: %v", err)
	}
	if _, err := providers.Lookup(cfg.MetaReviewModel); err != nil {
		return usageError("meta-review model: %v", err)
	}

	info, err := os.Stat(pdfPath)
	if err != nil {
		return usageError("path %q does not exist", pdfPath)
	}
	if info.IsDir() {
		return usageError("path %q is a directory", pdfPath)
	}

	requested := cfg.Models
	if opts.models != "" {
		requested = splitComma(opts.models)
	}
	selected, unknown := providers.SelectModels(requested)
	if len(unknown) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: ignoring unknown model(s): %s\n", strings.Join(unknown, ", "))
	}
	if len(selected) == 0 {
		fmt.Fprintf(out, "No valid models specified. Available models: %s\n", strings.Join(providers.ModelNames(), ", "))
		return silentExit{code: ExitUsageError}
	}

	ws, err := output.NewWorkspace(cfg.OutputDir, paper.Stem(pdfPath))
	if err != nil {
		return runtimeError(err)
	}
	fmt.Fprintf(out, "Output will be saved to: %s\n", ws.Dir)
	fmt.Fprintf(out, "Processing paper: %s\n", pdfPath)
	fmt.Fprintf(out, "Selected models: %s\n", strings.Join(selected, ", "))

	overwrite := opts.overwrite
	reviews := make(map[string]string)
	lines := make(map[string]output.ModelLine)
	var toProcess []string
	for _, m := range selected {
		if !overwrite {
			text, ok, err := ws.ExistingReview(m)
			if err != nil {
				return runtimeError(err)
			}
			if ok {
				reviews[m] = text
				lines[m] = output.ModelLine{Model: m, Source: output.SourceExisting, Path: ws.ReviewPath(m)}
				fmt.Fprintf(out, "Using existing review for %s from %s\n", m, ws.ReviewPath(m))
				continue
			}
		}
		toProcess = append(toProcess, m)
	}

	c, err := cache.New(cfg.Cache.Enabled && !opts.noCache, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
	if err != nil {
		return runtimeError(err)
	}
	engine := review.NewEngine(newClientFactory(cfg), review.Options{
		MaxConcurrency:    cfg.MaxConcurrency,
		RequestsPerMinute: cfg.RequestsPerMinute,
		MaxInputTokens:    cfg.MaxInputTokens,
		MaxOutputTokens:   cfg.MaxOutputTokens,
		Temperature:       cfg.Temperature,
		MetaModel:         cfg.MetaReviewModel,
		Prompts:           configuredPrompts(cfg),
		Cache:             c,
		ReadCache:         !overwrite && !opts.noCache,
		Counter:           tokenCounter,
		Progress:          progressPrinter(out),
	})

	results := output.NewResults(pdfPath, selected)
	var processErr error
	if len(toProcess) > 0 {
		fmt.Fprintf(out, "Processing models: %s\n", strings.Join(toProcess, ", "))
		processErr = processModels(ctx, out, ws, engine, pdfPath, toProcess, reviews, lines, &results)
		if processErr != nil && len(reviews) == 0 {
			writeResults(out, ws, results, reviews)
			return processErr
		}
	}

	if len(reviews) == 0 {
		fmt.Fprintln(out, "No reviews to process. Use --overwrite to regenerate existing reviews.")
		return nil
	}

	var metaErr error
	var files []string
	if opts.metaReview {
		metaErr = metaReview(ctx, out, ws, engine, selected, reviews, &results, &files)
	}

	if path := writeResults(out, ws, results, reviews); path != "" {
		files = append(files, path)
	}

	summary := output.Summary{Paper: pdfPath, Dir: ws.Dir}
	for _, f := range files {
		summary.Files = append(summary.Files, filepath.Base(f))
	}
	for _, m := range selected {
		if line, ok := lines[m]; ok {
			summary.Models = append(summary.Models, line)
		}
	}
	if err := (&output.TextWriter{}).WriteSummary(out, summary); err != nil {
		slog.Warn("Could not print summary", "error", err)
	}

	if metaErr != nil {
		if review.IsAuthFailure(metaErr) {
			return authError(metaErr)
		}
		return runtimeError(metaErr)
	}
	// Every new model failed but earlier reviews were reused.
	return processErr
}

// processModels runs the models without a review yet and saves what they
// return. It only fails when the paper cannot be read or every model failed.
func processModels(ctx context.Context, out io.Writer, ws output.Workspace, engine *review.Engine, pdfPath string, models []string,
	reviews map[string]string, lines map[string]output.ModelLine, results *output.Results) error {
	p, err := loadPaper(pdfPath)
	if err != nil {
		if errors.Is(err, paper.ErrNotPDF) || errors.Is(err, paper.ErrNotFile) {
			return usageError("%v", err)
		}
		return runtimeError(err)
	}

	res, err := engine.ProcessPaper(ctx, p, models)
	for _, f := range res.Failures {
		lines[f.Model] = output.ModelLine{Model: f.Model, Source: output.SourceFailed, Err: f.Err}
		results.AddFailure(f.Model, f.Err)
	}
	for _, m := range models {
		r, ok := res.Reviews[m]
		if !ok {
			continue
		}
		path, werr := ws.WriteReview(m, r.Text)
		if werr != nil {
			return runtimeError(werr)
		}
		reviews[m] = r.Text
		source := output.SourceNew
		if r.Cached {
			source = output.SourceCached
		}
		lines[m] = output.ModelLine{Model: m, Source: source, Path: path}
		fmt.Fprintf(out, "Review from %s saved to %s\n", m, path)
	}

	switch {
	case err == nil:
		return nil
	case review.IsAuthFailure(err):
		return authError(err)
	default:
		return runtimeError(err)
	}
}

// metaReview writes the meta-review and concerns table, appending the paths
// it wrote to files.
func metaReview(ctx context.Context, out io.Writer, ws output.Workspace, engine *review.Engine, selected []string,
	reviews map[string]string, results *output.Results, files *[]string) error {
	fmt.Fprintln(out, "Generating meta-review...")
	meta, err := engine.MetaReview(ctx, reviews)
	if err != nil {
		return err
	}
	results.SetMeta(meta)

	path, err := ws.WriteMetaReview(meta.Text)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Meta-review saved to %s\n", path)
	*files = append(*files, path)

	var models []string
	for _, m := range selected {
		if _, ok := reviews[m]; ok {
			models = append(models, m)
		}
	}
	table, err := engine.ExtractConcerns(ctx, meta, models)
	if err != nil {
		// The meta-review is already saved; a bad concerns table is not fatal.
		fmt.Fprintf(out, "Error processing concerns table: %v\n", err)
		return nil
	}
	path, err = ws.WriteConcerns(table)
	if err != nil {
		fmt.Fprintf(out, "Error processing concerns table: %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "Concerns table saved to %s\n", path)
	*files = append(*files, path)
	if err := (&output.TextWriter{}).WriteConcerns(out, table); err != nil {
		slog.Warn("Could not print concerns table", "error", err)
	}
	return nil
}

// writeResults saves results.json and returns its path, or "" when it could
// not be written.
func writeResults(out io.Writer, ws output.Workspace, results output.Results, reviews map[string]string) string {
	for m, text := range reviews {
		results.IndividualReviews[m] = text
	}
	path, err := ws.WriteResults(results)
	if err != nil {
		fmt.Fprintf(out, "Error saving results: %v\n", err)
		return ""
	}
	fmt.Fprintf(out, "All results saved to %s\n", path)
	return path
}

var (
	progressStart = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B949E"))
	progressOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	progressFail  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F85149"))
)

func progressPrinter(w io.Writer) func(review.Event) {
	return func(ev review.Event) {
		switch ev.Kind {
		case review.EventStarted:
			fmt.Fprintln(w, progressStart.Render("→ "+ev.Model+": requesting review"))
		case review.EventCached:
			fmt.Fprintln(w, progressOK.Render("✓ "+ev.Model+": served from cache"))
		case review.EventDone:
			fmt.Fprintln(w, progressOK.Render(fmt.Sprintf("✓ %s: done in %s", ev.Model, ev.Duration.Round(100*time.Millisecond))))
		case review.EventFailed:
			fmt.Fprintln(w, progressFail.Render(fmt.Sprintf("✗ %s: %v", ev.Model, ev.Err)))
		}
	}
}

// configuredPrompts collects the prompt templates the config overrides.
func configuredPrompts(cfg config.Config) map[string]string {
	prompts := make(map[string]string)
	for _, name := range review.PromptNames() {
		if p := cfg.Prompt(name); p != "" {
			prompts[name] = p
		}
	}
	return prompts
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
