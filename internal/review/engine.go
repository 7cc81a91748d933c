package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/ai-peer-review/internal/cache"
	"github.com/dshills/ai-peer-review/internal/paper"
	"github.com/dshills/ai-peer-review/internal/providers"
	"github.com/dshills/ai-peer-review/internal/tokens"
)

// ClientFactory builds the client used to call a catalog model.
type ClientFactory func(info providers.ModelInfo) (providers.Generator, error)

// Options tune an [Engine].
type Options struct {
	// MaxConcurrency bounds parallel model calls. Values below 1 mean 1.
	MaxConcurrency int
	// RequestsPerMinute limits calls per model client; 0 disables the limit.
	RequestsPerMinute int
	MaxInputTokens    int
	MaxOutputTokens   int
	Temperature       float64
	// MetaModel is the catalog name of the model writing the meta-review.
	MetaModel string
	// Prompts overrides built-in templates by name, see [DefaultPrompt].
	Prompts map[string]string
	// Cache stores responses. ReadCache false still refreshes entries.
	Cache     *cache.Cache
	ReadCache bool
	// Counter overrides token counting, mostly for tests.
	Counter func(encoding string) tokens.Counter
	// Progress is called as model calls start and finish. Calls are
	// serialised.
	Progress func(Event)
}

// EventKind tells what happened to a model call.
type EventKind int

// Progress event kinds.
const (
	EventStarted EventKind = iota
	EventCached
	EventDone
	EventFailed
)

// Event reports progress of a model call.
type Event struct {
	Kind     EventKind
	Model    string
	Duration time.Duration
	Err      error
}

// Engine runs reviews against catalog models.
type Engine struct {
	newClient ClientFactory
	opts      Options

	mu         sync.Mutex
	clients    map[string]providers.Generator
	progressMu sync.Mutex
}

// NewEngine returns an Engine creating clients with newClient.
func NewEngine(newClient ClientFactory, opts Options) *Engine {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.Counter == nil {
		opts.Counter = tokens.New
	}
	if opts.MetaModel == "" {
		opts.MetaModel = "gemini-2.5-pro"
	}
	return &Engine{
		newClient: newClient,
		opts:      opts,
		clients:   make(map[string]providers.Generator),
	}
}

// MetaModel returns the catalog name of the meta-review model.
func (e *Engine) MetaModel() string {
	return e.opts.MetaModel
}

func (e *Engine) prompt(name string) string {
	if p := strings.TrimSpace(e.opts.Prompts[name]); p != "" {
		return e.opts.Prompts[name]
	}
	return DefaultPrompt(name)
}

func (e *Engine) emit(ev Event) {
	if e.opts.Progress == nil {
		return
	}
	e.progressMu.Lock()
	defer e.progressMu.Unlock()
	e.opts.Progress(ev)
}

// client returns the shared, rate-limited client for info.
func (e *Engine) client(info providers.ModelInfo) (providers.Generator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.clients[info.Name]; ok {
		return c, nil
	}
	c, err := e.newClient(info)
	if err != nil {
		return nil, err
	}
	c = providers.Limit(c, e.opts.RequestsPerMinute)
	e.clients[info.Name] = c
	return c, nil
}

// ProcessPaper reviews p with every model in models concurrently. Models that
// fail are reported in Result.Failures; an error is returned only when no
// model produced a review or ctx was cancelled.
func (e *Engine) ProcessPaper(ctx context.Context, p paper.Paper, models []string) (Result, error) {
	if len(models) == 0 {
		return Result{}, errors.New("no models to run")
	}

	reviews := make([]*Review, len(models))
	errs := make([]error, len(models))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxConcurrency)
	for i, name := range models {
		g.Go(func() error {
			// Per-model errors are collected, not returned, so one failing
			// provider does not cancel the others.
			r, err := e.reviewOne(gctx, p, name)
			if err != nil {
				errs[i] = err
				return nil
			}
			reviews[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Reviews: make(map[string]Review)}
	for i, name := range models {
		if errs[i] != nil {
			res.Failures = append(res.Failures, Failure{Model: name, Err: errs[i]})
			continue
		}
		res.Reviews[name] = *reviews[i]
	}
	if len(res.Reviews) == 0 {
		return res, &AllFailedError{Failures: res.Failures}
	}
	return res, nil
}

func (e *Engine) reviewOne(ctx context.Context, p paper.Paper, name string) (Review, error) {
	info, err := providers.Lookup(name)
	if err != nil {
		return Review{}, err
	}

	e.emit(Event{Kind: EventStarted, Model: name})
	start := time.Now()

	text, truncated := e.fitPaper(info, p.Text)
	tmpl := e.prompt(PromptReview)
	values := map[string]string{"paper_text": text}
	user, used, err := renderPrompt(tmpl, values)
	if err == nil && !used["paper_text"] {
		// Templates that never place the paper get it appended.
		user, _, err = renderPrompt(tmpl+"\n\n{paper_text}", values)
	}
	if err != nil {
		err = fmt.Errorf("review prompt: %w", err)
		e.emit(Event{Kind: EventFailed, Model: name, Err: err})
		return Review{}, err
	}

	out, cached, err := e.generate(ctx, info, e.prompt(PromptSystem), user)
	if err != nil {
		slog.Debug("Model review failed", "model", name, "error", err)
		e.emit(Event{Kind: EventFailed, Model: name, Duration: time.Since(start), Err: err})
		return Review{}, err
	}

	r := Review{
		Model:      name,
		Text:       out.Content,
		Cached:     cached,
		Truncated:  truncated,
		TokensUsed: out.TokensUsed,
		Duration:   time.Since(start),
	}
	kind := EventDone
	if cached {
		kind = EventCached
	}
	e.emit(Event{Kind: kind, Model: name, Duration: r.Duration})
	return r, nil
}

// fitPaper truncates text so that the review prompt fits the model's input
// budget.
func (e *Engine) fitPaper(info providers.ModelInfo, text string) (string, bool) {
	counter := e.opts.Counter(tokens.EncodingFor(info.Provider))
	budget := info.InputBudget(e.opts.MaxInputTokens, info.OutputBudget(e.opts.MaxOutputTokens))
	budget -= counter.Count(e.prompt(PromptSystem)) + counter.Count(e.prompt(PromptReview))
	if budget <= 0 {
		return text, false
	}
	fitted := counter.Truncate(text, budget)
	if fitted != text {
		slog.Warn("Paper truncated to fit model context", "model", info.Name, "token_budget", budget)
		return fitted, true
	}
	return text, false
}

// generate calls the model, going through the cache.
func (e *Engine) generate(ctx context.Context, info providers.ModelInfo, system, user string) (providers.Response, bool, error) {
	maxTokens := info.OutputBudget(e.opts.MaxOutputTokens)
	key := cache.Key(info.APIModel, maxTokens, e.opts.Temperature, system, user)

	if e.opts.Cache != nil && e.opts.ReadCache {
		if content, ok := e.opts.Cache.Get(key); ok {
			slog.Debug("Cache hit", "model", info.Name)
			return providers.Response{Content: content}, true, nil
		}
	}

	c, err := e.client(info)
	if err != nil {
		return providers.Response{}, false, err
	}
	resp, err := c.Generate(ctx, providers.Request{
		SystemPrompt: system,
		UserPrompt:   user,
		MaxTokens:    maxTokens,
		Temperature:  e.opts.Temperature,
	})
	if err != nil {
		return providers.Response{}, false, fmt.Errorf("%s: %w", info.Name, err)
	}
	resp.Content = strings.TrimSpace(resp.Content)
	if resp.Content == "" {
		return providers.Response{}, false, fmt.Errorf("%s: empty response", info.Name)
	}

	if e.opts.Cache != nil {
		if err := e.opts.Cache.Put(key, info.APIModel, resp.Content); err != nil {
			slog.Warn("Could not cache response", "model", info.Name, "error", err)
		}
	}
	return resp, false, nil
}
