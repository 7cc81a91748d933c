package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ai-peer-review/internal/config"
	"github.com/dshills/ai-peer-review/internal/output"
	"github.com/dshills/ai-peer-review/internal/paper"
	"github.com/dshills/ai-peer-review/internal/providers"
	"github.com/dshills/ai-peer-review/internal/review"
	"github.com/dshills/ai-peer-review/internal/tokens"
)

// fakeModel answers review, meta-review and concerns requests with canned
// text, or fails with err.
type fakeModel struct {
	name string
	err  error

	mu       sync.Mutex
	calls    int
	requests []providers.Request
}

func (f *fakeModel) Name() string { return f.name }

func (f *fakeModel) Generate(_ context.Context, req providers.Request) (providers.Response, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.err != nil {
		return providers.Response{}, f.err
	}
	switch {
	case req.SystemPrompt == "":
		return providers.Response{Content: `{"concerns": [{"concern": "Small sample", "Alpha": true, "Bravo": "no"}]}`}, nil
	case strings.Contains(req.UserPrompt, "## Reviewer"):
		return providers.Response{Content: "# Meta-review\n\nReviewer Alpha liked it."}, nil
	default:
		return providers.Response{Content: "Review by " + f.name}, nil
	}
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeModel) lastRequest() providers.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return providers.Request{}
	}
	return f.requests[len(f.requests)-1]
}

// setupCLI isolates config, cache and working directory, and replaces the
// model clients with fakes. Models without a fake have no credentials.
func setupCLI(t *testing.T, fakes map[string]*fakeModel) (dir string) {
	t.Helper()

	dir = t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv(config.ConfigFileEnv, "")
	for _, env := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY",
		"DEEPSEEK_API_KEY", "LLAMA_API_KEY", "TOGETHER_API_KEY"} {
		t.Setenv(env, "")
	}
	t.Chdir(dir)

	origFactory, origLoad, origCounter := newClientFactory, loadPaper, tokenCounter
	t.Cleanup(func() {
		newClientFactory, loadPaper, tokenCounter = origFactory, origLoad, origCounter
	})

	newClientFactory = func(config.Config) review.ClientFactory {
		return func(info providers.ModelInfo) (providers.Generator, error) {
			if f, ok := fakes[info.Name]; ok {
				return f, nil
			}
			return providers.New(info, "")
		}
	}
	loadPaper = func(path string) (paper.Paper, error) {
		return paper.Paper{Path: path, Stem: paper.Stem(path), Text: "We study things.", Pages: 1}, nil
	}
	tokenCounter = func(string) tokens.Counter { return tokens.Approx{} }

	return dir
}

func writePDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n"), 0o600))
	return path
}

func run(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = execute(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestSplitComma(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input string
		want  []string
	}{
		"Empty string":        {input: "", want: nil},
		"Single value":        {input: "gpt4-o1", want: []string{"gpt4-o1"}},
		"Multiple values":     {input: "a,b,c", want: []string{"a", "b", "c"}},
		"Whitespace trimmed":  {input: " a , b ", want: []string{"a", "b"}},
		"Empty parts skipped": {input: ",a,,b,", want: []string{"a", "b"}},
		"All empty":           {input: ",,,", want: nil},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, splitComma(tc.input))
		})
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "WARN", logLevel(0).String())
	assert.Equal(t, "INFO", logLevel(1).String())
	assert.Equal(t, "DEBUG", logLevel(2).String())
	assert.Equal(t, "DEBUG", logLevel(5).String())
}

func TestVersion(t *testing.T) {
	setupCLI(t, nil)

	code, out, _ := run(t, "version")
	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "ai-peer-review version "+version+"\n", out)

	code, out, _ = run(t, "--version")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, version)
}

func TestUsageErrors(t *testing.T) {
	setupCLI(t, nil)

	tests := map[string][]string{
		"Unknown command":      {"frobnicate"},
		"Unknown flag":         {"review", "--bogus", "x.pdf"},
		"Missing argument":     {"review"},
		"Too many arguments":   {"config", "openai"},
		"Missing paper":        {"review", "does-not-exist.pdf"},
		"Invalid service":      {"config", "myspace", "key"},
		"Extra list argument":  {"list-models", "extra"},
		"Bad concurrency type": {"review", "--concurrency", "many", "x.pdf"},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			code, _, _ := run(t, args...)
			assert.Equal(t, ExitUsageError, code)
		})
	}
}

func TestListModels(t *testing.T) {
	setupCLI(t, nil)

	for _, args := range [][]string{{"list-models"}, {"models", "list"}} {
		code, out, _ := run(t, args...)
		require.Equal(t, ExitSuccess, code)

		lines := strings.Split(out, "\n")
		assert.Equal(t, "Available models for peer review:", lines[0])
		for i, m := range providers.ModelNames() {
			assert.Equal(t, "- "+m, lines[i+1])
		}
		assert.Contains(t, out, "Use these model names with the --models option when running 'ai-peer-review review'.")
	}
}

func TestConfigSetAndShow(t *testing.T) {
	dir := setupCLI(t, nil)

	code, out, _ := run(t, "config", "openai", "sk-test-1234567890")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "API key for openai has been set successfully.\n", out)

	path := filepath.Join(dir, "config", config.AppName, "config.yaml")
	require.FileExists(t, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sk-test-1234567890")

	code, out, _ = run(t, "config", "show")
	require.Equal(t, ExitSuccess, code)
	assert.NotContains(t, out, "sk-test-1234567890", "Keys must be masked")

	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	creds, ok := shown["credentials"].(map[string]any)
	require.True(t, ok, "credentials should be an object")
	assert.Contains(t, creds["openai"], "from config file")
	assert.Contains(t, creds["anthropic"], "not set (ANTHROPIC_API_KEY)")

	t.Setenv("OPENAI_API_KEY", "sk-env-0987654321")
	_, out, _ = run(t, "config", "show")
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	creds = shown["credentials"].(map[string]any)
	assert.Contains(t, creds["openai"], "from OPENAI_API_KEY")
}

func TestConfigSet_CustomFile(t *testing.T) {
	dir := setupCLI(t, nil)
	path := filepath.Join(dir, "custom.json")

	code, _, _ := run(t, "--config-file", path, "config", "together", "tg-key")
	require.Equal(t, ExitSuccess, code)

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "tg-key", cfg.APIKey("llama"), "together is an alias of llama")
}

func TestConfigInit(t *testing.T) {
	dir := setupCLI(t, nil)
	path := filepath.Join(dir, "init.yaml")

	code, out, _ := run(t, "--config-file", path, "config", "init")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Config file created at "+path)
	require.FileExists(t, path)

	code, _, errOut := run(t, "--config-file", path, "config", "init")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, errOut, "Config file already exists at "+path)
}

func TestCacheCommands(t *testing.T) {
	setupCLI(t, nil)

	code, out, _ := run(t, "cache", "show")
	require.Equal(t, ExitSuccess, code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.EqualValues(t, 0, stats["entries"])

	code, out, _ = run(t, "cache", "clear")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "Cache cleared (0 entries removed).\n", out)
}

func TestReview(t *testing.T) {
	fakes := map[string]*fakeModel{
		"claude-3.7-sonnet": {name: "claude-3.7-sonnet"},
		"deepseek-r1":       {name: "deepseek-r1"},
	}
	dir := setupCLI(t, fakes)
	pdf := writePDF(t, dir, "my paper.pdf")

	code, out, errOut := run(t, "review", pdf,
		"--models", "claude-3.7-sonnet,deepseek-r1",
		"--meta-model", "claude-3.7-sonnet",
		"--output-dir", filepath.Join(dir, "out"))
	require.Equal(t, ExitSuccess, code, "stdout: %s\nstderr: %s", out, errOut)

	paperDir := filepath.Join(dir, "out", "my paper")
	assert.Contains(t, out, "Output will be saved to: "+paperDir)
	assert.Contains(t, out, "Selected models: claude-3.7-sonnet, deepseek-r1")
	assert.Contains(t, out, "Processing models: claude-3.7-sonnet, deepseek-r1")
	assert.Contains(t, out, "Generating meta-review...")
	assert.Contains(t, out, "Concerns table saved to ")
	assert.Contains(t, out, "Files in "+paperDir)
	for _, f := range []string{output.MetaReviewFile, output.ConcernsFile, output.ResultsFile} {
		assert.Contains(t, out, "  "+f+"\n", "summary lists %s", f)
	}

	ws := output.Workspace{Dir: paperDir}
	for name := range fakes {
		text, ok, err := ws.ExistingReview(name)
		require.NoError(t, err)
		require.True(t, ok, "review of %s should be saved", name)
		assert.Equal(t, "Review by "+name, text)
	}

	meta, err := os.ReadFile(filepath.Join(paperDir, output.MetaReviewFile))
	require.NoError(t, err)
	assert.Contains(t, string(meta), "Meta-review")

	f, err := os.Open(filepath.Join(paperDir, output.ConcernsFile))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"concern", "claude-3.7-sonnet", "deepseek-r1"},
		{"Small sample", "True", "False"},
	}, rows)

	data, err := os.ReadFile(filepath.Join(paperDir, output.ResultsFile))
	require.NoError(t, err)
	var results map[string]any
	require.NoError(t, json.Unmarshal(data, &results))
	assert.Equal(t, "claude-3.7-sonnet", results["meta_review_model"])
	assert.Equal(t, map[string]any{"Alpha": "claude-3.7-sonnet", "Bravo": "deepseek-r1"}, results["reviewer_to_model"])
	assert.Len(t, results["individual_reviews"], 2)
}

func TestReview_ReusesExistingReviews(t *testing.T) {
	fake := &fakeModel{name: "claude-3.7-sonnet"}
	dir := setupCLI(t, map[string]*fakeModel{"claude-3.7-sonnet": fake})
	pdf := writePDF(t, dir, "paper.pdf")
	args := []string{"review", pdf, "--models", "claude-3.7-sonnet", "--no-meta-review", "--no-cache"}

	code, _, _ := run(t, args...)
	require.Equal(t, ExitSuccess, code)
	require.Equal(t, 1, fake.callCount())

	code, out, _ := run(t, args...)
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, 1, fake.callCount(), "Existing review should not be regenerated")
	assert.Contains(t, out, "Using existing review for claude-3.7-sonnet from ")
	assert.NotContains(t, out, "Processing models:")

	code, _, _ = run(t, append(args, "--overwrite")...)
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, 2, fake.callCount(), "--overwrite should regenerate the review")
}

func TestReview_CacheServesRepeatedRequests(t *testing.T) {
	fake := &fakeModel{name: "claude-3.7-sonnet"}
	dir := setupCLI(t, map[string]*fakeModel{"claude-3.7-sonnet": fake})
	pdf := writePDF(t, dir, "paper.pdf")

	code, _, _ := run(t, "review", pdf, "--models", "claude-3.7-sonnet", "--no-meta-review", "--output-dir", "first")
	require.Equal(t, ExitSuccess, code)
	code, _, _ = run(t, "review", pdf, "--models", "claude-3.7-sonnet", "--no-meta-review", "--output-dir", "second")
	require.Equal(t, ExitSuccess, code)

	assert.Equal(t, 1, fake.callCount(), "Second run should be served from the cache")
}

func TestReview_NoValidModels(t *testing.T) {
	dir := setupCLI(t, nil)
	pdf := writePDF(t, dir, "paper.pdf")

	code, out, errOut := run(t, "review", pdf, "--models", "gpt-2,bogus")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, out, "No valid models specified. Available models: ")
	assert.Contains(t, errOut, "ignoring unknown model(s): gpt-2, bogus")
}

func TestReview_AuthFailure(t *testing.T) {
	dir := setupCLI(t, nil)
	pdf := writePDF(t, dir, "paper.pdf")

	code, _, errOut := run(t, "review", pdf, "--models", "gpt4-o1,deepseek-r1", "--no-meta-review")
	assert.Equal(t, ExitAuthError, code)
	assert.Contains(t, errOut, "no API key configured")
}

func TestReview_PartialFailure(t *testing.T) {
	fakes := map[string]*fakeModel{
		"claude-3.7-sonnet": {name: "claude-3.7-sonnet"},
		"deepseek-r1":       {name: "deepseek-r1", err: assert.AnError},
	}
	dir := setupCLI(t, fakes)
	pdf := writePDF(t, dir, "paper.pdf")

	code, out, errOut := run(t, "review", pdf, "--models", "claude-3.7-sonnet,deepseek-r1", "--no-meta-review")
	require.Equal(t, ExitSuccess, code, "stdout: %s\nstderr: %s", out, errOut)

	data, err := os.ReadFile(filepath.Join(dir, "papers", "paper", output.ResultsFile))
	require.NoError(t, err)
	var results map[string]any
	require.NoError(t, json.Unmarshal(data, &results))
	assert.Contains(t, results["failures"], "deepseek-r1")
	assert.NotContains(t, results, "meta_review")
}

func TestReview_AllModelsFail(t *testing.T) {
	fake := &fakeModel{name: "claude-3.7-sonnet", err: assert.AnError}
	dir := setupCLI(t, map[string]*fakeModel{"claude-3.7-sonnet": fake})
	pdf := writePDF(t, dir, "paper.pdf")

	code, _, _ := run(t, "review", pdf, "--models", "claude-3.7-sonnet")
	assert.Equal(t, ExitRuntimeError, code)
}

func TestReview_PaperErrors(t *testing.T) {
	dir := setupCLI(t, map[string]*fakeModel{"claude-3.7-sonnet": {name: "claude-3.7-sonnet"}})
	pdf := writePDF(t, dir, "paper.pdf")

	tests := map[string]struct {
		err  error
		want int
	}{
		"Not a PDF is a usage error":    {err: paper.ErrNotPDF, want: ExitUsageError},
		"No text is a runtime error":    {err: paper.ErrNoText, want: ExitRuntimeError},
		"Not a file is a usage error":   {err: paper.ErrNotFile, want: ExitUsageError},
		"Unexpected is a runtime error": {err: assert.AnError, want: ExitRuntimeError},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			loadPaper = func(string) (paper.Paper, error) { return paper.Paper{}, tc.err }
			code, _, _ := run(t, "review", pdf, "--models", "claude-3.7-sonnet", "--overwrite")
			assert.Equal(t, tc.want, code)
		})
	}
}

func TestReview_DirectoryIsUsageError(t *testing.T) {
	dir := setupCLI(t, nil)

	code, _, errOut := run(t, "review", dir)
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, errOut, "is a directory")
}

func TestModelsDoctor(t *testing.T) {
	fakes := map[string]*fakeModel{
		"claude-3.7-sonnet": {name: "claude-3.7-sonnet"},
		"deepseek-r1":       {name: "deepseek-r1", err: assert.AnError},
	}
	setupCLI(t, fakes)

	tests := map[string]struct {
		models string
		want   int
	}{
		"All reachable":        {models: "claude-3.7-sonnet", want: ExitSuccess},
		"Missing credentials":  {models: "gpt4-o1,gemini-2.5-pro", want: ExitAuthError},
		"Provider failure":     {models: "claude-3.7-sonnet,deepseek-r1", want: ExitRuntimeError},
		"Mixed failures":       {models: "gpt4-o1,deepseek-r1", want: ExitRuntimeError},
		"Unknown model errors": {models: "bogus", want: ExitUsageError},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			code, out, _ := run(t, "models", "doctor", "--models", tc.models)
			assert.Equal(t, tc.want, code, "stdout: %s", out)
		})
	}
}

func TestModelsDoctor_PingBudget(t *testing.T) {
	fakes := map[string]*fakeModel{
		"gemini-2.5-pro":    {name: "gemini-2.5-pro"},
		"deepseek-r1":       {name: "deepseek-r1"},
		"claude-3.7-sonnet": {name: "claude-3.7-sonnet"},
	}
	setupCLI(t, fakes)

	code, out, _ := run(t, "models", "doctor", "--models", "gemini-2.5-pro,deepseek-r1,claude-3.7-sonnet")
	require.Equal(t, ExitSuccess, code, "stdout: %s", out)

	assert.Equal(t, reasoningPingTokens, fakes["gemini-2.5-pro"].lastRequest().MaxTokens,
		"Gemini 2.5 cannot skip thinking and needs room to answer")
	assert.Equal(t, reasoningPingTokens, fakes["deepseek-r1"].lastRequest().MaxTokens)
	assert.Equal(t, pingTokens, fakes["claude-3.7-sonnet"].lastRequest().MaxTokens)
}

func TestReview_ConfiguredPrompt(t *testing.T) {
	fake := &fakeModel{name: "claude-3.7-sonnet"}
	dir := setupCLI(t, map[string]*fakeModel{"claude-3.7-sonnet": fake})
	pdf := writePDF(t, dir, "paper.pdf")
	cfgPath := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"prompts:\n  review: \"Assess critically:\\n{paper_text}\"\n  system: \"You are strict.\"\n"), 0o600))

	code, out, _ := run(t, "--config-file", cfgPath, "review", pdf, "--models", "claude-3.7-sonnet", "--no-meta-review")
	require.Equal(t, ExitSuccess, code, "stdout: %s", out)

	req := fake.lastRequest()
	assert.Equal(t, "You are strict.", req.SystemPrompt)
	assert.Equal(t, "Assess critically:\nWe study things.", req.UserPrompt)
}

func TestReview_LastMetaReviewFlagWins(t *testing.T) {
	tests := map[string]struct {
		flags []string

		wantMeta bool
	}{
		"Default generates":        {wantMeta: true},
		"Negated":                  {flags: []string{"--no-meta-review"}},
		"Negated then enabled":     {flags: []string{"--no-meta-review", "--meta-review"}, wantMeta: true},
		"Enabled then negated":     {flags: []string{"--meta-review", "--no-meta-review"}},
		"Explicit false negation":  {flags: []string{"--no-meta-review=false"}, wantMeta: true},
		"Explicit false on enable":   {flags: []string{"--meta-review=false"}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			fake := &fakeModel{name: "claude-3.7-sonnet"}
			dir := setupCLI(t, map[string]*fakeModel{"claude-3.7-sonnet": fake})
			pdf := writePDF(t, dir, "paper.pdf")

			args := append([]string{"review", pdf, "--models", "claude-3.7-sonnet", "--meta-model", "claude-3.7-sonnet"}, tc.flags...)
			code, out, _ := run(t, args...)
			require.Equal(t, ExitSuccess, code, "stdout: %s", out)

			if tc.wantMeta {
				assert.Contains(t, out, "Generating meta-review...")
				assert.FileExists(t, filepath.Join(dir, "papers", "paper", output.MetaReviewFile))
				return
			}
			assert.NotContains(t, out, "Generating meta-review...")
			assert.NoFileExists(t, filepath.Join(dir, "papers", "paper", output.MetaReviewFile))
		})
	}
}

func TestReview_LastOverwriteFlagWins(t *testing.T) {
	fake := &fakeModel{name: "claude-3.7-sonnet"}
	dir := setupCLI(t, map[string]*fakeModel{"claude-3.7-sonnet": fake})
	pdf := writePDF(t, dir, "paper.pdf")
	args := []string{"review", pdf, "--models", "claude-3.7-sonnet", "--no-meta-review", "--no-cache"}

	code, _, _ := run(t, args...)
	require.Equal(t, ExitSuccess, code)
	require.Equal(t, 1, fake.callCount())

	code, _, _ = run(t, append(args, "--overwrite", "--no-overwrite")...)
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, 1, fake.callCount(), "--no-overwrite given last keeps the existing review")

	code, _, _ = run(t, append(args, "--no-overwrite", "--overwrite")...)
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, 2, fake.callCount(), "--overwrite given last regenerates the review")
}

func TestInvertedBool(t *testing.T) {
	t.Parallel()

	v := true
	b := &invertedBool{p: &v}
	assert.Equal(t, "false", b.String())
	assert.Equal(t, "bool", b.Type())

	require.NoError(t, b.Set("true"))
	assert.False(t, v)
	assert.Equal(t, "true", b.String())

	require.NoError(t, b.Set("false"))
	assert.True(t, v)

	require.Error(t, b.Set("maybe"))
	assert.True(t, v, "a bad value leaves the setting alone")
}
