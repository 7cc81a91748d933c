package review

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewerCodes(t *testing.T) {
	t.Parallel()

	codes := ReviewerCodes([]string{"llama-4-maverick", "claude-3.7-sonnet", "gpt4-o1"})
	assert.Equal(t, map[string]string{
		"Alpha":   "claude-3.7-sonnet",
		"Bravo":   "gpt4-o1",
		"Charlie": "llama-4-maverick",
	}, codes)

	many := make([]string, 27)
	for i := range many {
		many[i] = string(rune('a'+i%26)) + string(rune('a'+i/26))
	}
	codes = ReviewerCodes(many)
	assert.Len(t, codes, 27)
	assert.Contains(t, codes, "Zulu")
	assert.Contains(t, codes, "Reviewer27")
}

func TestMeta_Codes(t *testing.T) {
	t.Parallel()

	m := Meta{ReviewerToModel: map[string]string{"Charlie": "c", "Alpha": "a", "Bravo": "b"}}
	assert.Equal(t, []string{"Alpha", "Bravo", "Charlie"}, m.Codes())
}

func TestMeta_CodesBeyondAlphabet(t *testing.T) {
	t.Parallel()

	models := make([]string, 30)
	for i := range models {
		models[i] = fmt.Sprintf("model-%02d", i)
	}
	m := Meta{ReviewerToModel: ReviewerCodes(models)}

	codes := m.Codes()
	require.Len(t, codes, 30, "every assigned code is listed")
	assert.Equal(t, "Alpha", codes[0])
	assert.Equal(t, "Zulu", codes[25])
	assert.Equal(t, []string{"Reviewer27", "Reviewer28", "Reviewer29", "Reviewer30"}, codes[26:])
	for i, code := range codes {
		assert.Equal(t, models[i], m.ReviewerToModel[code])
	}
}

func TestMetaReview(t *testing.T) {
	t.Parallel()

	meta := &fakeGenerator{content: "Consolidated: Alpha and Bravo both question the baselines."}
	e := NewEngine(factoryFor(map[string]*fakeGenerator{"gemini-2.5-pro": meta}), testOptions())

	got, err := e.MetaReview(context.Background(), map[string]string{
		"gpt4-o1":           "o1 thinks the baselines are weak.",
		"claude-3.7-sonnet": "claude thinks the baselines are weak too.",
	})
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-pro", got.Model)
	assert.Equal(t, "Consolidated: Alpha and Bravo both question the baselines.", got.Text)
	assert.Equal(t, map[string]string{"Alpha": "claude-3.7-sonnet", "Bravo": "gpt4-o1"}, got.ReviewerToModel)

	prompt := meta.lastRequest().UserPrompt
	assert.Contains(t, prompt, "## Reviewer Alpha\n\nclaude thinks")
	assert.Contains(t, prompt, "## Reviewer Bravo\n\no1 thinks")
	assert.Contains(t, prompt, "2 independent peer reviews from reviewers Alpha, Bravo")
	assert.NotContains(t, prompt, "claude-3.7-sonnet", "model names must not leak into the meta-review prompt")
	assert.NotContains(t, prompt, "gpt4-o1")
}

func TestMetaReview_Errors(t *testing.T) {
	t.Parallel()

	e := NewEngine(factoryFor(nil), testOptions())
	_, err := e.MetaReview(context.Background(), nil)
	require.Error(t, err, "no reviews")

	_, err = e.MetaReview(context.Background(), map[string]string{"gpt4-o1": "r"})
	require.True(t, IsAuthFailure(err), "meta model without credentials: %v", err)

	opts := testOptions()
	opts.MetaModel = "gpt-5"
	_, err = NewEngine(factoryFor(nil), opts).MetaReview(context.Background(), map[string]string{"gpt4-o1": "r"})
	require.Error(t, err, "unknown meta model")

	opts = testOptions()
	opts.MetaModel = "gpt4-o1"
	failing := map[string]*fakeGenerator{"gpt4-o1": {err: errors.New("boom")}}
	_, err = NewEngine(factoryFor(failing), opts).MetaReview(context.Background(), map[string]string{"gpt4-o1": "r"})
	require.ErrorContains(t, err, "boom")
}

func TestExtractConcerns(t *testing.T) {
	t.Parallel()

	response := "Here is the table:\n```json\n" + `{
  "concerns": [
    {"concern": "Weak baselines", "gpt4-o1": true, "claude-3.7-sonnet": true},
    {"concern": "No ablation", "Bravo": true, "unrelated": true}
  ]
}` + "\n```\nLet me know if you need more."

	fake := &fakeGenerator{content: response}
	e := NewEngine(factoryFor(map[string]*fakeGenerator{"gemini-2.5-pro": fake}), testOptions())

	meta := Meta{
		Text:            "META TEXT",
		ReviewerToModel: map[string]string{"Alpha": "claude-3.7-sonnet", "Bravo": "gpt4-o1"},
	}
	table, err := e.ExtractConcerns(context.Background(), meta, []string{"gpt4-o1", "claude-3.7-sonnet"})
	require.NoError(t, err)

	assert.Equal(t, []string{"gpt4-o1", "claude-3.7-sonnet"}, table.Models)
	require.Len(t, table.Concerns, 2)
	assert.Equal(t, "Weak baselines", table.Concerns[0].Description)
	assert.Equal(t, 2, table.Concerns[0].Count())
	assert.Equal(t, map[string]bool{"gpt4-o1": true, "claude-3.7-sonnet": false}, table.Concerns[1].RaisedBy,
		"reviewer codes map back to models and missing models are false")

	req := fake.lastRequest()
	assert.Empty(t, req.SystemPrompt)
	assert.Contains(t, req.UserPrompt, "One field for each model: gpt4-o1, claude-3.7-sonnet")
	assert.Contains(t, req.UserPrompt, `"gpt4-o1": true,`)
	assert.Contains(t, req.UserPrompt, `"claude-3.7-sonnet": false,`)
	assert.Contains(t, req.UserPrompt, "Meta-review:\nMETA TEXT")
	assert.Contains(t, req.UserPrompt, "Alpha: claude-3.7-sonnet\nBravo: gpt4-o1\n")
	assert.Contains(t, req.UserPrompt, "{\n  \"concerns\": [", "escaped braces render literally")
}

func TestExtractConcerns_CustomPrompt(t *testing.T) {
	t.Parallel()

	fake := &fakeGenerator{content: `{"concerns": []}`}
	opts := testOptions()
	opts.Prompts = map[string]string{PromptConcernsExtraction: "Models {model_names}; first {first_model}; second [{second_model}]"}

	table, err := NewEngine(factoryFor(map[string]*fakeGenerator{"gemini-2.5-pro": fake}), opts).
		ExtractConcerns(context.Background(), Meta{}, []string{"deepseek-r1"})
	require.NoError(t, err)
	assert.Empty(t, table.Concerns)
	assert.Equal(t, "Models deepseek-r1; first deepseek-r1; second []", fake.lastRequest().UserPrompt)
}

func TestParseConcerns(t *testing.T) {
	t.Parallel()

	models := []string{"a", "b"}
	codes := map[string]string{"Alpha": "a", "Bravo": "b"}

	tests := map[string]struct {
		text string

		want    []Concern
		wantErr bool
	}{
		"Plain object": {
			text: `{"concerns": [{"concern": "c1", "a": true, "b": false}]}`,
			want: []Concern{{Description: "c1", RaisedBy: map[string]bool{"a": true, "b": false}}},
		},
		"Loose truth values": {
			text: `{"concerns": [{"concern": "c1", "a": "yes", "b": 1}, {"concern": "c2", "a": "no", "b": 0}]}`,
			want: []Concern{
				{Description: "c1", RaisedBy: map[string]bool{"a": true, "b": true}},
				{Description: "c2", RaisedBy: map[string]bool{"a": false, "b": false}},
			},
		},
		"Reviewer prefix and case": {
			text: `{"concerns": [{"concern": "c1", "reviewer alpha": true, "BRAVO": true}]}`,
			want: []Concern{{Description: "c1", RaisedBy: map[string]bool{"a": true, "b": true}}},
		},
		"Entries without a concern are skipped": {
			text: `{"concerns": [{"a": true}, {"concern": "  "}, {"concern": "kept"}]}`,
			want: []Concern{{Description: "kept", RaisedBy: map[string]bool{"a": false, "b": false}}},
		},
		"Empty list": {text: `{"concerns": []}`},

		"No JSON":             {text: "I could not find concerns.", wantErr: true},
		"Invalid JSON":        {text: `{"concerns": [}`, wantErr: true},
		"No concerns key":     {text: `{"issues": []}`, wantErr: true},
		"Concerns not a list": {text: `{"concerns": "none"}`, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := parseConcerns(tc.text, models, codes)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models, got.Models)
			assert.Equal(t, tc.want, got.Concerns)
		})
	}
}
