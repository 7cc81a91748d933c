package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/ai-peer-review/internal/providers"
)

var natoAlphabet = []string{
	"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf", "Hotel",
	"India", "Juliet", "Kilo", "Lima", "Mike", "November", "Oscar", "Papa",
	"Quebec", "Romeo", "Sierra", "Tango", "Uniform", "Victor", "Whiskey",
	"X-ray", "Yankee", "Zulu",
}

// ReviewerCodes assigns a NATO code to each model, in sorted model order so
// that the same set of reviews always gets the same codes.
func ReviewerCodes(models []string) map[string]string {
	sorted := append([]string(nil), models...)
	sort.Strings(sorted)

	codes := make(map[string]string, len(sorted))
	for i, m := range sorted {
		codes[reviewerCode(i)] = m
	}
	return codes
}

// overflowPrefix names reviewers past the end of the NATO alphabet.
const overflowPrefix = "Reviewer"

func reviewerCode(i int) string {
	if i < len(natoAlphabet) {
		return natoAlphabet[i]
	}
	return overflowPrefix + strconv.Itoa(i+1)
}

// codeIndex is the inverse of reviewerCode, -1 for foreign codes.
func codeIndex(code string) int {
	for i, c := range natoAlphabet {
		if c == code {
			return i
		}
	}
	if rest, ok := strings.CutPrefix(code, overflowPrefix); ok {
		if n, err := strconv.Atoi(rest); err == nil && n > len(natoAlphabet) {
			return n - 1
		}
	}
	return -1
}

// MetaReview asks the meta model to summarise reviews, keyed by model name,
// with every reviewer anonymised behind a NATO code.
func (e *Engine) MetaReview(ctx context.Context, reviews map[string]string) (Meta, error) {
	if len(reviews) == 0 {
		return Meta{}, errors.New("no reviews to summarise")
	}
	info, err := providers.Lookup(e.opts.MetaModel)
	if err != nil {
		return Meta{}, fmt.Errorf("meta-review model: %w", err)
	}

	models := make([]string, 0, len(reviews))
	for m := range reviews {
		models = append(models, m)
	}
	meta := Meta{Model: info.Name, ReviewerToModel: ReviewerCodes(models)}
	codes := meta.Codes()

	var b strings.Builder
	for _, code := range codes {
		fmt.Fprintf(&b, "## Reviewer %s\n\n%s\n\n", code, strings.TrimSpace(reviews[meta.ReviewerToModel[code]]))
	}

	user, err := formatPrompt(e.prompt(PromptMetaReview), map[string]string{
		"reviews":        strings.TrimSpace(b.String()),
		"reviewer_codes": strings.Join(codes, ", "),
		"num_reviewers":  strconv.Itoa(len(codes)),
	})
	if err != nil {
		return Meta{}, fmt.Errorf("meta-review prompt: %w", err)
	}

	e.emit(Event{Kind: EventStarted, Model: info.Name})
	resp, cached, err := e.generate(ctx, info, e.prompt(PromptSystem), user)
	if err != nil {
		e.emit(Event{Kind: EventFailed, Model: info.Name, Err: err})
		return Meta{}, fmt.Errorf("meta-review: %w", err)
	}
	kind := EventDone
	if cached {
		kind = EventCached
	}
	e.emit(Event{Kind: kind, Model: info.Name})

	meta.Text = resp.Content
	return meta, nil
}

// ExtractConcerns asks the meta model to tabulate the concerns of meta
// against models.
func (e *Engine) ExtractConcerns(ctx context.Context, meta Meta, models []string) (ConcernTable, error) {
	info, err := providers.Lookup(e.opts.MetaModel)
	if err != nil {
		return ConcernTable{}, fmt.Errorf("concerns model: %w", err)
	}

	var first, second string
	if len(models) > 0 {
		first = models[0]
	}
	if len(models) > 1 {
		second = models[1]
	}
	var mapping strings.Builder
	for _, code := range meta.Codes() {
		fmt.Fprintf(&mapping, "%s: %s\n", code, meta.ReviewerToModel[code])
	}

	user, err := formatPrompt(e.prompt(PromptConcernsExtraction), map[string]string{
		"model_names":      strings.Join(models, ", "),
		"first_model":      first,
		"second_model":     second,
		"meta_review_text": meta.Text,
		"model_mapping":    mapping.String(),
	})
	if err != nil {
		return ConcernTable{}, fmt.Errorf("concerns prompt: %w", err)
	}

	resp, _, err := e.generate(ctx, info, "", user)
	if err != nil {
		return ConcernTable{}, fmt.Errorf("concerns extraction: %w", err)
	}
	return parseConcerns(resp.Content, models, meta.ReviewerToModel)
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// parseConcerns decodes the first {...} span of text. Columns keyed by a
// reviewer code are mapped back to the model name; other unknown columns are
// dropped and missing models count as not having raised the concern.
func parseConcerns(text string, models []string, reviewerToModel map[string]string) (ConcernTable, error) {
	span := jsonObject.FindString(text)
	if span == "" {
		return ConcernTable{}, errors.New("no JSON object in concerns response")
	}

	var doc struct {
		Concerns *[]map[string]any `json:"concerns"`
	}
	if err := json.Unmarshal([]byte(span), &doc); err != nil {
		return ConcernTable{}, fmt.Errorf("invalid concerns JSON: %w", err)
	}
	if doc.Concerns == nil {
		return ConcernTable{}, errors.New(`concerns JSON has no "concerns" array`)
	}

	known := make(map[string]string, len(models)+len(reviewerToModel))
	for _, m := range models {
		known[strings.ToLower(m)] = m
	}
	for code, m := range reviewerToModel {
		known[strings.ToLower(code)] = m
		known["reviewer "+strings.ToLower(code)] = m
	}

	table := ConcernTable{Models: append([]string(nil), models...)}
	for _, entry := range *doc.Concerns {
		desc, _ := entry["concern"].(string)
		if desc = strings.TrimSpace(desc); desc == "" {
			continue
		}
		c := Concern{Description: desc, RaisedBy: make(map[string]bool, len(models))}
		for _, m := range models {
			c.RaisedBy[m] = false
		}
		for key, v := range entry {
			m, ok := known[strings.ToLower(strings.TrimSpace(key))]
			if !ok {
				continue
			}
			if _, selected := c.RaisedBy[m]; !selected {
				continue
			}
			c.RaisedBy[m] = c.RaisedBy[m] || truthy(v)
		}
		table.Concerns = append(table.Concerns, c)
	}
	return table, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "x", "1":
			return true
		}
	}
	return false
}
