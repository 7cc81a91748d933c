package review

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dshills/ai-peer-review/internal/providers"
)

// Review is one model's peer review of a paper.
type Review struct {
	Model string `json:"model"`
	Text  string `json:"text"`
	// Cached is set when the text came from the response cache.
	Cached     bool          `json:"cached,omitempty"`
	Truncated  bool          `json:"truncated,omitempty"`
	TokensUsed int           `json:"tokens_used,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Failure records why a model produced no review.
type Failure struct {
	Model string
	Err   error
}

// Result collects the outcome of reviewing a paper with several models.
type Result struct {
	Reviews  map[string]Review
	Failures []Failure
}

// Models returns the names of the models that produced a review, sorted.
func (r Result) Models() []string {
	names := make([]string, 0, len(r.Reviews))
	for name := range r.Reviews {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllFailedError is returned by [Engine.ProcessPaper] when no model produced
// a review.
type AllFailedError struct {
	Failures []Failure
}

func (e *AllFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Model, f.Err))
	}
	return "all models failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the per-model errors to errors.Is and errors.As.
func (e *AllFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// AuthOnly reports whether every model failed for lack of valid credentials.
func (e *AllFailedError) AuthOnly() bool {
	if len(e.Failures) == 0 {
		return false
	}
	for _, f := range e.Failures {
		if !providers.IsAuthError(f.Err) {
			return false
		}
	}
	return true
}

// IsAuthFailure reports whether err means no model could authenticate.
func IsAuthFailure(err error) bool {
	var all *AllFailedError
	if errors.As(err, &all) {
		return all.AuthOnly()
	}
	return providers.IsAuthError(err)
}

// Meta is an anonymised meta-review.
type Meta struct {
	Model string `json:"model"`
	Text  string `json:"text"`
	// ReviewerToModel maps NATO codes (Alpha, Bravo, ...) to model names.
	ReviewerToModel map[string]string `json:"reviewer_to_model"`
}

// Codes returns the reviewer codes in assignment order.
func (m Meta) Codes() []string {
	codes := make([]string, 0, len(m.ReviewerToModel))
	for code := range m.ReviewerToModel {
		codes = append(codes, code)
	}
	// Foreign codes sort last, by name.
	rank := func(code string) int {
		if i := codeIndex(code); i >= 0 {
			return i
		}
		return math.MaxInt
	}
	sort.Slice(codes, func(i, j int) bool {
		ri, rj := rank(codes[i]), rank(codes[j])
		if ri != rj {
			return ri < rj
		}
		return codes[i] < codes[j]
	})
	return codes
}

// Concern is one issue raised in the meta-review, with the models that
// raised it.
type Concern struct {
	Description string
	RaisedBy    map[string]bool
}

// ConcernTable lists concerns against the models that reviewed the paper.
type ConcernTable struct {
	Models   []string
	Concerns []Concern
}

// Count returns how many models raised c.
func (c Concern) Count() int {
	var n int
	for _, raised := range c.RaisedBy {
		if raised {
			n++
		}
	}
	return n
}
