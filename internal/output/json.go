package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/ai-peer-review/internal/review"
)

// Results is the content of results.json.
type Results struct {
	RunID       string    `json:"run_id"`
	Paper       string    `json:"paper"`
	Models      []string  `json:"models"`
	GeneratedAt time.Time `json:"generated_at"`

	IndividualReviews map[string]string `json:"individual_reviews"`
	MetaReview        string            `json:"meta_review,omitempty"`
	MetaReviewModel   string            `json:"meta_review_model,omitempty"`
	ReviewerToModel   map[string]string `json:"reviewer_to_model,omitempty"`
	// Failures maps models that produced no review to the reason.
	Failures map[string]string `json:"failures,omitempty"`
}

// NewResults starts the results of a run over paperPath.
func NewResults(paperPath string, models []string) Results {
	return Results{
		RunID:             uuid.NewString(),
		Paper:             paperPath,
		Models:            models,
		GeneratedAt:       time.Now().UTC(),
		IndividualReviews: make(map[string]string),
	}
}

// SetMeta records the meta-review.
func (r *Results) SetMeta(meta review.Meta) {
	r.MetaReview = meta.Text
	r.MetaReviewModel = meta.Model
	r.ReviewerToModel = meta.ReviewerToModel
}

// AddFailure records why model produced no review.
func (r *Results) AddFailure(model string, err error) {
	if r.Failures == nil {
		r.Failures = make(map[string]string)
	}
	r.Failures[model] = err.Error()
}

// JSONWriter writes results as indented JSON.
type JSONWriter struct{}

func (j *JSONWriter) Write(w io.Writer, res Results) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}
