package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ubuntu/decorate"

	"github.com/dshills/ai-peer-review/internal/fileutils"
	"github.com/dshills/ai-peer-review/internal/review"
)

// File names written in a paper's output directory.
const (
	MetaReviewFile = "meta_review.md"
	ConcernsFile   = "concerns_table.csv"
	ResultsFile    = "results.json"
)

// Workspace is the output directory of one paper, <base>/<paper stem>.
type Workspace struct {
	Dir string
}

// NewWorkspace creates the directory for the paper named stem under base.
func NewWorkspace(base, stem string) (Workspace, error) {
	if strings.TrimSpace(stem) == "" {
		return Workspace{}, fmt.Errorf("empty paper name")
	}
	dir := filepath.Join(base, stem)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("creating output directory: %w", err)
	}
	return Workspace{Dir: dir}, nil
}

// ReviewPath returns where the review of model is stored.
func (w Workspace) ReviewPath(model string) string {
	return filepath.Join(w.Dir, "review_"+safeName(model)+".md")
}

// ExistingReview returns a previously saved review of model, if any.
func (w Workspace) ExistingReview(model string) (string, bool, error) {
	path := w.ReviewPath(model)
	exists, err := fileutils.FileExists(path)
	if err != nil || !exists {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("reading existing review: %w", err)
	}
	return string(data), true, nil
}

// WriteReview saves the review of model and returns its path.
func (w Workspace) WriteReview(model, text string) (string, error) {
	return w.write(w.ReviewPath(model), []byte(text))
}

// WriteMetaReview saves the meta-review and returns its path.
func (w Workspace) WriteMetaReview(text string) (string, error) {
	return w.write(filepath.Join(w.Dir, MetaReviewFile), []byte(text))
}

// WriteConcerns saves table as CSV with a "concern" column followed by one
// True/False column per model, and returns its path.
func (w Workspace) WriteConcerns(table review.ConcernTable) (path string, err error) {
	defer decorate.OnError(&err, "could not write concerns table")

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	header := append([]string{"concern"}, table.Models...)
	if err := cw.Write(header); err != nil {
		return "", err
	}
	for _, c := range table.Concerns {
		row := make([]string, 0, len(header))
		row = append(row, c.Description)
		for _, m := range table.Models {
			row = append(row, pythonBool(c.RaisedBy[m]))
		}
		if err := cw.Write(row); err != nil {
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}

	return w.write(filepath.Join(w.Dir, ConcernsFile), buf.Bytes())
}

// WriteResults saves res as indented JSON and returns its path.
func (w Workspace) WriteResults(res Results) (string, error) {
	var buf bytes.Buffer
	if err := (&JSONWriter{}).Write(&buf, res); err != nil {
		return "", err
	}
	return w.write(filepath.Join(w.Dir, ResultsFile), buf.Bytes())
}

func (w Workspace) write(path string, data []byte) (string, error) {
	if err := fileutils.AtomicWrite(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// pythonBool keeps the CSV readable by the tools built around earlier
// versions of this output.
func pythonBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func safeName(model string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(model)
}
