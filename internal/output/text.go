package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dshills/ai-peer-review/internal/review"
)

// Review sources shown in the run summary.
const (
	SourceNew      = "new"
	SourceCached   = "cached"
	SourceExisting = "existing"
	SourceFailed   = "failed"
)

// ModelLine is one row of the run summary.
type ModelLine struct {
	Model  string
	Source string
	Path   string
	Err    error
}

// Summary describes a finished run for the terminal.
type Summary struct {
	Paper  string
	Dir    string
	Models []ModelLine
	Files  []string
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F85149"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B949E"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// TextWriter renders run results for a terminal.
type TextWriter struct{}

// WriteSummary prints which models reviewed the paper and the files written.
func (t *TextWriter) WriteSummary(w io.Writer, s Summary) error {
	ew := &errWriter{w: w}

	ew.println(titleStyle.Render("Peer review of " + s.Paper))
	ew.println(strings.Repeat("─", 60))
	for _, m := range s.Models {
		switch m.Source {
		case SourceFailed:
			ew.printf("%s %-20s %s\n", failStyle.Render("✗"), m.Model, failStyle.Render(fmt.Sprint(m.Err)))
		default:
			ew.printf("%s %-20s %s %s\n", okStyle.Render("✓"), m.Model, dimStyle.Render("("+m.Source+")"), m.Path)
		}
	}
	if len(s.Files) > 0 {
		ew.println("")
		ew.println(headerStyle.Render("Files in " + s.Dir))
		for _, f := range s.Files {
			ew.printf("  %s\n", f)
		}
	}
	return ew.err
}

// WriteConcerns prints the concerns table with a ✓ where a model raised the
// concern and a count column.
func (t *TextWriter) WriteConcerns(w io.Writer, ct review.ConcernTable) error {
	ew := &errWriter{w: w}
	if len(ct.Concerns) == 0 {
		ew.println("No concerns extracted.")
		return ew.err
	}

	headers := []string{headerStyle.Render("Concern")}
	for _, m := range ct.Models {
		headers = append(headers, headerStyle.Render(m))
	}
	headers = append(headers, headerStyle.Render("#"))

	rows := make([][]string, 0, len(ct.Concerns))
	for _, c := range ct.Concerns {
		row := []string{c.Description}
		for _, m := range ct.Models {
			mark := ""
			if c.RaisedBy[m] {
				mark = "✓"
			}
			row = append(row, mark)
		}
		row = append(row, fmt.Sprint(c.Count()))
		rows = append(rows, row)
	}

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col > 0 {
				return cellStyle.Align(lipgloss.Center)
			}
			return cellStyle
		})

	ew.println(tbl.String())
	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}
