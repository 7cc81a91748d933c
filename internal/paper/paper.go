package paper

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/ubuntu/decorate"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrNotFile is returned when the path is missing or not a regular file.
	ErrNotFile = errors.New("not a regular file")
	// ErrNotPDF is returned when the file does not start with a PDF header.
	ErrNotPDF = errors.New("not a PDF document")
	// ErrNoText is returned when no page yields any text, e.g. scanned papers.
	ErrNoText = errors.New("no extractable text")
)

// Paper is the text of a paper ready to be sent to a model.
type Paper struct {
	Path  string
	Stem  string
	Text  string
	Pages int
	// Skipped lists the 1-based page numbers that could not be read.
	Skipped []int
}

// Extractor returns the raw text of every page of a document, in order.
// A page that cannot be read is returned as an error for that page only.
type Extractor interface {
	Pages(path string) ([]string, []error, error)
}

// Load reads the PDF at path with the default extractor.
func Load(path string) (Paper, error) {
	return LoadWith(path, PDFExtractor{})
}

// LoadWith reads the document at path using ex.
func LoadWith(path string, ex Extractor) (p Paper, err error) {
	defer decorate.OnError(&err, "could not read paper %s", path)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Paper{}, fmt.Errorf("%w: file does not exist", ErrNotFile)
		}
		return Paper{}, err
	}
	if !info.Mode().IsRegular() {
		return Paper{}, ErrNotFile
	}
	if err := checkHeader(path); err != nil {
		return Paper{}, err
	}

	pages, pageErrs, err := ex.Pages(path)
	if err != nil {
		return Paper{}, err
	}

	p = Paper{Path: path, Stem: Stem(path), Pages: len(pages)}
	var parts []string
	for i, text := range pages {
		if i < len(pageErrs) && pageErrs[i] != nil {
			slog.Debug("Skipping unreadable page", "page", i+1, "error", pageErrs[i])
			p.Skipped = append(p.Skipped, i+1)
			continue
		}
		if text = Clean(text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return Paper{}, ErrNoText
	}
	p.Text = strings.Join(parts, "\n\n")

	slog.Info("Extracted paper text", "path", path, "pages", p.Pages, "skipped", len(p.Skipped), "chars", len(p.Text))
	return p, nil
}

// Stem returns the file name without its extension, used to name the
// paper's output directory.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func checkHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// The header may follow a few bytes of garbage; readers accept it within
	// the first kilobyte.
	head := make([]byte, 1024)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	if !bytes.Contains(head[:n], []byte("%PDF-")) {
		return ErrNotPDF
	}
	return nil
}

// PDFExtractor extracts page text with github.com/ledongthuc/pdf.
type PDFExtractor struct{}

// Pages implements [Extractor].
func (PDFExtractor) Pages(path string) (pages []string, pageErrs []error, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	defer f.Close()

	n := r.NumPage()
	pages = make([]string, n)
	pageErrs = make([]error, n)
	for i := 1; i <= n; i++ {
		pages[i-1], pageErrs[i-1] = pageText(r, i)
	}
	return pages, pageErrs, nil
}

// pageText reads one page. The PDF library panics on some malformed
// content streams, which only costs us that page.
func pageText(r *pdf.Reader, i int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed page: %v", rec)
		}
	}()

	page := r.Page(i)
	if page.V.IsNull() {
		return "", errors.New("missing page object")
	}
	return page.GetPlainText(nil)
}

var (
	hyphenBreak  = regexp.MustCompile(`(\p{L})-[ \t]*\n[ \t]*(\p{Ll})`)
	inlineSpace  = regexp.MustCompile(`[\t\f\v\p{Zs}]+`)
	trailing     = regexp.MustCompile(`(?m)[ ]+$`)
	leading      = regexp.MustCompile(`(?m)^[ ]+`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0e-\x1f\x7f]`)
)

// Clean normalises extracted text: NFKC folds ligatures and compatibility
// forms, words split across lines by a hyphen are rejoined, runs of
// horizontal whitespace collapse to one space and blank lines collapse to one.
func Clean(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = controlChars.ReplaceAllString(text, "")
	text = inlineSpace.ReplaceAllString(text, " ")
	text = trailing.ReplaceAllString(text, "")
	text = leading.ReplaceAllString(text, "")
	text = hyphenBreak.ReplaceAllString(text, "$1$2")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
