// Package paper turns a PDF into plain text suitable for a review prompt.
//
// Text is extracted page by page; pages the PDF library cannot decode are
// skipped and logged. The result is NFKC-normalised so that typographic
// ligatures ("ﬁ", "ﬂ") become plain letters, and line-break hyphenation is
// repaired.
package paper
