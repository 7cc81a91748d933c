package review

import (
	"fmt"
	"strings"
)

// Prompt names accepted under the prompts key of the config file.
const (
	PromptSystem             = "system"
	PromptReview             = "review"
	PromptMetaReview         = "meta_review"
	PromptConcernsExtraction = "concerns_extraction"
)

const defaultSystemPrompt = `You are an experienced academic peer reviewer. You review papers carefully and fairly, judging novelty, methodology, correctness of claims, clarity, and relation to prior work. Write in Markdown.`

const defaultReviewPrompt = `Please provide a detailed peer review of the following academic paper.

Structure your review with these sections:
## Summary
A short summary of the paper's contributions.
## Strengths
## Weaknesses
## Major Concerns
Numbered list of issues that must be addressed.
## Minor Comments
## Questions for the Authors
## Recommendation
One of: Accept, Minor Revision, Major Revision, Reject, with a one-paragraph justification.

Paper:
{paper_text}`

const defaultMetaReviewPrompt = `You are the editor handling this paper. Below are {num_reviewers} independent peer reviews from reviewers {reviewer_codes}. Reviewer identities are anonymised; refer to reviewers only by their code.

Write a meta-review in Markdown that:
1. Summarises the paper and the overall assessment.
2. Lists the major concerns, noting which reviewers raised each one (e.g. "raised by Alpha and Charlie").
3. Notes points where reviewers disagree.
4. Ends with a recommendation to the authors.

{reviews}`

// Braces are doubled because this template is rendered by formatPrompt.
const defaultConcernsPrompt = "Based on the meta-review, extract all major concerns identified by reviewers.\n\n" +
	"Create a JSON object with a 'concerns' array. Each concern object should have:\n" +
	"1. A 'concern' field with a brief description\n" +
	"2. One field for each model: {model_names}\n" +
	"3. Each model field should be true if that model identified the concern, false otherwise\n\n" +
	"Example structure:\n" +
	"{{\n" +
	"  \"concerns\": [\n" +
	"    {{\n" +
	"      \"concern\": \"Brief description of concern 1\",\n" +
	"      \"{first_model}\": true,\n" +
	"      \"{second_model}\": false,\n" +
	"      ...\n" +
	"    }},\n" +
	"    ...\n" +
	"  ]\n" +
	"}}\n\n" +
	"Return only valid JSON without any explanation.\n\n" +
	"Meta-review:\n{meta_review_text}\n\n" +
	"Model name mapping (for reference):\n{model_mapping}"

var defaultPrompts = map[string]string{
	PromptSystem:             defaultSystemPrompt,
	PromptReview:             defaultReviewPrompt,
	PromptMetaReview:         defaultMetaReviewPrompt,
	PromptConcernsExtraction: defaultConcernsPrompt,
}

// PromptNames lists the templates a config may override.
func PromptNames() []string {
	return []string{PromptSystem, PromptReview, PromptMetaReview, PromptConcernsExtraction}
}

// DefaultPrompt returns the built-in template called name.
func DefaultPrompt(name string) string {
	return defaultPrompts[name]
}

// formatPrompt substitutes {name} placeholders in tmpl with values. "{{" and
// "}}" render as literal braces, so templates written for Python's
// str.format work unchanged. Unknown or malformed placeholders are errors.
func formatPrompt(tmpl string, values map[string]string) (string, error) {
	out, _, err := renderPrompt(tmpl, values)
	return out, err
}

// renderPrompt is formatPrompt that also reports which placeholders were
// substituted. Escaped braces never count as a placeholder.
func renderPrompt(tmpl string, values map[string]string) (string, map[string]bool, error) {
	var b strings.Builder
	b.Grow(len(tmpl))
	used := make(map[string]bool)

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '}':
			return "", nil, fmt.Errorf("single '}' encountered at offset %d", i)
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", nil, fmt.Errorf("unclosed '{' at offset %d", i)
			}
			name := tmpl[i+1 : i+1+end]
			if !isIdentifier(name) {
				return "", nil, fmt.Errorf("invalid placeholder {%s}", name)
			}
			v, ok := values[name]
			if !ok {
				return "", nil, fmt.Errorf("unknown placeholder {%s}", name)
			}
			b.WriteString(v)
			used[name] = true
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), used, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
