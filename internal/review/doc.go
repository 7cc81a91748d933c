// Package review runs a paper past several language models and consolidates
// what they say.
//
// [Engine.ProcessPaper] fans out one review request per model with bounded
// concurrency; a failing model is recorded and the others carry on.
// [Engine.MetaReview] anonymises the reviews behind NATO codes (Alpha,
// Bravo, ...) assigned in sorted model order and asks the meta model for a
// consolidated review. [Engine.ExtractConcerns] then asks the same model for a
// JSON table of concerns and maps reviewer codes back to model names.
//
// Prompt templates use {name} placeholders with {{ and }} as literal braces,
// matching Python's str.format, so existing prompt files keep working.
// Responses go through the cache keyed on model, parameters and prompts.
package review
