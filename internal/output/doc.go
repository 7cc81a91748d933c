// Package output writes review artefacts to disk and renders them for the
// terminal.
//
// A [Workspace] is the per-paper directory <output-dir>/<pdf stem>. It holds
// review_<model>.md for every model, meta_review.md, concerns_table.csv and
// results.json. Files are replaced atomically so an interrupted run never
// leaves a half-written review that a later run would reuse.
package output
