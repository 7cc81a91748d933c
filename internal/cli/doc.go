// Package cli wires together the Cobra command tree for the ai-peer-review
// binary.
//
// It defines the root command and all subcommands (review, config,
// list-models, models, cache, version), binds flags, reads configuration,
// invokes the review engine, and maps failures to exit codes: 2 for usage
// errors, 3 when no model could authenticate, 4 for other runtime errors.
package cli
