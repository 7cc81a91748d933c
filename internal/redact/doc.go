// Package redact keeps credentials out of anything the tool prints or logs.
//
// [Secrets] scrubs text with regex heuristics covering common secret shapes
// (provider API keys, JWTs, bearer tokens, private key headers). Provider error
// bodies pass through it before they become error messages, since some APIs
// echo the rejected key back.
//
// [Key] masks a single credential for display in `config show`.
package redact
