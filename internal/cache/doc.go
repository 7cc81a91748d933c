// Package cache provides a file-based cache for model responses.
//
// Entries are keyed by [Key], a SHA-256 digest of the API model id, the
// generation parameters and every prompt sent. Each entry stores the raw
// response with its creation time; entries older than the TTL are treated as
// misses and removed on read.
//
// The default directory is $XDG_CACHE_HOME/ai-peer-review (or the
// OS-appropriate equivalent).
package cache
