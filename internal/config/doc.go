// Package config loads and merges ai-peer-review configuration from multiple
// sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (AI_PEER_REVIEW_OUTPUT_DIR, AI_PEER_REVIEW_MODELS, ...)
//  3. Config file ($XDG_CONFIG_HOME/ai-peer-review/config.yaml, or --config-file;
//     YAML, JSON and TOML are read by extension)
//  4. Built-in defaults
//
// Provider credentials resolve separately: the provider's own environment
// variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY, DEEPSEEK_API_KEY,
// LLAMA_API_KEY) wins over api_keys.<service> in the config file. [LoadDotEnv]
// exports a .env file into the environment beforehand.
//
// Use [Load] to obtain a merged [Config], [Init] to write a default config
// file, and [SetAPIKey] to store a credential.
package config
