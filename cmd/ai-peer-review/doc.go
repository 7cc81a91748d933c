// Ai-peer-review sends an academic paper to several language models and
// collects their peer reviews.
//
// Each review is saved next to the others under <output-dir>/<paper name>.
// An editor model then writes an anonymised meta-review and a CSV table of
// which reviewer raised which concern.
//
// Usage:
//
//	ai-peer-review config openai sk-...          # store an API key
//	ai-peer-review list-models                   # show supported models
//	ai-peer-review review paper.pdf              # review with every model
//	ai-peer-review review paper.pdf --models gpt4-o1,claude-3.7-sonnet
//	ai-peer-review models doctor                 # check credentials
//	ai-peer-review cache clear                   # drop cached responses
package main
