// Package providers implements the Generator interface for each supported LLM
// provider and holds the catalog of review models.
//
// Supported providers: OpenAI, Anthropic (Claude), Google (Gemini), DeepSeek and
// Llama through Together AI. DeepSeek and Together speak the OpenAI chat
// completions protocol and share its client.
//
// All providers share a common retry helper with exponential back-off on rate
// limits and server errors. HTTP clients are plain struct fields so that tests
// can redirect calls to local httptest servers without making live API
// requests. Endpoints can be overridden with AI_PEER_REVIEW_<PROVIDER>_BASE_URL.
//
// Use [Lookup] to find a model and [New] to obtain its Generator.
package providers
