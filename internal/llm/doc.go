// Package llm extracts transactions from email bodies with a hosted language model.
// It is the last resort after every provider parser has declined an email, and
// supports Anthropic and OpenAI with retries, rate limiting and result caching.
package llm
