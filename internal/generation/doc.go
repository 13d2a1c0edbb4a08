// Package generation defines the boundary between the task layer and
// external language model services. It abstracts the details of LLM API
// integration (Gemini), so jobs can request feedback on a learner's text
// without coupling to a specific provider.
package generation
