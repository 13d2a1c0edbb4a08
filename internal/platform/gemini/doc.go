// Package gemini provides an implementation of generation.Evaluator using
// Google's Gemini API through google.golang.org/genai.
package gemini
