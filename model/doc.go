// Package model defines the normalized request/response types exchanged with
// language model providers, the Model interface driven by flows, and a
// MockModel for tests and offline runs. Provider adapters live in the
// subpackages openai and anthropic.
package model
