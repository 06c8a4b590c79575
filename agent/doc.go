// Package agent provides the built-in agent implementations: ChatAgent for
// model-backed conversation with plugin function calling, plus Sequential,
// Parallel and Loop coordinators for composing agents into workflows.
package agent
