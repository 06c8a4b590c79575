// Package engine orchestrates agent execution: it owns the agent registry,
// starts runs, applies event side effects to the backing stores, persists
// events to session history and streams them to clients.
package engine
