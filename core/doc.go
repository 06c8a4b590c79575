// Package core defines the shared data model of the framework: events,
// content parts, sessions, run and function contexts, and the store
// interfaces implemented by the session, memory and artifact packages.
package core
