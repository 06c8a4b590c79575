package core

// SearchResult is a retrieved memory entry with its relevance score.
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// MemoryStore persists and retrieves long-term memory for a session: a
// key/value scratch space plus searchable stored entries. Implementations may
// back Search with embeddings or keyword heuristics.
type MemoryStore interface {
	Get(sessionID string) (map[string]any, error)
	Put(sessionID string, delta map[string]any) error
	Search(sessionID string, query string, limit int) ([]SearchResult, error)
	Store(sessionID string, content string, metadata map[string]any) error
	Delete(sessionID string, memoryID string) error
}
