package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/semkit/semkit/core"
)

// StoredMemory is the internal representation persisted by InMemoryStore.
type StoredMemory struct {
	ID       string
	Content  string
	Metadata map[string]any
	Created  time.Time
}

// InMemoryStore is a process-local MemoryStore. It offers:
//  1. Session scoped key/value memory (Get / Put)
//  2. Append-only stored memories with keyword-scored Search
//
// Search lowercases the query, splits it on whitespace and scores each stored
// memory by the number of keywords its content contains. Zero-score entries
// are dropped and results are returned highest score first, insertion order
// breaking ties. Suitable for demos and tests; swap for a vector index when
// real semantic retrieval is needed.
type InMemoryStore struct {
	mu      sync.RWMutex
	memory  map[string]map[string]any // sessionID -> key -> value
	storage map[string][]StoredMemory // sessionID -> stored memories in insertion order
	nextID  map[string]int            // sessionID -> next id suffix, never reused after Delete
}

// NewInMemoryStore creates a new in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		memory:  make(map[string]map[string]any),
		storage: make(map[string][]StoredMemory),
		nextID:  make(map[string]int),
	}
}

// Get returns a shallow copy of the key/value memory map for the session.
func (m *InMemoryStore) Get(sessionID string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessionMemory, exists := m.memory[sessionID]
	if !exists {
		return make(map[string]any), nil
	}
	result := make(map[string]any, len(sessionMemory))
	for k, v := range sessionMemory {
		result[k] = v
	}
	return result, nil
}

// Put merges the provided delta map into the session's key/value memory.
func (m *InMemoryStore) Put(sessionID string, delta map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.memory[sessionID]; !exists {
		m.memory[sessionID] = make(map[string]any)
	}
	for k, v := range delta {
		m.memory[sessionID][k] = v
	}
	return nil
}

// Search scores stored memories by keyword overlap with the query and returns
// the top matches up to limit. An empty query matches everything with score 0.
func (m *InMemoryStore) Search(sessionID string, query string, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, exists := m.storage[sessionID]
	if !exists {
		return []core.SearchResult{}, nil
	}

	keywords := strings.Fields(strings.ToLower(query))

	results := make([]core.SearchResult, 0, len(stored))
	for _, sm := range stored {
		score := keywordScore(sm.Content, keywords)
		if score == 0 && len(keywords) > 0 {
			continue
		}

		md := make(map[string]any, len(sm.Metadata))
		for k, v := range sm.Metadata {
			md[k] = v
		}

		results = append(results, core.SearchResult{
			ID:       sm.ID,
			Content:  sm.Content,
			Score:    score,
			Metadata: md,
		})
	}

	// Stable sort keeps insertion order for equal scores
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// keywordScore counts how many of the keywords the content contains.
func keywordScore(content string, keywords []string) float64 {
	lowered := strings.ToLower(content)
	score := 0.0
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			score++
		}
	}
	return score
}

// Store appends a new stored memory generating a simple incremental id.
func (m *InMemoryStore) Store(sessionID string, content string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}

	memoryID := fmt.Sprintf("mem_%d", m.nextID[sessionID])
	m.nextID[sessionID]++
	m.storage[sessionID] = append(m.storage[sessionID], StoredMemory{
		ID:       memoryID,
		Content:  content,
		Metadata: md,
		Created:  time.Now(),
	})
	return nil
}

// Delete removes a stored memory entry by id.
func (m *InMemoryStore) Delete(sessionID string, memoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.storage[sessionID]
	if !exists {
		return fmt.Errorf("memory not found")
	}
	for i, sm := range stored {
		if sm.ID == memoryID {
			m.storage[sessionID] = append(stored[:i], stored[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("memory not found")
}
