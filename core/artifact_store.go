package core

// ArtifactStore persists binary artifacts scoped by session. Implementations
// must be safe for concurrent use. Short method names mirror the other
// *Store interfaces.
type ArtifactStore interface {
	Save(sessionID, artifactID string, data []byte) error
	Get(sessionID, artifactID string) ([]byte, error)
	List(sessionID string) ([]string, error)
	Delete(sessionID, artifactID string) error
}
