package index

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

// Loader reads the index artifact with a single-slot cache keyed by the
// file's declared createdAt. The cache lives for the process lifetime and
// is owned by the composition root, not a package global, so tests can run
// several loaders side by side. Concurrent misses may both re-parse the
// file; that is redundant work, never corruption.
type Loader struct {
	path   string
	logger *log.Logger

	mu        sync.Mutex
	createdAt time.Time
	cached    *Index
}

func NewLoader(path string, logger *log.Logger) *Loader {
	return &Loader{path: path, logger: logger}
}

// Load returns the index, or ok=false when the artifact is absent or
// unparseable. "Not ready" is a valid system state, not an error.
// Repeated loads with an unchanged createdAt return the identical cached
// object; only a changed timestamp forces a re-parse.
func (l *Loader) Load() (*Index, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if l.logger != nil && !os.IsNotExist(err) {
			l.logger.Printf("read index: %v", err)
		}
		return nil, false
	}

	// Probe only the declared timestamp before committing to a full parse.
	var probe struct {
		CreatedAt time.Time `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		if l.logger != nil {
			l.logger.Printf("parse index: %v", err)
		}
		return nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cached != nil && probe.CreatedAt.Equal(l.createdAt) {
		return l.cached, true
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		if l.logger != nil {
			l.logger.Printf("parse index: %v", err)
		}
		return nil, false
	}
	l.cached = &idx
	l.createdAt = idx.CreatedAt
	return l.cached, true
}
