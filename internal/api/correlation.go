package api

import "sync"

// CorrelationStore records the most recent backend-issued request id,
// globally and per URL. It is constructed per client rather than held
// in package state so tests and independent dashboards stay isolated.
// Newest value wins; there is no eviction beyond overwrite.
type CorrelationStore struct {
	mu    sync.RWMutex
	last  string
	byURL map[string]string
}

func NewCorrelationStore() *CorrelationStore {
	return &CorrelationStore{byURL: make(map[string]string)}
}

// Record stores id as the newest correlation id for url. Empty ids are
// ignored so a response without the header never clears prior state.
func (s *CorrelationStore) Record(url, id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = id
	s.byURL[url] = id
}

// Last returns the most recently observed request id across all URLs.
func (s *CorrelationStore) Last() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// ForURL returns the most recent request id observed for url.
func (s *CorrelationStore) ForURL(url string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byURL[url]
}

// Reset clears all recorded ids. Used at session boundaries and in tests.
func (s *CorrelationStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = ""
	s.byURL = make(map[string]string)
}
