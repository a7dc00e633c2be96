package credentials

import "sync"

// MemoryStore is a Store that keeps secrets in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]map[string]string
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: map[string]map[string]string{}}
}

// Get implements Store
func (m *MemoryStore) Get(service, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.secrets[service][account], nil
}

// Set implements Store
func (m *MemoryStore) Set(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.secrets[service] == nil {
		m.secrets[service] = map[string]string{}
	}
	m.secrets[service][account] = secret
	return nil
}
