package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryCache implementa un cache in-memory con LRU eviction
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List
	maxEntries int
	defaultTTL time.Duration
	stats      CacheStats

	stopOnce sync.Once
	stopCh   chan struct{}
}

// memoryEntry rappresenta un'entry nel cache con LRU metadata
type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache crea un nuovo cache in-memory
func NewMemoryCache(maxEntries int, defaultTTL time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}

	mc := &MemoryCache{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		stopCh:     make(chan struct{}),
	}

	go mc.cleanupExpired(time.Minute)

	return mc
}

// Get recupera un valore dal cache
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, exists := m.entries[key]
	if !exists {
		m.stats.Misses++
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*memoryEntry)

	if time.Now().After(entry.expiresAt) {
		m.removeElement(elem)
		m.stats.Misses++
		return nil, ErrCacheMiss
	}

	m.lru.MoveToFront(elem)
	m.stats.Hits++

	return entry.value, nil
}

// Set salva un valore nel cache
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl == 0 {
		ttl = m.defaultTTL
	}

	if elem, exists := m.entries[key]; exists {
		entry := elem.Value.(*memoryEntry)
		m.stats.Size += int64(len(value) - len(entry.value))
		entry.value = value
		entry.expiresAt = time.Now().Add(ttl)
		m.lru.MoveToFront(elem)
		m.stats.Sets++
		return nil
	}

	if m.lru.Len() >= m.maxEntries {
		m.evictOldest()
	}

	entry := &memoryEntry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}

	m.entries[key] = m.lru.PushFront(entry)
	m.stats.Sets++
	m.stats.Size += int64(len(value))

	return nil
}

// Delete rimuove un valore dal cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, exists := m.entries[key]; exists {
		m.removeElement(elem)
		m.stats.Deletes++
	}

	return nil
}

// Clear svuota il cache
func (m *MemoryCache) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*list.Element)
	m.lru.Init()
	m.stats.Size = 0

	return nil
}

// Stats restituisce le statistiche
func (m *MemoryCache) Stats() CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Len restituisce il numero di entry nel cache
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// Close ferma il cleanup periodico
func (m *MemoryCache) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// evictOldest rimuove l'entry meno recentemente usata (LRU)
func (m *MemoryCache) evictOldest() {
	elem := m.lru.Back()
	if elem != nil {
		m.removeElement(elem)
		m.stats.Evictions++
	}
}

// removeElement rimuove un elemento dal cache
func (m *MemoryCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	delete(m.entries, entry.key)
	m.lru.Remove(elem)
	m.stats.Size -= int64(len(entry.value))
}

// cleanupExpired rimuove periodicamente le entry scadute
func (m *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.removeExpired(time.Now())
		}
	}
}

func (m *MemoryCache) removeExpired(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var toRemove []*list.Element
	for elem := m.lru.Back(); elem != nil; elem = elem.Prev() {
		if now.After(elem.Value.(*memoryEntry).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		m.removeElement(elem)
	}
}
