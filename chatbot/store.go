package chatbot

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"
)

// Record is a finished exchange kept for the history view
type Record struct {
	ExchangeID string    `json:"exchange_id"`
	SessionID  string    `json:"session_id"`
	Message    string    `json:"message"`
	Answer     string    `json:"answer"`
	Status     string    `json:"status"`
	Title      string    `json:"title,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	Sources    []Source  `json:"sources,omitempty"`
	Activities []string  `json:"activities,omitempty"`
	Finished   time.Time `json:"finished"`
}

// NewRecord builds a Record from a finished exchange
func NewRecord(e *Exchange) *Record {
	s := e.State()
	return &Record{
		ExchangeID: e.ID,
		SessionID:  s.SessionID,
		Message:    e.Request.Message,
		Answer:     s.Display,
		Status:     s.Status.String(),
		Title:      s.Title,
		MessageID:  s.MessageID,
		Sources:    s.Sources,
		Activities: s.Activities,
		Finished:   time.Now(),
	}
}

// ExchangeStore defines the interface for finished exchange storage
type ExchangeStore interface {
	Get(id string) (*Record, error)
	Add(r *Record) error
	List() ([]*Record, error)
}

// LRUStore implements ExchangeStore with a byte-bounded LRU cache
type LRUStore struct {
	mu       sync.Mutex
	maxBytes int
	curBytes int
	cache    map[string]*list.Element
	lru      *list.List
}

type cacheEntry struct {
	id     string
	record *Record
	bytes  int
}

// NewLRUStore creates a new LRU exchange store
func NewLRUStore(maxBytes int) *LRUStore {
	return &LRUStore{
		maxBytes: maxBytes,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func (s *LRUStore) estimateBytes(r *Record) int {
	data, _ := json.Marshal(r)
	return len(data)
}

// Get retrieves a record by exchange ID, or nil if it was never added or has been evicted
func (s *LRUStore) Get(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.cache[id]; ok {
		s.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).record, nil
	}
	return nil, nil
}

// Add stores r, replacing any record with the same exchange ID
func (s *LRUStore) Add(r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bytes := s.estimateBytes(r)
	if elem, ok := s.cache[r.ExchangeID]; ok {
		entry := elem.Value.(*cacheEntry)
		s.curBytes += bytes - entry.bytes
		entry.record = r
		entry.bytes = bytes
		s.lru.MoveToFront(elem)
		s.evictIfNeeded(0)
		return nil
	}

	s.evictIfNeeded(bytes)

	entry := &cacheEntry{id: r.ExchangeID, record: r, bytes: bytes}
	s.cache[r.ExchangeID] = s.lru.PushFront(entry)
	s.curBytes += bytes

	return nil
}

// List returns stored records, most recently used first
func (s *LRUStore) List() ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]*Record, 0, s.lru.Len())
	for elem := s.lru.Front(); elem != nil; elem = elem.Next() {
		records = append(records, elem.Value.(*cacheEntry).record)
	}
	return records, nil
}

func (s *LRUStore) evictIfNeeded(additionalBytes int) {
	for s.curBytes+additionalBytes > s.maxBytes && s.lru.Len() > 0 {
		oldest := s.lru.Back()
		entry := oldest.Value.(*cacheEntry)
		s.lru.Remove(oldest)
		delete(s.cache, entry.id)
		s.curBytes -= entry.bytes
	}
}
