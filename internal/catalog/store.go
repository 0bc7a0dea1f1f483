package catalog

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/raoulx24/snaprotate/internal/snapshot"
)

// Record is the persisted form of a snapshot, keyed by (Set, ID).
type Record struct {
	Set       string          `yaml:"set" json:"set"`
	ID        snapshot.ID     `yaml:"id" json:"id"`
	Basis     snapshot.ID     `yaml:"basis,omitempty" json:"basis,omitempty"`
	Status    snapshot.Status `yaml:"status" json:"status"`
	SizeBytes *int64          `yaml:"sizeBytes,omitempty" json:"sizeBytes,omitempty"`
	CreatedAt time.Time       `yaml:"createdAt" json:"createdAt"`
}

func RecordOf(s snapshot.Snapshot) Record {
	return Record{
		Set:       s.Set,
		ID:        s.ID,
		Basis:     s.Basis,
		Status:    s.Status,
		SizeBytes: s.SizeBytes,
		CreatedAt: s.CreatedAt.UTC(),
	}
}

func (r Record) Snapshot() snapshot.Snapshot {
	return snapshot.Snapshot{
		ID:        r.ID,
		Set:       r.Set,
		Basis:     r.Basis,
		Status:    r.Status,
		SizeBytes: r.SizeBytes,
		CreatedAt: r.CreatedAt,
	}
}

func (r Record) key() string { return r.Set + "/" + string(r.ID) }

// Store persists catalog records. Implementations need not be safe for
// concurrent use; the Catalog serializes calls.
type Store interface {
	Load() ([]Record, error)
	// LoadSet reads the current records of one set, including changes
	// made through other handles on the same storage.
	LoadSet(set string) ([]Record, error)
	Put(Record) error
	Delete(set string, id snapshot.ID) error
	Close() error
}

// MemoryStore keeps records in a map; nothing survives the process.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record)}
}

func (m *MemoryStore) Load() ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedRecords(m.recs), nil
}

func (m *MemoryStore) LoadSet(set string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return recordsOf(m.recs, set), nil
}

func (m *MemoryStore) Put(r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[r.key()] = r
	return nil
}

func (m *MemoryStore) Delete(set string, id snapshot.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, Record{Set: set, ID: id}.key())
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func sortedRecords(recs map[string]Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Record) int {
		return strings.Compare(a.key(), b.key())
	})
	return out
}

// recordsOf returns the records of set, sorted by id.
func recordsOf(recs map[string]Record, set string) []Record {
	out := make([]Record, 0)
	for _, r := range recs {
		if r.Set == set {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b Record) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out
}
