// Package snapshot holds the data model shared by the catalog, the
// retention engine and the orchestrator.
package snapshot

import (
	"fmt"
	"path/filepath"
	"time"
)

// IDLayout is the fixed-width, zero-padded layout of snapshot ids.
// Lexical order of ids equals chronological order.
const IDLayout = "20060102_150405"

// TempPrefix marks a snapshot directory that is still being written.
const TempPrefix = ".tmp-"

// ID identifies a snapshot within its backup set.
type ID string

// NewID formats t (in UTC) as a snapshot id.
func NewID(t time.Time) ID {
	return ID(t.UTC().Format(IDLayout))
}

// ParseID validates s as a snapshot id.
func ParseID(s string) (ID, error) {
	if len(s) != len(IDLayout) {
		return "", fmt.Errorf("invalid snapshot id %q: want layout %s", s, IDLayout)
	}
	if _, err := time.Parse(IDLayout, s); err != nil {
		return "", fmt.Errorf("invalid snapshot id %q: %w", s, err)
	}
	return ID(s), nil
}

// Time returns the instant encoded in the id, or the zero time if the id is malformed.
func (id ID) Time() time.Time {
	t, err := time.Parse(IDLayout, string(id))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func (id ID) String() string { return string(id) }

// Status is the lifecycle state of a snapshot.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Snapshot represents a single point-in-time capture of a backup set.
type Snapshot struct {
	ID        ID
	Set       string
	Basis     ID     // snapshot hard-linked against; empty for a full copy
	SizeBytes *int64 // nil until materialized
	Status    Status
	CreatedAt time.Time
}

// BackupSet is a named collection of snapshots sharing a root path set.
type BackupSet struct {
	Name       string
	RootPaths  []string
	Excludes   []string
	Target     string
	LatestLink string
}

// NewBackupSet builds a set, dropping duplicate root paths while keeping order.
func NewBackupSet(name, target string, roots, excludes []string) BackupSet {
	seen := make(map[string]struct{}, len(roots))
	var uniq []string
	for _, r := range roots {
		clean := filepath.Clean(r)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		uniq = append(uniq, clean)
	}
	return BackupSet{
		Name:      name,
		RootPaths: uniq,
		Excludes:  append([]string(nil), excludes...),
		Target:    target,
	}
}

// PathOf returns the storage directory of snapshot id.
func (b BackupSet) PathOf(id ID) string {
	return filepath.Join(b.Target, string(id))
}
