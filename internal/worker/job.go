package worker

import (
	"time"
)

// Kind selects what a job does.
type Kind string

const (
	// KindCreate takes a snapshot; retention follows when the set has no
	// prune schedule of its own.
	KindCreate Kind = "create"
	// KindPrune runs a retention pass only.
	KindPrune Kind = "prune"
)

// Job represents a snapshot or retention request submitted to the worker.
type Job struct {
	Set         string
	Kind        Kind
	RunID       string // correlation id carried into every log line
	Source      string // scheduler, api, cli
	RequestedAt time.Time
}

// Key identifies the mailbox slot of a job. A pending create and a pending
// prune of the same set do not replace each other.
type Key struct {
	Set  string
	Kind Kind
}

func (j Job) Key() Key {
	return Key{Set: j.Set, Kind: j.Kind}
}
