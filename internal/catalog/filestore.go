package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/raoulx24/snaprotate/internal/fs"
	"github.com/raoulx24/snaprotate/internal/lock"
	"github.com/raoulx24/snaprotate/internal/snapshot"
)

// FileStore keeps the whole catalog in one YAML document and rewrites it
// atomically on every change. Catalogs hold at most a few thousand
// records, so a full rewrite is fine. Each change re-reads the document
// under an advisory lock on <path>.lock and applies only its own record,
// so processes sharing the file do not overwrite each other.
type FileStore struct {
	path string
	fs   fs.FS
}

type fileDoc struct {
	Version   int      `yaml:"version"`
	Snapshots []Record `yaml:"snapshots"`
}

const fileDocVersion = 1

func NewFileStore(path string, filesystem fs.FS) *FileStore {
	if filesystem == nil {
		filesystem = fs.New()
	}
	return &FileStore{path: path, fs: filesystem}
}

func (f *FileStore) Load() ([]Record, error) {
	recs, err := f.read()
	if err != nil {
		return nil, err
	}
	return sortedRecords(recs), nil
}

func (f *FileStore) LoadSet(set string) ([]Record, error) {
	recs, err := f.read()
	if err != nil {
		return nil, err
	}
	return recordsOf(recs, set), nil
}

func (f *FileStore) Put(r Record) error {
	return f.update(func(recs map[string]Record) {
		recs[r.key()] = r
	})
}

func (f *FileStore) Delete(set string, id snapshot.ID) error {
	return f.update(func(recs map[string]Record) {
		delete(recs, Record{Set: set, ID: id}.key())
	})
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) read() (map[string]Record, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]Record), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshalling catalog file: %w", err)
	}
	if doc.Version != 0 && doc.Version != fileDocVersion {
		return nil, fmt.Errorf("catalog file version %d not supported", doc.Version)
	}

	recs := make(map[string]Record, len(doc.Snapshots))
	for _, r := range doc.Snapshots {
		if _, err := snapshot.ParseID(string(r.ID)); err != nil {
			return nil, fmt.Errorf("catalog file: set %s: %w", r.Set, err)
		}
		recs[r.key()] = r
	}
	return recs, nil
}

// update applies one change to the current file contents under the lock.
func (f *FileStore) update(apply func(map[string]Record)) (err error) {
	unlock, err := lock.LockFile(f.path + ".lock")
	if err != nil {
		return err
	}
	defer func() {
		if uerr := unlock(); err == nil {
			err = uerr
		}
	}()

	recs, err := f.read()
	if err != nil {
		return err
	}
	apply(recs)

	doc := fileDoc{Version: fileDocVersion, Snapshots: sortedRecords(recs)}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshalling catalog: %w", err)
	}
	return f.fs.WriteFileAtomic(context.Background(), f.path, data)
}
