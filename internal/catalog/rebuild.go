package catalog

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/raoulx24/snaprotate/internal/fs"
	"github.com/raoulx24/snaprotate/internal/snapshot"
)

// Rebuild seeds an empty set from the snapshot directories under
// set.Target. Every directory named like a snapshot id is taken as
// complete and linked against its predecessor; everything else (the
// latest symlink, temp dirs, stray files) is ignored. It returns the ids
// imported.
func Rebuild(c *Catalog, set snapshot.BackupSet, filesystem fs.FS) ([]snapshot.ID, error) {
	if !c.Empty(set.Name) {
		return nil, fmt.Errorf("rebuild %s: catalog already has snapshots for this set", set.Name)
	}
	if filesystem == nil {
		filesystem = fs.New()
	}

	ids, err := scanSnapshotDirs(filesystem, set.Target)
	if err != nil {
		return nil, fmt.Errorf("rebuild %s: %w", set.Name, err)
	}

	var basis snapshot.ID
	for _, id := range ids {
		snap := snapshot.Snapshot{
			ID:        id,
			Basis:     basis,
			Status:    snapshot.StatusComplete,
			CreatedAt: id.Time(),
		}
		if err := c.Import(set.Name, snap); err != nil {
			return nil, err
		}
		basis = id
	}
	return ids, nil
}

// scanSnapshotDirs lists snapshot directories in ascending id order.
func scanSnapshotDirs(filesystem fs.FS, folder string) ([]snapshot.ID, error) {
	entries, err := filesystem.ReadDir(folder)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading folder: %w", err)
	}

	var ids []snapshot.ID
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		id, err := snapshot.ParseID(ent.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
