package catalog

import (
	"fmt"

	"github.com/raoulx24/snaprotate/internal/config"
	"github.com/raoulx24/snaprotate/internal/fs"
)

// OpenConfigured opens the catalog on the configured backend.
func OpenConfigured(cc config.CatalogConfig, filesystem fs.FS) (*Catalog, error) {
	var store Store
	switch cc.Backend {
	case "memory":
		store = NewMemoryStore()
	case "", "file":
		if filesystem == nil {
			filesystem = fs.New()
		}
		store = NewFileStore(cc.Path, filesystem)
	case "badger":
		b, err := OpenBadgerStore(cc.Path)
		if err != nil {
			return nil, err
		}
		store = b
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cc.Backend)
	}

	c, err := Open(store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return c, nil
}
