package harness

import (
	"context"
	"fmt"

	"github.com/weiihann/procbench/store"
	"github.com/weiihann/procbench/store/boltstore"
	"github.com/weiihann/procbench/store/memstore"
	"github.com/weiihann/procbench/store/sqlitestore"
	"github.com/weiihann/procbench/store/walstore"
)

// KnownStores returns the names of the registered store backends.
func KnownStores() []string {
	return []string{"wal", "bolt", "sqlite", "memory"}
}

// ResolveOpener returns the opener for the named backend.
func ResolveOpener(name string) (store.Opener, error) {
	switch name {
	case "wal":
		return opener(walstore.Open), nil
	case "bolt":
		return opener(boltstore.Open), nil
	case "sqlite":
		return opener(sqlitestore.Open), nil
	case "memory":
		return opener(memstore.Open), nil
	default:
		return nil, fmt.Errorf("%w: unknown store %q (known: %v)",
			ErrConfiguration, name, KnownStores())
	}
}

// opener adapts a backend's concrete Open to store.Opener, making sure a
// failed open yields a nil interface.
func opener[S store.Store](
	open func(context.Context, store.OpenOptions) (S, error),
) store.Opener {
	return func(ctx context.Context, opts store.OpenOptions) (store.Store, error) {
		s, err := open(ctx, opts)
		if err != nil {
			return nil, err
		}

		return s, nil
	}
}
