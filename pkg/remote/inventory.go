package remote

import (
	"context"
	"fmt"

	"github.com/bulksync/bulksync/pkg/manifest"
)

// Inventory lists the destination and returns a map keyed by relative path.
// A listing failure is fatal for the run and wraps ErrUnavailable.
func Inventory(ctx context.Context, store Store, includes, excludes []string) (map[string]Object, error) {
	objects, err := store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	inventory := make(map[string]Object, len(objects))
	for _, obj := range objects {
		matched, err := manifest.Matches(obj.Path, includes, excludes)
		if err != nil {
			return nil, fmt.Errorf("check filter for %s: %w", obj.Path, err)
		}
		if !matched {
			continue
		}
		inventory[obj.Path] = obj
	}

	return inventory, nil
}

// TotalSize sums object sizes, for the size report.
func TotalSize(inventory map[string]Object) (count int, bytes int64) {
	for _, obj := range inventory {
		count++
		bytes += obj.Size
	}
	return count, bytes
}
