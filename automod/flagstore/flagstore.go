// Sets of string flags attached to a key. Used to remember which offense categories a user has triggered.
package flagstore

import (
	"context"
)

type FlagStore interface {
	// Returns flags in sorted order. Unknown keys return an empty list.
	Get(ctx context.Context, key string) ([]string, error)
	Add(ctx context.Context, key string, flags []string) error
	// Does not error if flags (or the key) are missing.
	Remove(ctx context.Context, key string, flags []string) error
}

func UserKey(userID string) string {
	return "user/" + userID
}
