package policy

import (
	"context"
	"fmt"
)

// The filter list a fresh deployment starts with.
var DefaultTerms = []FilterTerm{
	{Term: "profanity1", Category: CategoryProfanity, DeleteMessage: true, WarnUser: true, MuteAfter: 3, BanAfter: 5},
	{Term: "spam1", Category: CategorySpam, DeleteMessage: true, WarnUser: true, AutoMute: true, MuteAfter: 3, BanAfter: 5},
	{Term: "freecoin", Category: CategorySpam, DeleteMessage: true, WarnUser: true, MuteAfter: 3, BanAfter: 5},
	{Term: "clickhere", Category: CategorySpam, DeleteMessage: true, WarnUser: true, AutoMute: true, MuteAfter: 2, BanAfter: 5},
	{Term: "harassment1", Category: CategoryHarassment, DeleteMessage: true, WarnUser: true, AutoMute: true, MuteAfter: 2, AutoBan: true, BanAfter: 4},
}

// Inserts DefaultTerms if the store has no terms at all. Returns the number of terms created.
func SeedDefaultTerms(ctx context.Context, store Store) (int, error) {
	existing, err := store.ListTerms(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for i, t := range DefaultTerms {
		if _, err := store.CreateTerm(ctx, t); err != nil {
			return i, fmt.Errorf("seeding filter term %q: %w", t.Term, err)
		}
	}
	return len(DefaultTerms), nil
}
