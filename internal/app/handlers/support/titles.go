package support

import (
	"context"

	"bazaar/internal/app/policies"
)

// Titles returns a memoizing listing-title lookup. Unknown listings resolve to "".
func Titles(ctx context.Context, listings policies.ListingPort) func(string) string {
	cache := map[string]string{}
	return func(id string) string {
		if title, ok := cache[id]; ok {
			return title
		}
		title := ""
		if listings != nil {
			if info, err := listings.Listing(ctx, id); err == nil {
				title = info.Title
			}
		}
		cache[id] = title
		return title
	}
}
