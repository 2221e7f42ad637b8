package contaazul

import (
	"fmt"

	"conta-sync-service/internal/record"
)

// DefaultPageSize is the upper bound the API enforces on most search
// endpoints.
const DefaultPageSize = 100

// maxPages guards against an endpoint that never returns a short page.
const maxPages = 1000

// FetchAllPages drives page-by-page retrieval starting at startPage until a
// page comes back with fewer items than pageSize (end of stream) or empty
// (immediate stop). Termination is solely by short-page detection; no total
// count is assumed.
func FetchAllPages(startPage, pageSize int, fetch func(page int) ([]record.Record, error)) ([]record.Record, error) {
	var all []record.Record

	page := startPage
	for fetched := 0; fetched < maxPages; fetched++ {
		items, err := fetch(page)
		if err != nil {
			return all, err
		}
		if len(items) == 0 {
			return all, nil
		}

		all = append(all, items...)
		if len(items) < pageSize {
			return all, nil
		}
		page++
	}

	return all, fmt.Errorf("pagination did not terminate after %d pages", maxPages)
}
