// Package merge combines a local catalog result set with a remote one into
// a single deduplicated, paginated collection. Every search-capable agent
// funnels its two-source results through here.
package merge

import (
	"strconv"
	"strings"

	"cinechat/internal/types"
)

// Meta is the unified pagination metadata of a merged result. The two
// sources paginate independently; HasMore is an OR of the per-source flags
// and page boundaries are not reconciled between them.
type Meta struct {
	Page          int  `json:"page"`
	PageSize      int  `json:"pageSize"`
	TotalLocal    int  `json:"totalLocal"`
	TotalRemote   int  `json:"totalRemote"`
	TotalCombined int  `json:"totalCombined"`
	HasMore       bool `json:"hasMore"`
}

// Result is the deduplicated, ordered combination of both sources.
type Result struct {
	Items []types.MovieItem `json:"items"`
	Meta  Meta              `json:"meta"`
}

// Options control one merge call.
type Options struct {
	Page     int
	PageSize int
	// Truncate caps the merged sequence at PageSize. Fixed-page call
	// sites (similar-item lookups) set it; incremental browse call sites
	// page each source independently and leave the merged page intact.
	Truncate bool
}

// Merge combines local and remote items. Local items come first in caller
// order; remote items that duplicate a local one are dropped (local wins),
// the rest follow in remote order. A missing remote result set (nil items,
// zero PageInfo) is a valid input: paging metadata then derives from the
// local side alone.
func Merge(local, remote []types.MovieItem, localTotal int, remotePage types.PageInfo, opts Options) Result {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = types.MaxAttachments
	}

	items := make([]types.MovieItem, 0, len(local)+len(remote))
	seen := make(map[string]struct{}, len(local))
	for _, it := range local {
		key := dedupKey(it)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, it)
	}

	duplicates := 0
	for _, it := range remote {
		key := dedupKey(it)
		if _, dup := seen[key]; dup {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		items = append(items, it)
	}

	if opts.Truncate && len(items) > pageSize {
		items = items[:pageSize]
	}

	totalCombined := localTotal + remotePage.TotalResults - duplicates
	if totalCombined < len(items) {
		totalCombined = len(items)
	}

	return Result{
		Items: items,
		Meta: Meta{
			Page:          page,
			PageSize:      pageSize,
			TotalLocal:    localTotal,
			TotalRemote:   remotePage.TotalResults,
			TotalCombined: totalCombined,
			HasMore:       localTotal > page*pageSize || remotePage.TotalPages > page,
		},
	}
}

// dedupKey derives the identity of an item: the remote id when present,
// otherwise the case-folded (title, year) pair.
func dedupKey(it types.MovieItem) string {
	if it.TMDBID != 0 {
		return "tmdb:" + strconv.Itoa(it.TMDBID)
	}
	return "title:" + strings.ToLower(strings.TrimSpace(it.Title)) + "|" + strconv.Itoa(it.Year)
}
