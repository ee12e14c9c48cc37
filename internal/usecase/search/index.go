// Package search filters the group collection by a free-text query.
package search

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"ordito/internal/domain"
)

// Stats summarizes a filtered view for display.
type Stats struct {
	IsSearching   bool
	TotalGroups   int
	TotalCommands int
	FoundGroups   int
	FoundCommands int
	HasResults    bool
}

// Index holds the current query. It derives everything else from the groups
// passed in.
type Index struct {
	mu    sync.RWMutex
	query string
}

// NewIndex returns an Index with an empty query.
func NewIndex() *Index { return &Index{} }

// SetQuery replaces the current query.
func (i *Index) SetQuery(q string) {
	i.mu.Lock()
	i.query = q
	i.mu.Unlock()
}

// Query returns the current query.
func (i *Index) Query() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.query
}

// Filter applies the current query to groups.
func (i *Index) Filter(groups []domain.CommandGroup) []domain.CommandGroup {
	return Filter(groups, i.Query())
}

// Stats computes display stats for the current query.
func (i *Index) Stats(groups []domain.CommandGroup) Stats {
	return ComputeStats(groups, i.Query())
}

// Filter returns the groups matching q. An empty query returns groups
// itself. A group whose title matches keeps all of its commands; otherwise
// it keeps only the commands whose label or command line matches, and is
// dropped when none do. Order is preserved.
func Filter(groups []domain.CommandGroup, q string) []domain.CommandGroup {
	needle := fold(strings.TrimSpace(q))
	if needle == "" {
		return groups
	}

	out := make([]domain.CommandGroup, 0, len(groups))
	for _, g := range groups {
		if strings.Contains(fold(g.Title), needle) {
			out = append(out, g)
			continue
		}
		var matches []domain.Command
		for _, c := range g.Commands {
			if strings.Contains(fold(c.Label), needle) || strings.Contains(fold(c.Cmd), needle) {
				matches = append(matches, c)
			}
		}
		if len(matches) > 0 {
			out = append(out, domain.CommandGroup{ID: g.ID, Title: g.Title, Commands: matches})
		}
	}
	return out
}

// ComputeStats filters groups by q and counts before and after.
func ComputeStats(groups []domain.CommandGroup, q string) Stats {
	found := Filter(groups, q)
	st := Stats{
		IsSearching: strings.TrimSpace(q) != "",
		TotalGroups: len(groups),
		FoundGroups: len(found),
	}
	for _, g := range groups {
		st.TotalCommands += len(g.Commands)
	}
	for _, g := range found {
		st.FoundCommands += len(g.Commands)
	}
	st.HasResults = st.FoundGroups > 0
	return st
}

// fold applies Unicode case folding. A cases.Caser is stateful, so each
// call builds its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
