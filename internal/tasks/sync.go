package tasks

import "slices"

// NewVideoIDs returns the ids of listing missing from known, ascending and without duplicates.
// Empty ids are ignored.
func NewVideoIDs(listing []string, known map[string]struct{}) []string {
	fresh := make([]string, 0, len(listing))
	for _, id := range listing {
		if id == "" {
			continue
		}
		if _, ok := known[id]; ok {
			continue
		}
		fresh = append(fresh, id)
	}

	slices.Sort(fresh)
	return slices.Compact(fresh)
}
