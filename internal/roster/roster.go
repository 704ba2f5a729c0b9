// Package roster merges per-group member lists into one entry per identity.
package roster

import (
	"slices"

	"github.com/aidar/groupmap/internal/domain"
)

// Entry is one visible user together with the groups they were seen through.
type Entry struct {
	User   domain.PositionedUser
	Groups []string // names of shared groups, in first-seen order
}

// Roster maps identity to entry. Iteration order is unspecified.
type Roster map[string]Entry

// Merge flattens group rosters into one entry per identity. When an identity
// appears in several groups, the copy from the last group in input order wins
// for every field, including location; group names accumulate.
func Merge(groups []domain.GroupRoster) Roster {
	merged := make(Roster)

	for _, gr := range groups {
		for _, member := range gr.Members {
			entry := merged[member.ID]
			entry.User = member
			if !slices.Contains(entry.Groups, gr.Group.Name) {
				entry.Groups = append(entry.Groups, gr.Group.Name)
			}
			merged[member.ID] = entry
		}
	}

	return merged
}
