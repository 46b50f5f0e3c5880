package listing

import (
	"slices"
	"strings"

	"github.com/simp-lee/denuncias-admin/internal/domain"
)

// Visible derives the displayed rows from the backing set. Predicates apply in
// a fixed order (status, plate, municipality, evidence) and the survivors are
// stably sorted by submission date, so rows with equal dates keep their
// backing order in both directions. backing is never modified.
func Visible(backing []domain.Complaint, f domain.FilterSpec) []domain.Complaint {
	f = f.Normalize()
	plate := strings.ToLower(f.LicensePlate)
	municipality := strings.ToLower(f.Municipality)

	out := make([]domain.Complaint, 0, len(backing))
	for _, c := range backing {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if plate != "" && !strings.Contains(strings.ToLower(c.LicensePlate), plate) {
			continue
		}
		if municipality != "" && !strings.Contains(strings.ToLower(c.Municipality), municipality) {
			continue
		}
		switch f.Evidence {
		case domain.EvidenceWith:
			if c.EvidenceCount == 0 {
				continue
			}
		case domain.EvidenceWithout:
			if c.EvidenceCount > 0 {
				continue
			}
		}
		out = append(out, c)
	}

	slices.SortStableFunc(out, func(a, b domain.Complaint) int {
		if f.Order == domain.OrderOldest {
			return a.SubmittedAt.Compare(b.SubmittedAt)
		}
		return b.SubmittedAt.Compare(a.SubmittedAt)
	})
	return out
}
