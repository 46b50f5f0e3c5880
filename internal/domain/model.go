package domain

import (
	"strings"
	"time"
)

// DateOrder is the submission-date ordering of the complaint list.
type DateOrder string

const (
	OrderNewest DateOrder = "newest"
	OrderOldest DateOrder = "oldest"
)

// EvidenceFilter is a tri-state predicate on evidence presence.
type EvidenceFilter string

const (
	EvidenceAny     EvidenceFilter = ""
	EvidenceWith    EvidenceFilter = "with"
	EvidenceWithout EvidenceFilter = "without"
)

// FilterSpec holds the user-chosen predicates and ordering for the complaint list.
// The zero value matches everything, newest first.
type FilterSpec struct {
	Status       Status         `json:"status"`
	LicensePlate string         `json:"license_plate"`
	Municipality string         `json:"municipality"`
	Evidence     EvidenceFilter `json:"evidence"`
	Order        DateOrder      `json:"order"`
}

// Normalize trims text filters and fills in the default order.
func (f FilterSpec) Normalize() FilterSpec {
	f.LicensePlate = strings.TrimSpace(f.LicensePlate)
	f.Municipality = strings.TrimSpace(f.Municipality)
	if f.Order != OrderOldest {
		f.Order = OrderNewest
	}
	switch f.Evidence {
	case EvidenceWith, EvidenceWithout:
	default:
		f.Evidence = EvidenceAny
	}
	return f
}

// IsZero reports whether f is the default filter.
func (f FilterSpec) IsZero() bool {
	return f.Normalize() == FilterSpec{Order: OrderNewest}
}

// Page is the pagination cursor for the complaint list.
// Invariant: 0 <= Index < max(TotalPages, 1).
type Page struct {
	Index         int   `json:"index"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
}

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool {
	return p.Index+1 < p.TotalPages
}

// HasPrevious reports whether an earlier page exists.
func (p Page) HasPrevious() bool {
	return p.Index > 0
}

// Contains reports whether n is the index of an existing page. An empty or
// unloaded list has none.
func (p Page) Contains(n int) bool {
	return n >= 0 && n < p.TotalPages
}

// Clamp returns p with Index moved into the valid range.
func (p Page) Clamp() Page {
	if p.TotalPages < 0 {
		p.TotalPages = 0
	}
	if p.Index >= max(p.TotalPages, 1) {
		p.Index = max(p.TotalPages, 1) - 1
	}
	if p.Index < 0 {
		p.Index = 0
	}
	return p
}

// DashboardStats is the aggregate statistics payload computed by the complaints API.
type DashboardStats struct {
	Total              int64            `json:"total"`
	ByMonth            map[string]int64 `json:"by_month"`
	ByCategory         map[string]int64 `json:"by_category"`
	ByStatus           map[string]int64 `json:"by_status"`
	ByHour             map[int]int64    `json:"by_hour"`
	ByMunicipality     map[string]int64 `json:"by_municipality"`
	BySector           map[string]int64 `json:"by_sector"`
	TopReporters       map[string]int64 `json:"top_reporters"`
	RepeatPlates       map[string]int64 `json:"repeat_plates"`
	ValidationRate     float64          `json:"validation_rate"`
	RejectionRate      float64          `json:"rejection_rate"`
	AvgValidationHours float64          `json:"avg_validation_hours"`
	GeneratedAt        time.Time        `json:"generated_at"`
}
