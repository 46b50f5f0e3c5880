package stats

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/simp-lee/denuncias-admin/internal/domain"
)

// Source fetches aggregate statistics. Each staff session supplies its own
// so the request carries that session's bearer token.
type Source interface {
	Stats(ctx context.Context) (*domain.DashboardStats, error)
}

// CacheObserver records cache lookups.
type CacheObserver interface {
	ObserveCache(name string, hit bool)
}

// Point is one bar or slice of a chart.
type Point struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// Charts is the dashboard payload.
type Charts struct {
	Total              int64     `json:"total"`
	ByMonth            []Point   `json:"by_month"`
	ByCategory         []Point   `json:"by_category"`
	ByStatus           []Point   `json:"by_status"`
	ByHour             []Point   `json:"by_hour"`
	TopMunicipalities  []Point   `json:"top_municipalities"`
	TopSectors         []Point   `json:"top_sectors"`
	TopReporters       []Point   `json:"top_reporters"`
	RepeatPlates       []Point   `json:"repeat_plates"`
	ValidationRate     float64   `json:"validation_rate"`
	RejectionRate      float64   `json:"rejection_rate"`
	AvgValidationHours float64   `json:"avg_validation_hours"`
	GeneratedAt        time.Time `json:"generated_at"`
	ExpiresAt          time.Time `json:"expires_at"`
}

// defaultFetchTimeout bounds a shared fetch once it no longer follows the
// request that started it.
const defaultFetchTimeout = 30 * time.Second

// Service caches one Charts value shared by all sessions.
type Service struct {
	entry        Entry[*Charts]
	ttl          time.Duration
	topN         int
	now          func() time.Time
	fetchTimeout time.Duration
	group        singleflight.Group
	observer     CacheObserver
	logger       *slog.Logger
}

// NewService creates a Service. A non-positive ttl disables caching.
func NewService(ttl time.Duration, topN int, observer CacheObserver, logger *slog.Logger) *Service {
	if topN <= 0 {
		topN = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ttl:          ttl,
		topN:         topN,
		now:          time.Now,
		fetchTimeout: defaultFetchTimeout,
		observer:     observer,
		logger:       logger,
	}
}

// Charts returns the cached charts, fetching through src when the entry is
// missing or stale. Concurrent misses share one fetch. The shared fetch
// outlives any single caller; a caller whose ctx ends stops waiting and
// gets ctx.Err().
func (s *Service) Charts(ctx context.Context, src Source) (*Charts, error) {
	if c, ok := s.entry.Get(s.now()); ok {
		s.observe(true)
		return c, nil
	}
	s.observe(false)

	gen := s.entry.Generation()
	ch := s.group.DoChan("charts:"+strconv.FormatUint(gen, 10), func() (any, error) {
		if c, ok := s.entry.Get(s.now()); ok {
			return c, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		raw, err := src.Stats(fetchCtx)
		if err != nil {
			return nil, err
		}
		now := s.now()
		c := Build(raw, s.topN)
		if s.ttl <= 0 {
			c.ExpiresAt = now
			return c, nil
		}
		c.ExpiresAt = now.Add(s.ttl)
		if !s.entry.SetIf(gen, c, now, s.ttl) {
			s.logger.DebugContext(fetchCtx, "dashboard statistics invalidated during fetch; not cached")
			return c, nil
		}
		s.logger.DebugContext(fetchCtx, "dashboard statistics refreshed", slog.Int64("total", c.Total))
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Charts), nil
	}
}

// Invalidate drops the cached charts so the next call refetches. A fetch
// already in flight still answers its callers but is not cached.
func (s *Service) Invalidate() {
	s.entry.Invalidate()
}

func (s *Service) observe(hit bool) {
	if s.observer != nil {
		s.observer.ObserveCache("dashboard_stats", hit)
	}
}

var monthLayouts = []string{"2006-01", "2006-1", "01/2006", "1/2006", "2006-01-02"}

// Build derives chart series from raw statistics.
func Build(raw *domain.DashboardStats, topN int) *Charts {
	c := &Charts{
		Total:              raw.Total,
		ValidationRate:     raw.ValidationRate,
		RejectionRate:      raw.RejectionRate,
		AvgValidationHours: raw.AvgValidationHours,
		GeneratedAt:        raw.GeneratedAt,
	}

	c.ByMonth = byMonth(raw.ByMonth)
	c.ByCategory = ranked(raw.ByCategory, 0)

	c.ByStatus = make([]Point, 0, len(domain.Statuses))
	for _, st := range domain.Statuses {
		c.ByStatus = append(c.ByStatus, Point{Key: string(st), Label: st.Label(), Value: raw.ByStatus[string(st)]})
	}

	c.ByHour = make([]Point, 24)
	for h := range c.ByHour {
		key := strconv.Itoa(h)
		c.ByHour[h] = Point{Key: key, Label: key + ":00", Value: raw.ByHour[h]}
	}

	c.TopMunicipalities = ranked(raw.ByMunicipality, topN)
	c.TopSectors = ranked(raw.BySector, topN)
	c.TopReporters = ranked(raw.TopReporters, topN)

	repeats := make(map[string]int64, len(raw.RepeatPlates))
	for plate, n := range raw.RepeatPlates {
		if n > 1 {
			repeats[plate] = n
		}
	}
	c.RepeatPlates = ranked(repeats, topN)
	return c
}

// byMonth orders month buckets chronologically. Keys that do not parse as a
// month sort after the ones that do, alphabetically.
func byMonth(m map[string]int64) []Point {
	type bucket struct {
		p      Point
		at     time.Time
		parsed bool
	}
	buckets := make([]bucket, 0, len(m))
	for k, v := range m {
		b := bucket{p: Point{Key: k, Label: k, Value: v}}
		for _, layout := range monthLayouts {
			if t, err := time.Parse(layout, k); err == nil {
				b.at, b.parsed = t, true
				break
			}
		}
		buckets = append(buckets, b)
	}
	slices.SortFunc(buckets, func(a, b bucket) int {
		switch {
		case a.parsed && !b.parsed:
			return -1
		case !a.parsed && b.parsed:
			return 1
		case a.parsed && b.parsed:
			if c := a.at.Compare(b.at); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.p.Key, b.p.Key)
	})
	out := make([]Point, len(buckets))
	for i, b := range buckets {
		out[i] = b.p
	}
	return out
}

// ranked sorts by value descending, then key, and keeps the first n (all
// when n is zero).
func ranked(m map[string]int64, n int) []Point {
	out := make([]Point, 0, len(m))
	for k, v := range m {
		out = append(out, Point{Key: k, Label: k, Value: v})
	}
	slices.SortFunc(out, func(a, b Point) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
