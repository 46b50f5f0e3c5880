// Package listing keeps the complaint list a staff member is browsing: the
// backing page fetched from the complaints API, the active filter, the page
// cursor, and the rows derived from them.
package listing

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/simp-lee/denuncias-admin/internal/domain"
)

// Prompter obtains decisions from staff.
type Prompter interface {
	ShowConfirm(ctx context.Context, title, message string) (bool, error)
	ShowInput(ctx context.Context, title, message, placeholder string) (string, bool, error)
}

// Settings bounds page sizes.
type Settings struct {
	DefaultPageSize int
	MaxPageSize     int
}

// PageView is the cursor with its derived navigation flags.
type PageView struct {
	domain.Page
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// View is a consistent snapshot of the controller for rendering.
type View struct {
	Rows      []domain.Complaint `json:"rows"`
	Filter    domain.FilterSpec  `json:"filter"`
	Filtered  bool               `json:"filtered"`
	Page      PageView           `json:"page"`
	Loading   bool               `json:"loading"`
	Loaded    bool               `json:"loaded"`
	Error     string             `json:"error,omitempty"`
	Notice    string             `json:"notice,omitempty"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// Controller is the list state of one staff session. It is safe for
// concurrent use; network calls run outside the lock.
type Controller struct {
	source   domain.ComplaintSource
	prompter Prompter
	settings Settings
	logger   *slog.Logger
	now      func() time.Time

	onStatusChange func(domain.Complaint)

	mu         sync.Mutex
	backing    []domain.Complaint
	visible    []domain.Complaint
	filter     domain.FilterSpec
	page       domain.Page
	dispatched uint64
	settled    uint64
	loaded     bool
	errMsg     string
	notice     string
	fetchedAt  time.Time
}

// New creates an empty controller. Nothing is fetched until Refresh.
func New(source domain.ComplaintSource, prompter Prompter, settings Settings, logger *slog.Logger) *Controller {
	if settings.MaxPageSize <= 0 {
		settings.MaxPageSize = 100
	}
	if settings.DefaultPageSize <= 0 || settings.DefaultPageSize > settings.MaxPageSize {
		settings.DefaultPageSize = min(10, settings.MaxPageSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		source:   source,
		prompter: prompter,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		filter:   domain.FilterSpec{}.Normalize(),
		page:     domain.Page{Size: settings.DefaultPageSize},
		visible:  []domain.Complaint{},
	}
}

// OnStatusChange registers a callback run after a successful status change.
func (c *Controller) OnStatusChange(fn func(domain.Complaint)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatusChange = fn
}

// Refresh fetches the current page.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	index, size := c.page.Index, c.page.Size
	c.mu.Unlock()
	return c.fetch(ctx, index, size)
}

// fetch requests one page. Each call takes a sequence number; a response
// that arrives after a newer request was dispatched is dropped. On failure
// the previous rows stay in place and the error is recorded for display.
func (c *Controller) fetch(ctx context.Context, index, size int) error {
	c.mu.Lock()
	c.dispatched++
	seq := c.dispatched
	q := domain.ListQuery{
		Page:         index,
		Size:         size,
		Status:       c.filter.Status,
		LicensePlate: c.filter.LicensePlate,
		Municipality: c.filter.Municipality,
		Order:        c.filter.Order,
	}
	c.mu.Unlock()

	result, err := c.source.ListComplaints(ctx, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.dispatched {
		c.logger.DebugContext(ctx, "discarding superseded complaint page",
			slog.Uint64("seq", seq), slog.Uint64("latest", c.dispatched))
		return nil
	}
	c.settled = seq
	if err != nil {
		c.errMsg = domain.UserMessage(err)
		c.logger.WarnContext(ctx, "complaint list refresh failed",
			slog.Int("page", index), slog.Int("size", size), slog.String("error", err.Error()))
		return err
	}

	c.backing = slices.Clone(result.Content)
	if result.PageSize > 0 {
		size = result.PageSize
	}
	c.page = domain.Page{
		Index:         result.CurrentPage,
		Size:          size,
		TotalElements: result.TotalElements,
		TotalPages:    result.TotalPages,
	}.Clamp()
	c.loaded = true
	c.errMsg = ""
	c.fetchedAt = c.now()
	c.rederiveLocked()
	return nil
}

// ApplyFilters recomputes the visible rows from the backing set and the
// current filter without any network call.
func (c *Controller) ApplyFilters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rederiveLocked()
}

// SetFilter replaces the filter and re-derives the visible rows.
func (c *Controller) SetFilter(f domain.FilterSpec) error {
	if f.Status != "" && !f.Status.Valid() {
		return domain.NewAppError(domain.CodeValidation, fmt.Sprintf("Estado %q no válido.", f.Status), nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = f.Normalize()
	c.rederiveLocked()
	return nil
}

// ClearFilters resets the filter to its defaults and re-derives the visible rows.
func (c *Controller) ClearFilters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = domain.FilterSpec{}.Normalize()
	c.rederiveLocked()
}

func (c *Controller) rederiveLocked() {
	c.visible = Visible(c.backing, c.filter)
}

// NextPage moves forward one page. It does nothing on the last page.
func (c *Controller) NextPage(ctx context.Context) error {
	c.mu.Lock()
	p := c.page
	c.mu.Unlock()
	if !p.HasNext() {
		return nil
	}
	return c.fetch(ctx, p.Index+1, p.Size)
}

// PreviousPage moves back one page. It does nothing on the first page.
func (c *Controller) PreviousPage(ctx context.Context) error {
	c.mu.Lock()
	p := c.page
	c.mu.Unlock()
	if !p.HasPrevious() {
		return nil
	}
	return c.fetch(ctx, p.Index-1, p.Size)
}

// GoToPage jumps to page n (0-based). Out-of-range indexes are ignored.
func (c *Controller) GoToPage(ctx context.Context, n int) error {
	c.mu.Lock()
	p := c.page
	c.mu.Unlock()
	if !p.Contains(n) {
		return nil
	}
	return c.fetch(ctx, n, p.Size)
}

// ChangePageSize switches to n rows per page and returns to the first page.
// Sizes outside 1..MaxPageSize are ignored.
func (c *Controller) ChangePageSize(ctx context.Context, n int) error {
	if n < 1 || n > c.settings.MaxPageSize {
		return nil
	}
	return c.fetch(ctx, 0, n)
}

// ChangeStatus moves complaint id to status after staff confirm it.
// Rejections require a reason, asked for through an input dialog; a
// cancelled dialog returns domain.ErrCancelled and a blank reason a
// validation error, and in both cases the complaints API is not called.
// On success the matching row is updated in place.
func (c *Controller) ChangeStatus(ctx context.Context, id int64, status domain.Status, comment string) error {
	if !status.Valid() {
		return domain.NewAppError(domain.CodeValidation, fmt.Sprintf("Estado %q no válido.", status), nil)
	}

	c.mu.Lock()
	idx := c.indexLocked(id)
	var current domain.Complaint
	if idx >= 0 {
		current = c.backing[idx]
	}
	c.notice = ""
	c.mu.Unlock()

	if idx < 0 {
		return domain.NewAppError(domain.CodeNotFound, fmt.Sprintf("La denuncia #%d no está en la lista actual.", id), nil)
	}
	if !current.Status.CanTransition(status) {
		return c.fail(domain.NewAppError(domain.CodeValidation,
			fmt.Sprintf("La denuncia #%d no puede pasar de %s a %s.", id, current.Status.Label(), status.Label()), nil))
	}

	comment = strings.TrimSpace(comment)
	if status == domain.StatusRejected {
		reason, ok, err := c.prompter.ShowInput(ctx, "Rechazar denuncia",
			fmt.Sprintf("Indique el motivo del rechazo de la denuncia #%d.", id), "Motivo del rechazo")
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrCancelled
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return c.fail(domain.NewAppError(domain.CodeValidation, "Debe indicar el motivo del rechazo.", nil))
		}
		comment = reason
	} else {
		ok, err := c.prompter.ShowConfirm(ctx, "Cambiar estado",
			fmt.Sprintf("¿Confirma cambiar la denuncia #%d de %s a %s?", id, current.Status.Label(), status.Label()))
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrCancelled
		}
	}

	if err := c.source.UpdateStatus(ctx, id, status, comment); err != nil {
		c.logger.WarnContext(ctx, "complaint status change failed",
			slog.Int64("complaint_id", id), slog.String("status", string(status)), slog.String("error", err.Error()))
		return c.fail(err)
	}

	c.mu.Lock()
	var updated domain.Complaint
	if i := c.indexLocked(id); i >= 0 {
		c.backing[i].Status = status
		if status == domain.StatusRejected {
			c.backing[i].RejectionReason = comment
		}
		updated = c.backing[i]
	} else {
		updated = current
		updated.Status = status
	}
	c.errMsg = ""
	c.notice = fmt.Sprintf("Denuncia #%d actualizada a %s.", id, status.Label())
	c.rederiveLocked()
	hook := c.onStatusChange
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "complaint status changed",
		slog.Int64("complaint_id", id), slog.String("from", string(current.Status)), slog.String("to", string(status)))
	if hook != nil {
		hook(updated)
	}
	return nil
}

// Remove drops a complaint deleted elsewhere from the backing set.
func (c *Controller) Remove(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return
	}
	c.backing = slices.Delete(slices.Clone(c.backing), i, i+1)
	if c.page.TotalElements > 0 {
		c.page.TotalElements--
	}
	c.rederiveLocked()
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.errMsg = domain.UserMessage(err)
	c.mu.Unlock()
	return err
}

func (c *Controller) indexLocked(id int64) int {
	return slices.IndexFunc(c.backing, func(r domain.Complaint) bool { return r.ID == id })
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		Rows:     slices.Clone(c.visible),
		Filter:   c.filter,
		Filtered: !c.filter.IsZero(),
		Page: PageView{
			Page:        c.page,
			HasNext:     c.page.HasNext(),
			HasPrevious: c.page.HasPrevious(),
		},
		Loading:   c.dispatched != c.settled,
		Loaded:    c.loaded,
		Error:     c.errMsg,
		Notice:    c.notice,
		FetchedAt: c.fetchedAt,
	}
}
