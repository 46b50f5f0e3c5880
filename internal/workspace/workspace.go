// Package workspace holds the per-session state of the portal: the dialog
// queue, the complaint list and the detail view of one signed-in staff
// member, all talking to the complaints API with that member's token.
package workspace

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/simp-lee/logger"

	"github.com/simp-lee/denuncias-admin/internal/api"
	"github.com/simp-lee/denuncias-admin/internal/detail"
	"github.com/simp-lee/denuncias-admin/internal/dialog"
	"github.com/simp-lee/denuncias-admin/internal/domain"
	"github.com/simp-lee/denuncias-admin/internal/listing"
)

// Workspace is the live state of one staff session.
type Workspace struct {
	SessionID string
	Email     string
	Client    *api.Client
	Dialog    *dialog.Service
	List      *listing.Controller
	Detail    *detail.View

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	expired sync.Once
}

// Context is cancelled when the workspace is torn down.
func (w *Workspace) Context() context.Context {
	return w.ctx
}

// Go runs fn in the background on the workspace context, outliving the
// request that started it. Failures other than staff cancellation are shown
// to staff as an error alert. It returns false once the workspace is closed.
func (w *Workspace) Go(name string, fn func(ctx context.Context) error) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		start := time.Now()
		err := fn(w.ctx)
		w.report(name, err, time.Since(start))
	}()
	return true
}

func (w *Workspace) report(name string, err error, d time.Duration) {
	attrs := []any{slog.String("flow", name), slog.Duration("elapsed", d)}
	switch {
	case err == nil:
		w.logger.DebugContext(w.ctx, "background flow finished", attrs...)
	case errors.Is(err, domain.ErrCancelled):
		w.logger.InfoContext(w.ctx, "background flow cancelled by staff", attrs...)
	case errors.Is(err, dialog.ErrClosed), errors.Is(err, context.Canceled):
		w.logger.DebugContext(w.ctx, "background flow abandoned", attrs...)
	case domain.IsAuth(err):
		w.logger.WarnContext(w.ctx, "background flow lost its session", append(attrs, slog.String("error", err.Error()))...)
	default:
		w.logger.WarnContext(w.ctx, "background flow failed", append(attrs, slog.String("error", err.Error()))...)
		if alertErr := w.Dialog.ShowAlert(w.ctx, "Error", domain.UserMessage(err), dialog.KindError); alertErr != nil &&
			!errors.Is(alertErr, dialog.ErrClosed) && !errors.Is(alertErr, context.Canceled) {
			w.logger.WarnContext(w.ctx, "error alert not shown", slog.String("error", alertErr.Error()))
		}
	}
}

// close cancels background flows and settles pending dialogs. It does not
// wait; a flow may call it through the unauthorized callback.
func (w *Workspace) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	w.cancel()
	w.Dialog.Close()
}

// wait blocks until background flows return or ctx ends.
func (w *Workspace) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Provider returns the workspace of a live session, building it on first
// use.
type Provider interface {
	Get(s *domain.Session) *Workspace
}

// Settings configures the components of new workspaces.
type Settings struct {
	Listing        listing.Settings
	DialogMaxQueue int
	DialogLabels   dialog.Labels
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDialogObserver receives pending-dialog deltas from every workspace.
func WithDialogObserver(fn func(delta int)) Option {
	return func(r *Registry) { r.dialogObserver = fn }
}

// WithSessionObserver receives live-workspace deltas.
func WithSessionObserver(fn func(delta int)) Option {
	return func(r *Registry) { r.sessionObserver = fn }
}

// WithStatusChangeHook runs after any workspace changes a complaint status.
func WithStatusChangeHook(fn func(domain.Complaint)) Option {
	return func(r *Registry) { r.onStatusChange = fn }
}

// Registry owns the workspaces of all live sessions.
type Registry struct {
	base            *api.Client
	settings        Settings
	logger          *slog.Logger
	dialogObserver  func(int)
	sessionObserver func(int)
	onStatusChange  func(domain.Complaint)

	mu       sync.Mutex
	items    map[string]*Workspace
	onExpire func(id string)
}

// NewRegistry creates an empty registry. base is the shared API client;
// each workspace derives a copy bound to its session token.
func NewRegistry(base *api.Client, settings Settings, opts ...Option) *Registry {
	r := &Registry{
		base:     base,
		settings: settings,
		logger:   slog.Default(),
		items:    make(map[string]*Workspace),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnExpire registers the callback run once when the complaints API rejects
// a session's token. The workspace is already closed when it runs.
func (r *Registry) OnExpire(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = fn
}

// Get returns the workspace of s, building it on first use.
func (r *Registry) Get(s *domain.Session) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.items[s.ID]; ok {
		return w
	}
	w := r.build(s)
	r.items[s.ID] = w
	if r.sessionObserver != nil {
		r.sessionObserver(1)
	}
	r.logger.Debug("workspace opened", slog.String("session_id", s.ID))
	return w
}

func (r *Registry) build(s *domain.Session) *Workspace {
	id := s.ID
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logger.WithContextAttrs(ctx, slog.String("session_id", id))

	w := &Workspace{
		SessionID: id,
		Email:     s.Email,
		ctx:       ctx,
		cancel:    cancel,
		logger:    r.logger,
	}

	dialogOpts := []dialog.Option{dialog.WithMaxQueue(r.settings.DialogMaxQueue), dialog.WithLogger(r.logger)}
	if r.settings.DialogLabels != (dialog.Labels{}) {
		dialogOpts = append(dialogOpts, dialog.WithLabels(r.settings.DialogLabels))
	}
	if r.dialogObserver != nil {
		dialogOpts = append(dialogOpts, dialog.WithObserver(r.dialogObserver))
	}
	w.Dialog = dialog.New(dialogOpts...)
	w.Client = r.base.ForSession(s.Token, func() { r.expire(w) })
	w.List = listing.New(w.Client, w.Dialog, r.settings.Listing, r.logger)
	if r.onStatusChange != nil {
		w.List.OnStatusChange(r.onStatusChange)
	}
	w.Detail = detail.New(w.Client, w.Dialog, r.logger)
	return w
}

// expire tears down w after the API rejected its token, at most once.
func (r *Registry) expire(w *Workspace) {
	w.expired.Do(func() {
		r.logger.WarnContext(w.ctx, "complaints API rejected the session token")
		r.Close(w.SessionID)
		r.mu.Lock()
		fn := r.onExpire
		r.mu.Unlock()
		if fn != nil {
			fn(w.SessionID)
		}
	})
}

// Close tears down the workspace of session id. It reports whether one
// existed.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	w, ok := r.items[id]
	if ok {
		delete(r.items, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	w.close()
	if r.sessionObserver != nil {
		r.sessionObserver(-1)
	}
	r.logger.Debug("workspace closed", slog.String("session_id", id))
	return true
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Shutdown closes every workspace and waits for their background flows
// until ctx ends.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*Workspace, 0, len(r.items))
	for _, w := range r.items {
		all = append(all, w)
	}
	r.mu.Unlock()

	for _, w := range all {
		r.Close(w.SessionID)
	}
	var errs []error
	for _, w := range all {
		if err := w.wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}
	}
	return errors.Join(errs...)
}
