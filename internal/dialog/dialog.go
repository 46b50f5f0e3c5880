// Package dialog brokers modal decisions between server-side flows and the
// browser view layer.
//
// A flow calls ShowAlert, ShowConfirm or ShowInput and blocks until staff
// answer the dialog through Confirm, Cancel or Respond. Exactly one dialog is
// visible at a time; later requests wait in FIFO order. Every request owns a
// one-shot completion channel, so each caller is settled exactly once: by an
// answer, by its own context ending, or by Close.
package dialog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the dialog variant rendered by the view layer.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindConfirm Kind = "confirm"
	KindInput   Kind = "input"
)

// IsAlert reports whether k is one of the alert severities.
func (k Kind) IsAlert() bool {
	return k == KindInfo || k == KindSuccess || k == KindError
}

var (
	// ErrClosed is returned to waiters when the service is torn down.
	ErrClosed = errors.New("dialog: service closed")
	// ErrBusy is returned when the queue is full.
	ErrBusy = errors.New("dialog: another dialog is pending")
)

// Request is one interactive prompt.
type Request struct {
	ID               string    `json:"id"`
	Kind             Kind      `json:"kind"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	ConfirmLabel     string    `json:"confirm_label"`
	CancelLabel      string    `json:"cancel_label,omitempty"`
	InputValue       string    `json:"input_value,omitempty"`
	InputPlaceholder string    `json:"input_placeholder,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Response is the user's answer to a Request.
type Response struct {
	Confirmed bool   `json:"confirmed"`
	Value     string `json:"value,omitempty"`
}

// State is a point-in-time view of the service for the view layer.
type State struct {
	Active  *Request `json:"active"`
	Queued  int      `json:"queued"`
	Version uint64   `json:"version"`
}

// Labels are the default button captions per dialog kind.
type Labels struct {
	Accept  string
	Confirm string
	Cancel  string
}

// DefaultLabels are the captions staff see unless a request overrides them.
var DefaultLabels = Labels{Accept: "Aceptar", Confirm: "Confirmar", Cancel: "Cancelar"}

type outcome struct {
	resp Response
	err  error
}

type pending struct {
	req  Request
	done chan outcome
}

// Service holds the dialog queue of one staff session. It is safe for
// concurrent use.
type Service struct {
	mu       sync.Mutex
	queue    []*pending
	version  uint64
	changed  chan struct{}
	closed   bool
	maxQueue int
	labels   Labels
	now      func() time.Time
	newID    func() string
	observe  func(delta int)
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMaxQueue bounds how many requests may wait behind the active one.
// Zero rejects any overlapping request with ErrBusy; negative is unbounded.
func WithMaxQueue(n int) Option {
	return func(s *Service) { s.maxQueue = n }
}

// WithLabels overrides the default button captions.
func WithLabels(l Labels) Option {
	return func(s *Service) { s.labels = l }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the uuid request id source.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithObserver registers a callback invoked with the change in outstanding
// requests (+1 queued, -1 settled). Services of all sessions may share one.
func WithObserver(fn func(delta int)) Option {
	return func(s *Service) { s.observe = fn }
}

// New creates an idle Service.
func New(opts ...Option) *Service {
	s := &Service{
		changed:  make(chan struct{}),
		maxQueue: -1,
		labels:   DefaultLabels,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShowAlert shows an informational dialog and returns once it is
// acknowledged. Confirm and Cancel both acknowledge. The only errors are the
// caller's context ending and ErrClosed.
func (s *Service) ShowAlert(ctx context.Context, title, message string, severity Kind) error {
	if !severity.IsAlert() {
		severity = KindInfo
	}
	_, err := s.Show(ctx, Request{Kind: severity, Title: title, Message: message})
	return err
}

// ShowConfirm asks a yes/no question. It returns true on confirm and false on
// cancel or dismiss.
func (s *Service) ShowConfirm(ctx context.Context, title, message string) (bool, error) {
	resp, err := s.Show(ctx, Request{Kind: KindConfirm, Title: title, Message: message})
	if err != nil {
		return false, err
	}
	return resp.Confirmed, nil
}

// ShowInput asks for free text. ok is false when the user cancels.
func (s *Service) ShowInput(ctx context.Context, title, message, placeholder string) (text string, ok bool, err error) {
	resp, err := s.Show(ctx, Request{Kind: KindInput, Title: title, Message: message, InputPlaceholder: placeholder})
	if err != nil || !resp.Confirmed {
		return "", false, err
	}
	return resp.Value, true, nil
}

// Show enqueues req and blocks until it is answered. Empty labels are filled
// from the service defaults; ID and CreatedAt are always assigned here.
func (s *Service) Show(ctx context.Context, req Request) (Response, error) {
	p := &pending{done: make(chan outcome, 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Response{}, ErrClosed
	}
	if s.maxQueue >= 0 && len(s.queue) > s.maxQueue {
		s.mu.Unlock()
		return Response{}, ErrBusy
	}
	p.req = s.prepare(req)
	s.queue = append(s.queue, p)
	s.bumpLocked(1)
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "dialog queued", slog.String("dialog_id", p.req.ID), slog.String("kind", string(p.req.Kind)))

	select {
	case out := <-p.done:
		return out.resp, out.err
	case <-ctx.Done():
		if s.withdraw(p) {
			return Response{}, ctx.Err()
		}
		// Answered concurrently with cancellation; the answer wins.
		out := <-p.done
		return out.resp, out.err
	}
}

func (s *Service) prepare(req Request) Request {
	req.ID = s.newID()
	req.CreatedAt = s.now()
	if req.Kind == "" {
		req.Kind = KindInfo
	}
	if req.ConfirmLabel == "" {
		if req.Kind == KindConfirm {
			req.ConfirmLabel = s.labels.Confirm
		} else {
			req.ConfirmLabel = s.labels.Accept
		}
	}
	if req.Kind.IsAlert() {
		req.CancelLabel = ""
	} else if req.CancelLabel == "" {
		req.CancelLabel = s.labels.Cancel
	}
	if req.Kind != KindInput {
		req.InputValue = ""
		req.InputPlaceholder = ""
	}
	return req
}

// Confirm answers the active dialog positively. value is the entered text
// for input dialogs and ignored otherwise. It reports whether a dialog was
// active; with none it does nothing.
func (s *Service) Confirm(value string) bool {
	return s.resolveActive("", Response{Confirmed: true, Value: value})
}

// Cancel dismisses the active dialog. With none active it does nothing.
func (s *Service) Cancel() bool {
	return s.resolveActive("", Response{})
}

// Respond answers the dialog with the given id, but only while it is the
// active one. A stale id is ignored and reported as false.
func (s *Service) Respond(id string, resp Response) bool {
	if id == "" {
		return false
	}
	return s.resolveActive(id, resp)
}

func (s *Service) resolveActive(id string, resp Response) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return false
	}
	p := s.queue[0]
	if id != "" && p.req.ID != id {
		return false
	}
	if p.req.Kind != KindInput {
		resp.Value = ""
	}
	s.queue[0] = nil
	s.queue = s.queue[1:]
	p.done <- outcome{resp: resp}
	s.bumpLocked(-1)
	return true
}

// withdraw removes p if it has not been answered yet.
func (s *Service) withdraw(p *pending) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, q := range s.queue {
		if q == p {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.bumpLocked(-1)
			return true
		}
	}
	return false
}

// Active returns the visible dialog, if any.
func (s *Service) Active() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Request{}, false
	}
	return s.queue[0].req, true
}

// Pending returns the number of outstanding requests, the active one included.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Snapshot returns the current state and its version.
func (s *Service) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{Version: s.version}
	if len(s.queue) > 0 {
		req := s.queue[0].req
		st.Active = &req
		st.Queued = len(s.queue) - 1
	}
	return st
}

// Changed returns a channel that is closed once the state moves past
// version. If it already has, the returned channel is closed.
func (s *Service) Changed(version uint64) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version != s.version {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.changed
}

// Close settles every outstanding request with ErrClosed and rejects new
// ones. It is idempotent.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, p := range s.queue {
		p.done <- outcome{err: ErrClosed}
	}
	n := len(s.queue)
	if n > 0 {
		s.logger.Debug("dialog service closed with pending requests", slog.Int("pending", n))
	}
	s.queue = nil
	s.bumpLocked(-n)
}

func (s *Service) bumpLocked(delta int) {
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
	if s.observe != nil && delta != 0 {
		s.observe(delta)
	}
}
