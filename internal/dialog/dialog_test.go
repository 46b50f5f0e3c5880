package dialog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestService(opts ...Option) *Service {
	n := 0
	var mu sync.Mutex
	ids := func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("dlg-%d", n)
	}
	return New(append([]Option{WithIDGenerator(ids)}, opts...)...)
}

// waitPending blocks until the service has n outstanding requests.
func waitPending(t *testing.T, s *Service, n int) Request {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		st := s.Snapshot()
		pending := 0
		if st.Active != nil {
			pending = st.Queued + 1
		}
		if pending == n {
			if st.Active == nil {
				return Request{}
			}
			return *st.Active
		}
		select {
		case <-s.Changed(st.Version):
		case <-deadline:
			t.Fatalf("timed out waiting for %d pending dialogs, have %d", n, pending)
		}
	}
}

type confirmResult struct {
	ok  bool
	err error
}

func TestShowConfirm_Resolution(t *testing.T) {
	tests := []struct {
		name   string
		answer func(s *Service) bool
		want   bool
	}{
		{"confirm resolves true", func(s *Service) bool { return s.Confirm("") }, true},
		{"cancel resolves false", func(s *Service) bool { return s.Cancel() }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService()
			got := make(chan confirmResult, 1)
			go func() {
				ok, err := s.ShowConfirm(context.Background(), "Cambiar estado", "¿Confirma?")
				got <- confirmResult{ok, err}
			}()

			req := waitPending(t, s, 1)
			if req.Kind != KindConfirm {
				t.Fatalf("Kind = %q; want %q", req.Kind, KindConfirm)
			}
			if req.ConfirmLabel != "Confirmar" || req.CancelLabel != "Cancelar" {
				t.Errorf("labels = %q/%q", req.ConfirmLabel, req.CancelLabel)
			}
			if !tt.answer(s) {
				t.Fatal("answer should resolve the active dialog")
			}

			res := <-got
			if res.err != nil {
				t.Fatalf("ShowConfirm error: %v", res.err)
			}
			if res.ok != tt.want {
				t.Errorf("ShowConfirm = %v; want %v", res.ok, tt.want)
			}
			if _, active := s.Active(); active {
				t.Error("dialog should be cleared after resolution")
			}
		})
	}
}

func TestShowInput_Resolution(t *testing.T) {
	type inputResult struct {
		text string
		ok   bool
		err  error
	}
	tests := []struct {
		name     string
		answer   func(s *Service)
		wantText string
		wantOK   bool
	}{
		{"confirm returns the text", func(s *Service) { s.Confirm("x") }, "x", true},
		{"confirm with empty text", func(s *Service) { s.Confirm("") }, "", true},
		{"cancel returns no value", func(s *Service) { s.Cancel() }, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService()
			got := make(chan inputResult, 1)
			go func() {
				text, ok, err := s.ShowInput(context.Background(), "Rechazar", "Motivo", "Escriba el motivo")
				got <- inputResult{text, ok, err}
			}()

			req := waitPending(t, s, 1)
			if req.InputPlaceholder != "Escriba el motivo" {
				t.Errorf("InputPlaceholder = %q", req.InputPlaceholder)
			}
			tt.answer(s)

			res := <-got
			if res.err != nil {
				t.Fatalf("ShowInput error: %v", res.err)
			}
			if res.text != tt.wantText || res.ok != tt.wantOK {
				t.Errorf("ShowInput = (%q, %v); want (%q, %v)", res.text, res.ok, tt.wantText, tt.wantOK)
			}
		})
	}
}

func TestShowAlert_AcknowledgedByEitherButton(t *testing.T) {
	for _, answer := range []func(*Service) bool{
		func(s *Service) bool { return s.Confirm("ignored") },
		func(s *Service) bool { return s.Cancel() },
	} {
		s := newTestService()
		done := make(chan error, 1)
		go func() { done <- s.ShowAlert(context.Background(), "Listo", "Estado actualizado", KindSuccess) }()

		req := waitPending(t, s, 1)
		if req.Kind != KindSuccess {
			t.Errorf("Kind = %q; want %q", req.Kind, KindSuccess)
		}
		if req.CancelLabel != "" {
			t.Errorf("alerts should have no cancel button, got %q", req.CancelLabel)
		}
		answer(s)
		if err := <-done; err != nil {
			t.Fatalf("ShowAlert error: %v", err)
		}
	}
}

func TestShowAlert_UnknownSeverityFallsBackToInfo(t *testing.T) {
	s := newTestService()
	go s.ShowAlert(context.Background(), "t", "m", KindConfirm)
	req := waitPending(t, s, 1)
	if req.Kind != KindInfo {
		t.Errorf("Kind = %q; want %q", req.Kind, KindInfo)
	}
	s.Confirm("")
}

func TestConfirmCancel_NoopWhenIdle(t *testing.T) {
	s := newTestService()
	before := s.Snapshot().Version
	if s.Confirm("x") {
		t.Error("Confirm without a dialog should report false")
	}
	if s.Cancel() {
		t.Error("Cancel without a dialog should report false")
	}
	if s.Respond("dlg-1", Response{Confirmed: true}) {
		t.Error("Respond without a dialog should report false")
	}
	if after := s.Snapshot().Version; after != before {
		t.Errorf("version moved from %d to %d on no-op", before, after)
	}
}

func TestOverlappingRequests_SettleInOrder(t *testing.T) {
	s := newTestService()
	first := make(chan confirmResult, 1)
	second := make(chan confirmResult, 1)

	go func() {
		ok, err := s.ShowConfirm(context.Background(), "first", "")
		first <- confirmResult{ok, err}
	}()
	waitPending(t, s, 1)
	go func() {
		ok, err := s.ShowConfirm(context.Background(), "second", "")
		second <- confirmResult{ok, err}
	}()
	active := waitPending(t, s, 2)
	if active.Title != "first" {
		t.Fatalf("active dialog = %q; want first", active.Title)
	}
	if st := s.Snapshot(); st.Queued != 1 {
		t.Fatalf("Queued = %d; want 1", st.Queued)
	}

	s.Confirm("")
	if res := <-first; !res.ok || res.err != nil {
		t.Fatalf("first = %+v; want confirmed", res)
	}

	active = waitPending(t, s, 1)
	if active.Title != "second" {
		t.Fatalf("active dialog = %q; want second", active.Title)
	}
	s.Cancel()
	if res := <-second; res.ok || res.err != nil {
		t.Fatalf("second = %+v; want cancelled", res)
	}
}

func TestMaxQueueZero_RejectsOverlap(t *testing.T) {
	s := newTestService(WithMaxQueue(0))
	go s.ShowConfirm(context.Background(), "first", "")
	waitPending(t, s, 1)

	_, err := s.ShowConfirm(context.Background(), "second", "")
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("second ShowConfirm error = %v; want ErrBusy", err)
	}
	if got := s.Pending(); got != 1 {
		t.Errorf("Pending = %d; want 1", got)
	}
	s.Cancel()
}

func TestRespond_IgnoresStaleID(t *testing.T) {
	s := newTestService()
	got := make(chan confirmResult, 1)
	go func() {
		ok, err := s.ShowConfirm(context.Background(), "t", "m")
		got <- confirmResult{ok, err}
	}()
	req := waitPending(t, s, 1)

	if s.Respond("stale-id", Response{Confirmed: true}) {
		t.Fatal("Respond with a stale id should be ignored")
	}
	if !s.Respond(req.ID, Response{Confirmed: true}) {
		t.Fatal("Respond with the active id should resolve")
	}
	if res := <-got; !res.ok {
		t.Error("ShowConfirm should resolve true")
	}
}

func TestContextCancel_WithdrawsRequest(t *testing.T) {
	s := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan confirmResult, 1)
	go func() {
		ok, err := s.ShowConfirm(ctx, "t", "m")
		got <- confirmResult{ok, err}
	}()
	waitPending(t, s, 1)

	cancel()
	res := <-got
	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("error = %v; want context.Canceled", res.err)
	}
	if _, active := s.Active(); active {
		t.Error("withdrawn dialog should not stay active")
	}
}

func TestClose_SettlesEveryWaiter(t *testing.T) {
	var mu sync.Mutex
	outstanding := 0
	s := newTestService(WithObserver(func(delta int) {
		mu.Lock()
		outstanding += delta
		mu.Unlock()
	}))

	const n = 3
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := s.ShowConfirm(context.Background(), "t", "m")
			results <- err
		}()
	}
	waitPending(t, s, n)

	s.Close()
	for i := 0; i < n; i++ {
		if err := <-results; !errors.Is(err, ErrClosed) {
			t.Errorf("waiter %d error = %v; want ErrClosed", i, err)
		}
	}
	if _, err := s.ShowConfirm(context.Background(), "late", ""); !errors.Is(err, ErrClosed) {
		t.Errorf("Show after Close error = %v; want ErrClosed", err)
	}
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	if outstanding != 0 {
		t.Errorf("observer balance = %d; want 0", outstanding)
	}
}

func TestChanged_ClosedOnTransition(t *testing.T) {
	s := newTestService()
	v := s.Snapshot().Version
	ch := s.Changed(v)

	go s.ShowAlert(context.Background(), "t", "m", KindInfo)
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("Changed channel was not closed after a dialog was shown")
	}

	select {
	case <-s.Changed(v):
	default:
		t.Fatal("Changed with an outdated version should be closed immediately")
	}
	s.Confirm("")
}

func TestShow_CustomLabels(t *testing.T) {
	s := newTestService(WithLabels(Labels{Accept: "OK", Confirm: "Sí", Cancel: "No"}))
	go s.Show(context.Background(), Request{Kind: KindConfirm, Title: "Eliminar", ConfirmLabel: "Eliminar"})
	req := waitPending(t, s, 1)
	if req.ConfirmLabel != "Eliminar" || req.CancelLabel != "No" {
		t.Errorf("labels = %q/%q; want Eliminar/No", req.ConfirmLabel, req.CancelLabel)
	}
	if req.ID != "dlg-1" {
		t.Errorf("ID = %q; want dlg-1", req.ID)
	}
	s.Cancel()
}
