package dialog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/denuncias-admin/internal/api"
	queue "github.com/simp-lee/denuncias-admin/internal/dialog"
	"github.com/simp-lee/denuncias-admin/internal/domain"
	"github.com/simp-lee/denuncias-admin/internal/listing"
	"github.com/simp-lee/denuncias-admin/internal/middleware"
	"github.com/simp-lee/denuncias-admin/internal/workspace"
)

type fakeResolver struct{ session *domain.Session }

func (f *fakeResolver) Resolve(_ context.Context, id string) (*domain.Session, error) {
	if id != f.session.ID {
		return nil, domain.NewAppError(domain.CodeUnauthorized, "session expired", nil)
	}
	return f.session, nil
}

type env struct {
	router   *gin.Engine
	registry *workspace.Registry
	session  *domain.Session
}

func setup(t *testing.T, longPollMax time.Duration) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	base, err := api.New(srv.URL, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	e := &env{
		registry: workspace.NewRegistry(base,
			workspace.Settings{Listing: listing.Settings{DefaultPageSize: 10, MaxPageSize: 50}, DialogMaxQueue: -1},
			workspace.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))),
		session: &domain.Session{ID: "sess-1", Email: "ana@muni.cl", ExpiresAt: time.Now().Add(time.Hour)},
	}
	t.Cleanup(func() { _ = e.registry.Shutdown(context.Background()) })

	r := gin.New()
	protected := r.Group("/api/v1", middleware.RequireSession(&fakeResolver{session: e.session}, "sid"))
	NewModule(NewHandler(e.registry, longPollMax)).RegisterRoutes(r.Group("/api/v1"), protected)
	e.router = r
	return e
}

func (e *env) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, queue.State) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: "sid", Value: e.session.ID})
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp struct {
		Data queue.State `json:"data"`
	}
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return w, resp.Data
}

func TestPoll_Immediate(t *testing.T) {
	e := setup(t, time.Second)
	w, st := e.do(t, http.MethodGet, "/api/v1/dialog", "")
	if w.Code != http.StatusOK || st.Active != nil || st.Version != 0 {
		t.Fatalf("poll = %d %+v", w.Code, st)
	}
}

func TestPoll_WaitsForChange(t *testing.T) {
	e := setup(t, 5*time.Second)
	ws := e.registry.Get(e.session)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = ws.Dialog.ShowAlert(ws.Context(), "Aviso", "Listo", queue.KindInfo)
	}()

	w, st := e.do(t, http.MethodGet, "/api/v1/dialog?version=0&wait=3s", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if st.Active == nil || st.Active.Title != "Aviso" || st.Version == 0 {
		t.Fatalf("state = %+v", st)
	}
}

func TestPoll_WaitIsCapped(t *testing.T) {
	e := setup(t, 50*time.Millisecond)

	start := time.Now()
	w, st := e.do(t, http.MethodGet, "/api/v1/dialog?version=0&wait=60", "")
	if w.Code != http.StatusOK || st.Version != 0 {
		t.Fatalf("poll = %d %+v", w.Code, st)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("poll waited %v; want about 50ms", elapsed)
	}
}

func TestPoll_ReturnsWhenSessionEnds(t *testing.T) {
	e := setup(t, 5*time.Second)
	e.registry.Get(e.session)

	go func() {
		time.Sleep(50 * time.Millisecond)
		e.registry.Close(e.session.ID)
	}()
	start := time.Now()
	w, _ := e.do(t, http.MethodGet, "/api/v1/dialog?version=0&wait=3", "")
	if w.Code != http.StatusUnauthorized && w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("poll kept waiting %v after the session ended", elapsed)
	}
}

// pollFor long-polls until a dialog of kind is visible.
func (e *env) pollFor(t *testing.T, kind queue.Kind) *queue.Request {
	t.Helper()
	var version uint64
	for range 20 {
		_, st := e.do(t, http.MethodGet, "/api/v1/dialog?version="+strconv.FormatUint(version, 10)+"&wait=1s", "")
		if st.Active != nil && st.Active.Kind == kind {
			return st.Active
		}
		version = st.Version
	}
	t.Fatalf("no %s dialog became visible", kind)
	return nil
}

func TestConfirmAndCancel(t *testing.T) {
	e := setup(t, time.Second)
	ws := e.registry.Get(e.session)

	type result struct {
		text string
		ok   bool
		err  error
	}
	input := make(chan result, 1)
	go func() {
		text, ok, err := ws.Dialog.ShowInput(ws.Context(), "Rechazar", "Motivo", "Motivo del rechazo")
		input <- result{text, ok, err}
	}()
	active := e.pollFor(t, queue.KindInput)

	if w, _ := e.do(t, http.MethodPost, "/api/v1/dialog/stale-id/confirm", `{"value":"x"}`); w.Code != http.StatusNotFound {
		t.Fatalf("stale id status = %d; want 404", w.Code)
	}
	if w, _ := e.do(t, http.MethodPost, "/api/v1/dialog/"+active.ID+"/confirm", `{"value":"patente ilegible"}`); w.Code != http.StatusOK {
		t.Fatalf("confirm status = %d", w.Code)
	}
	if r := <-input; r.err != nil || !r.ok || r.text != "patente ilegible" {
		t.Fatalf("input result = %+v", r)
	}

	confirm := make(chan bool, 1)
	go func() {
		ok, _ := ws.Dialog.ShowConfirm(ws.Context(), "Eliminar", "¿Seguro?")
		confirm <- ok
	}()
	active = e.pollFor(t, queue.KindConfirm)
	if w, _ := e.do(t, http.MethodPost, "/api/v1/dialog/"+active.ID+"/cancel", ""); w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", w.Code)
	}
	if <-confirm {
		t.Fatal("cancelled confirm should report false")
	}
}
