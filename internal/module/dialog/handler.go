// Package dialog exposes the dialog queue of the signed-in staff member to
// the browser: a long-poll for the visible dialog and endpoints to answer it.
package dialog

import (
	"time"

	"github.com/gin-gonic/gin"

	queue "github.com/simp-lee/denuncias-admin/internal/dialog"
	"github.com/simp-lee/denuncias-admin/internal/domain"
	"github.com/simp-lee/denuncias-admin/internal/middleware"
	"github.com/simp-lee/denuncias-admin/internal/pkg"
	"github.com/simp-lee/denuncias-admin/internal/workspace"
)

var errNotActive = domain.NewAppError(domain.CodeNotFound, "El diálogo ya no está activo.", nil)

// DialogHandler handles the dialog endpoints.
type DialogHandler struct {
	workspaces  workspace.Provider
	longPollMax time.Duration
}

// NewHandler creates a new DialogHandler. longPollMax caps how long a poll
// may wait for a change.
func NewHandler(workspaces workspace.Provider, longPollMax time.Duration) *DialogHandler {
	return &DialogHandler{workspaces: workspaces, longPollMax: longPollMax}
}

func (h *DialogHandler) workspace(c *gin.Context) (*workspace.Workspace, bool) {
	s := middleware.CurrentSession(c)
	if s == nil {
		middleware.AbortUnauthorized(c, "Debe iniciar sesión.")
		return nil, false
	}
	return h.workspaces.Get(s), true
}

// Poll handles GET /api/v1/dialog?version=&wait=. When the state is still
// at version it waits up to wait (capped) for a change; otherwise, or
// without version, it answers at once.
func (h *DialogHandler) Poll(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	if _, has := c.GetQuery("version"); has {
		version := pkg.QueryUint64(c, "version", 0)
		wait := pkg.QueryDuration(c, "wait", 0, h.longPollMax)
		if wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ws.Dialog.Changed(version):
			case <-timer.C:
			case <-c.Request.Context().Done():
				return
			case <-ws.Context().Done():
				middleware.AbortUnauthorized(c, "La sesión terminó.")
				return
			}
		}
	}
	pkg.Success(c, ws.Dialog.Snapshot())
}

// Confirm handles POST /api/v1/dialog/:id/confirm.
func (h *DialogHandler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if c.Request.ContentLength != 0 && !pkg.BindAndValidate(c, &req) {
		return
	}
	h.answer(c, queue.Response{Confirmed: true, Value: req.Value})
}

// Cancel handles POST /api/v1/dialog/:id/cancel.
func (h *DialogHandler) Cancel(c *gin.Context) {
	h.answer(c, queue.Response{})
}

// answer resolves dialog :id if it is still the visible one. Stale ids get
// 404 so the view layer re-polls.
func (h *DialogHandler) answer(c *gin.Context, resp queue.Response) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	if !ws.Dialog.Respond(c.Param("id"), resp) {
		pkg.Error(c, errNotActive)
		return
	}
	pkg.Success(c, ws.Dialog.Snapshot())
}
