package complaint

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/denuncias-admin/internal/detail"
	"github.com/simp-lee/denuncias-admin/internal/dialog"
	"github.com/simp-lee/denuncias-admin/internal/domain"
	"github.com/simp-lee/denuncias-admin/internal/middleware"
	"github.com/simp-lee/denuncias-admin/internal/pkg"
	"github.com/simp-lee/denuncias-admin/internal/workspace"
)

// StatsInvalidator drops cached dashboard figures after a mutation.
type StatsInvalidator interface {
	Invalidate()
}

// ComplaintHandler handles the complaint list and detail endpoints of the
// signed-in staff member.
type ComplaintHandler struct {
	workspaces workspace.Provider
	stats      StatsInvalidator
}

// NewHandler creates a new ComplaintHandler.
func NewHandler(workspaces workspace.Provider, stats StatsInvalidator) *ComplaintHandler {
	return &ComplaintHandler{workspaces: workspaces, stats: stats}
}

func (h *ComplaintHandler) workspace(c *gin.Context) (*workspace.Workspace, bool) {
	s := middleware.CurrentSession(c)
	if s == nil {
		middleware.AbortUnauthorized(c, "Debe iniciar sesión.")
		return nil, false
	}
	return h.workspaces.Get(s), true
}

// respondList renders the list snapshot. Transient failures are already in
// the snapshot's error field with the previous rows kept; auth failures end
// the session.
func respondList(c *gin.Context, ws *workspace.Workspace, err error) {
	if err != nil && (domain.IsAuth(err) || domain.IsValidation(err)) {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, ws.List.Snapshot())
}

// List handles GET /api/v1/complaints. The first call of a session, or one
// with ?refresh=1, fetches the current page.
func (h *ComplaintHandler) List(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	var err error
	if pkg.QueryBool(c, "refresh") || !ws.List.Snapshot().Loaded {
		err = ws.List.Refresh(c.Request.Context())
	}
	respondList(c, ws, err)
}

// Refresh handles POST /api/v1/complaints/refresh.
func (h *ComplaintHandler) Refresh(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	respondList(c, ws, ws.List.Refresh(c.Request.Context()))
}

// SetFilter handles PUT /api/v1/complaints/filters.
func (h *ComplaintHandler) SetFilter(c *gin.Context) {
	var req FilterRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	f := domain.FilterSpec{
		LicensePlate: req.LicensePlate,
		Municipality: req.Municipality,
		Evidence:     domain.EvidenceFilter(req.Evidence),
		Order:        domain.DateOrder(req.Order),
	}
	if req.Status != "" {
		st, err := domain.ParseStatus(req.Status)
		if err != nil {
			pkg.Error(c, err)
			return
		}
		f.Status = st
	}
	respondList(c, ws, ws.List.SetFilter(f))
}

// ClearFilters handles DELETE /api/v1/complaints/filters.
func (h *ComplaintHandler) ClearFilters(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	ws.List.ClearFilters()
	respondList(c, ws, nil)
}

// NextPage handles POST /api/v1/complaints/page/next.
func (h *ComplaintHandler) NextPage(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	respondList(c, ws, ws.List.NextPage(c.Request.Context()))
}

// PreviousPage handles POST /api/v1/complaints/page/previous.
func (h *ComplaintHandler) PreviousPage(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	respondList(c, ws, ws.List.PreviousPage(c.Request.Context()))
}

// GoToPage handles POST /api/v1/complaints/page/:index. Indexes are 0-based.
func (h *ComplaintHandler) GoToPage(c *gin.Context) {
	n, err := pkg.PathInt(c, "index")
	if err != nil {
		pkg.Error(c, err)
		return
	}
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	respondList(c, ws, ws.List.GoToPage(c.Request.Context(), n))
}

// ChangePageSize handles PUT /api/v1/complaints/page-size.
func (h *ComplaintHandler) ChangePageSize(c *gin.Context) {
	var req PageSizeRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	respondList(c, ws, ws.List.ChangePageSize(c.Request.Context(), req.Size))
}

// ChangeStatus handles POST /api/v1/complaints/:id/status. The change needs
// staff confirmation, so it runs in the background and answers 202; the
// outcome arrives as a dialog.
func (h *ComplaintHandler) ChangeStatus(c *gin.Context) {
	id, err := pkg.PathID(c, "id")
	if err != nil {
		pkg.Error(c, err)
		return
	}
	var req StatusRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	ws, ok := h.workspace(c)
	if !ok {
		return
	}

	version := ws.Dialog.Snapshot().Version
	started := ws.Go("change_status", func(ctx context.Context) error {
		if err := ws.List.ChangeStatus(ctx, id, status, req.Comment); err != nil {
			return err
		}
		if ws.Detail.ID() == id {
			if err := ws.Detail.Load(ctx, id); err != nil {
				slog.WarnContext(ctx, "detail reload after status change failed", slog.Int64("complaint_id", id), slog.String("error", err.Error()))
			}
		}
		return ws.Dialog.ShowAlert(ctx, "Estado actualizado",
			fmt.Sprintf("La denuncia #%d quedó en estado %s.", id, status.Label()), dialog.KindSuccess)
	})
	if !started {
		middleware.AbortUnauthorized(c, "La sesión terminó.")
		return
	}
	pkg.Accepted(c, FlowResponse{DialogVersion: version})
}

// Get handles GET /api/v1/complaints/:id. Section failures are reported in
// the snapshot's errors map; only a failing record fails the request.
func (h *ComplaintHandler) Get(c *gin.Context) {
	id, err := pkg.PathID(c, "id")
	if err != nil {
		pkg.Error(c, err)
		return
	}
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	if err := ws.Detail.Load(c.Request.Context(), id); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, ws.Detail.Snapshot())
}

// Evidence handles GET /api/v1/complaints/:id/evidence.
func (h *ComplaintHandler) Evidence(c *gin.Context) {
	h.section(c, (*detail.View).RefreshEvidence)
}

// Comments handles GET /api/v1/complaints/:id/comments.
func (h *ComplaintHandler) Comments(c *gin.Context) {
	h.section(c, (*detail.View).RefreshComments)
}

// History handles GET /api/v1/complaints/:id/history.
func (h *ComplaintHandler) History(c *gin.Context) {
	h.section(c, (*detail.View).RefreshHistory)
}

// section refreshes one detail section, loading the complaint first when
// the view shows another one.
func (h *ComplaintHandler) section(c *gin.Context, refresh func(*detail.View, context.Context) error) {
	ws, id, ok := h.detailFor(c)
	if !ok {
		return
	}
	if ws.Detail.ID() == id {
		if err := refresh(ws.Detail, c.Request.Context()); err != nil && domain.IsAuth(err) {
			pkg.Error(c, err)
			return
		}
	}
	pkg.Success(c, ws.Detail.Snapshot())
}

// detailFor resolves the workspace and makes sure its detail view shows
// complaint :id.
func (h *ComplaintHandler) detailFor(c *gin.Context) (*workspace.Workspace, int64, bool) {
	id, err := pkg.PathID(c, "id")
	if err != nil {
		pkg.Error(c, err)
		return nil, 0, false
	}
	ws, ok := h.workspace(c)
	if !ok {
		return nil, 0, false
	}
	if ws.Detail.ID() != id {
		if err := ws.Detail.Load(c.Request.Context(), id); err != nil {
			pkg.Error(c, err)
			return nil, 0, false
		}
	}
	return ws, id, true
}

// AddComment handles POST /api/v1/complaints/:id/comments. The author is
// the signed-in staff member.
func (h *ComplaintHandler) AddComment(c *gin.Context) {
	var req CommentRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	ws, _, ok := h.detailFor(c)
	if !ok {
		return
	}
	if err := ws.Detail.AddComment(c.Request.Context(), ws.Email, req.Text); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, ws.Detail.Snapshot())
}

// Delete handles DELETE /api/v1/complaints/:id after a confirmation dialog.
func (h *ComplaintHandler) Delete(c *gin.Context) {
	ws, id, ok := h.detailFor(c)
	if !ok {
		return
	}

	version := ws.Dialog.Snapshot().Version
	started := ws.Go("delete_complaint", func(ctx context.Context) error {
		if err := ws.Detail.DeleteComplaint(ctx); err != nil {
			return err
		}
		ws.List.Remove(id)
		if h.stats != nil {
			h.stats.Invalidate()
		}
		return ws.Dialog.ShowAlert(ctx, "Denuncia eliminada",
			fmt.Sprintf("La denuncia #%d fue eliminada.", id), dialog.KindSuccess)
	})
	if !started {
		middleware.AbortUnauthorized(c, "La sesión terminó.")
		return
	}
	pkg.Accepted(c, FlowResponse{DialogVersion: version})
}

// DeleteComment handles DELETE /api/v1/comments/:commentId after a
// confirmation dialog. The comment must belong to the complaint on display.
func (h *ComplaintHandler) DeleteComment(c *gin.Context) {
	commentID, err := pkg.PathID(c, "commentId")
	if err != nil {
		pkg.Error(c, err)
		return
	}
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	if ws.Detail.ID() == 0 {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, "No hay una denuncia seleccionada.", nil))
		return
	}
	if err := ws.Detail.CheckComment(commentID); err != nil {
		pkg.Error(c, err)
		return
	}

	version := ws.Dialog.Snapshot().Version
	started := ws.Go("delete_comment", func(ctx context.Context) error {
		if err := ws.Detail.DeleteComment(ctx, commentID); err != nil {
			return err
		}
		return ws.Detail.RefreshHistory(ctx)
	})
	if !started {
		middleware.AbortUnauthorized(c, "La sesión terminó.")
		return
	}
	pkg.Accepted(c, FlowResponse{DialogVersion: version})
}
