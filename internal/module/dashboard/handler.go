package dashboard

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/denuncias-admin/internal/middleware"
	"github.com/simp-lee/denuncias-admin/internal/pkg"
	"github.com/simp-lee/denuncias-admin/internal/stats"
	"github.com/simp-lee/denuncias-admin/internal/workspace"
)

// ChartSource serves the shared dashboard charts, fetching through src on
// a cache miss.
type ChartSource interface {
	Charts(ctx context.Context, src stats.Source) (*stats.Charts, error)
}

// DashboardHandler handles the dashboard endpoint.
type DashboardHandler struct {
	workspaces workspace.Provider
	charts     ChartSource
}

// NewHandler creates a new DashboardHandler.
func NewHandler(workspaces workspace.Provider, charts ChartSource) *DashboardHandler {
	return &DashboardHandler{workspaces: workspaces, charts: charts}
}

// Charts handles GET /api/v1/dashboard/charts. A miss is fetched with the
// caller's own token.
func (h *DashboardHandler) Charts(c *gin.Context) {
	s := middleware.CurrentSession(c)
	if s == nil {
		middleware.AbortUnauthorized(c, "Debe iniciar sesión.")
		return
	}
	ws := h.workspaces.Get(s)

	charts, err := h.charts.Charts(c.Request.Context(), ws.Client)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, charts)
}
