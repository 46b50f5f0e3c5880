package dashboard

import "github.com/gin-gonic/gin"

// DashboardModule implements the app.Module interface for the dashboard.
type DashboardModule struct {
	handler *DashboardHandler
}

// NewModule creates a new DashboardModule with the given handler.
// Panics if h is nil.
func NewModule(h *DashboardHandler) *DashboardModule {
	if h == nil {
		panic("dashboard.NewModule: handler must not be nil")
	}
	return &DashboardModule{handler: h}
}

// RegisterRoutes registers the dashboard routes.
func (m *DashboardModule) RegisterRoutes(_ *gin.RouterGroup, protected *gin.RouterGroup) {
	protected.GET("/dashboard/charts", m.handler.Charts)
}
