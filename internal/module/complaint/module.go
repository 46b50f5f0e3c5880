package complaint

import "github.com/gin-gonic/gin"

// ComplaintModule implements the app.Module interface for complaints.
type ComplaintModule struct {
	handler *ComplaintHandler
}

// NewModule creates a new ComplaintModule with the given handler.
// Panics if h is nil.
func NewModule(h *ComplaintHandler) *ComplaintModule {
	if h == nil {
		panic("complaint.NewModule: handler must not be nil")
	}
	return &ComplaintModule{handler: h}
}

// RegisterRoutes registers complaint routes. All of them need a session.
func (m *ComplaintModule) RegisterRoutes(_ *gin.RouterGroup, protected *gin.RouterGroup) {
	list := protected.Group("/complaints")
	list.GET("", m.handler.List)
	list.POST("/refresh", m.handler.Refresh)
	list.PUT("/filters", m.handler.SetFilter)
	list.DELETE("/filters", m.handler.ClearFilters)
	list.POST("/page/next", m.handler.NextPage)
	list.POST("/page/previous", m.handler.PreviousPage)
	list.POST("/page/:index", m.handler.GoToPage)
	list.PUT("/page-size", m.handler.ChangePageSize)

	list.GET("/:id", m.handler.Get)
	list.DELETE("/:id", m.handler.Delete)
	list.POST("/:id/status", m.handler.ChangeStatus)
	list.GET("/:id/evidence", m.handler.Evidence)
	list.GET("/:id/comments", m.handler.Comments)
	list.POST("/:id/comments", m.handler.AddComment)
	list.GET("/:id/history", m.handler.History)

	protected.DELETE("/comments/:commentId", m.handler.DeleteComment)
}
