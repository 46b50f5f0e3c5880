package dialog

import "github.com/gin-gonic/gin"

// DialogModule implements the app.Module interface for the dialog queue.
type DialogModule struct {
	handler *DialogHandler
}

// NewModule creates a new DialogModule with the given handler.
// Panics if h is nil.
func NewModule(h *DialogHandler) *DialogModule {
	if h == nil {
		panic("dialog.NewModule: handler must not be nil")
	}
	return &DialogModule{handler: h}
}

// RegisterRoutes registers the dialog routes. All of them need a session.
func (m *DialogModule) RegisterRoutes(_ *gin.RouterGroup, protected *gin.RouterGroup) {
	d := protected.Group("/dialog")
	d.GET("", m.handler.Poll)
	d.POST("/:id/confirm", m.handler.Confirm)
	d.POST("/:id/cancel", m.handler.Cancel)
}
