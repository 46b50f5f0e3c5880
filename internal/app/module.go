package app

import "github.com/gin-gonic/gin"

// Module defines the contract for a self-registering business module.
// public routes need no session; protected routes run behind RequireSession.
// Both groups share the /api/v1 prefix and CSRF protection.
type Module interface {
	RegisterRoutes(public *gin.RouterGroup, protected *gin.RouterGroup)
}
