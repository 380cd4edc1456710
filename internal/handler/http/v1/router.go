package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1. Группа /admin - только
// пространство имен: права проверяет политика внутри каждого сервиса.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.Use(ClientIPMiddleware())

	// Публичные маршруты
	api.POST("/auth/register", h.register)
	api.POST("/auth/login", h.login)
	api.GET("/system/health", h.healthCheck)

	protected := api.Group("", h.AuthMiddleware())

	authGroup := protected.Group("/auth")
	{
		authGroup.POST("/logout", h.logout)
		authGroup.GET("/me", h.me)
	}

	users := protected.Group("/users")
	{
		users.PATCH("/me", h.updateProfile)
		users.GET("/me/activities", h.myActivities)
	}

	// Маршруты для управления инцидентами (CRUD)
	incidents := protected.Group("/incidents")
	{
		incidents.POST("", h.limitBody(), h.createIncident)
		incidents.GET("", h.listIncidents)
		incidents.GET("/:id", h.getIncident)
		incidents.PUT("/:id", h.updateIncident)
		incidents.DELETE("/:id", h.deleteIncident)
		incidents.POST("/:id/media", h.limitBody(), h.addMedia)
		incidents.GET("/:id/comments", h.listComments)
		incidents.POST("/:id/comments", h.addComment)
	}

	categories := protected.Group("/categories")
	{
		categories.GET("", h.listCategories)
		categories.POST("", h.createCategory)
		categories.PUT("/:id", h.updateCategory)
		categories.DELETE("/:id", h.deleteCategory)
	}

	admin := protected.Group("/admin")
	{
		admin.PUT("/incidents/:id/status", h.transitionStatus)
		admin.POST("/incidents/status", h.transitionBatch)
		admin.GET("/users", h.listUsers)
		admin.PATCH("/users/:id/role", h.updateUserRole)
		admin.PATCH("/users/:id/status", h.setUserActive)
		admin.DELETE("/users/:id", h.deleteUser)
		admin.GET("/stats", h.getStats)
		admin.GET("/activities", h.listActivities)
	}
}
