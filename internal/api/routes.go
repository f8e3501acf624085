package api

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/realtime"
	"alcyxob/fitmate/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authService service.AuthService,
	userService service.UserService,
	planService service.PlanService,
	notificationService service.NotificationService,
	hub *realtime.Hub,
	wsOptions realtime.ConnOptions,
) {
	authHandler := NewAuthHandler(authService)
	userHandler := NewUserHandler(userService)
	planHandler := NewPlanHandler(planService, hub)
	notificationHandler := NewNotificationHandler(notificationService)
	wsHandler := NewWSHandler(hub, wsOptions)

	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	{
		usersGroup := apiV1.Group("/users")
		{
			usersGroup.POST("/signup", authHandler.Signup)
			usersGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		// --- User Routes ---
		userGroup := protected.Group("/users")
		{
			userGroup.GET("/me", userHandler.GetMe)
			userGroup.PUT("/me", userHandler.UpdateMe)
			userGroup.POST("/me/image/upload-url", userHandler.RequestImageUpload)
			userGroup.PUT("/me/image", userHandler.ConfirmImage)
			userGroup.GET("/search", userHandler.Search)
			userGroup.GET("/:id", userHandler.GetUser)
			userGroup.POST("/:id/follow", userHandler.Follow)
			userGroup.DELETE("/:id/follow", userHandler.Unfollow)
		}

		// --- Plan Routes ---
		planGroup := protected.Group("/plans")
		{
			planGroup.POST("", planHandler.CreatePlan)
			planGroup.GET("", planHandler.ListPlans)
			planGroup.GET("/:id", planHandler.GetPlan)
			planGroup.DELETE("/:id", planHandler.DeletePlan)
		}

		// GET /api/v1/admin/plans, private plans included
		adminGroup := protected.Group("/admin")
		adminGroup.Use(RoleMiddleware(domain.RoleAdmin))
		{
			adminGroup.GET("/plans", planHandler.ListAllPlans)
		}

		protected.GET("/notifications", notificationHandler.ListNotifications)

		// Realtime events: chat, plan participation, notifications
		protected.GET("/ws", wsHandler.Connect)
	}
}
