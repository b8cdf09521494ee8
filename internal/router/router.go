// internal/router/router.go
package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/agrilink/marketplace-backend/internal/config"
	"github.com/agrilink/marketplace-backend/internal/handlers"
	"github.com/agrilink/marketplace-backend/internal/messaging"
	"github.com/agrilink/marketplace-backend/internal/middleware"
	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/services"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

// Dependencies are the outbound integrations the HTTP layer needs.
type Dependencies struct {
	Gateway   services.PaymentGateway
	Publisher messaging.EventPublisher
	Storage   *services.StorageService
}

// NewDependencies builds the integrations described by cfg.
func NewDependencies(cfg *config.Config) (Dependencies, error) {
	gateway, err := services.NewPaymentGateway(cfg.Payment)
	if err != nil {
		return Dependencies{}, fmt.Errorf("failed to initialize payment gateway: %w", err)
	}

	storage, err := services.NewStorageService(cfg.AWS)
	if err != nil {
		return Dependencies{}, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return Dependencies{
		Gateway:   gateway,
		Publisher: messaging.NewPublisher(cfg.Kafka),
		Storage:   storage,
	}, nil
}

func Initialize(db *gorm.DB, cfg *config.Config, deps Dependencies) *gin.Engine {
	// Initialize services
	jwtManager := utils.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.AccessTokenTTL)
	notificationService := services.NewNotificationService(db, cfg)

	authService := services.NewAuthService(db, jwtManager)
	userService := services.NewUserService(db)
	cropService := services.NewCropService(db)
	orderService := services.NewOrderService(db, deps.Gateway, deps.Publisher, notificationService)
	paymentService := services.NewPaymentService(db, deps.Gateway, deps.Publisher, notificationService, cfg.Payment.Currency)
	adminService := services.NewAdminService(db, cropService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, userService, cfg.JWT)
	userHandler := handlers.NewUserHandler(userService)
	cropHandler := handlers.NewCropHandler(cropService, deps.Storage)
	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	schemeHandler := handlers.NewSchemeHandler(adminService)
	adminHandler := handlers.NewAdminHandler(adminService)

	auth := middleware.NewAuthenticator(jwtManager, authService, cfg.JWT.CookieName)
	limits := middleware.NewRateLimits(cfg.Server.RateLimit)
	farmerOnly := middleware.RoleRequired(models.RoleFarmer)
	buyerOnly := middleware.RoleRequired(models.RoleBuyer)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.Frontend.AllowedOrigins))
	r.Use(limits.General())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		authRoutes := v1.Group("/auth")
		authRoutes.Use(limits.Auth())
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/logout", authHandler.Logout)
			authRoutes.GET("/me", auth.AuthRequired(), authHandler.Me)
		}

		// User routes
		users := v1.Group("/users")
		users.Use(auth.AuthRequired())
		{
			users.GET("/profile", userHandler.GetProfile)
			users.PUT("/profile", userHandler.UpdateProfile)
			users.PUT("/password", userHandler.ChangePassword)

			wishlist := users.Group("/wishlist")
			wishlist.Use(buyerOnly)
			{
				wishlist.GET("", userHandler.GetWishlist)
				wishlist.POST("/:id", userHandler.AddToWishlist)
				wishlist.DELETE("/:id", userHandler.RemoveFromWishlist)
			}
		}

		v1.GET("/farmers/:id", userHandler.GetFarmer)

		// Crop routes
		crops := v1.Group("/crops")
		{
			// A signed-in farmer also sees their own withheld and sold listings.
			crops.GET("", auth.OptionalAuth(), cropHandler.SearchCrops)
			crops.GET("/:id", auth.OptionalAuth(), cropHandler.GetCrop)

			// Authenticated routes
			protected := crops.Group("")
			protected.Use(auth.AuthRequired())
			{
				protected.POST("", farmerOnly, cropHandler.CreateCrop)
				protected.PUT("/:id", farmerOnly, cropHandler.UpdateCrop)
				protected.DELETE("/:id", middleware.RoleRequired(models.RoleFarmer, models.RoleAdmin), cropHandler.DeleteCrop)
				protected.POST("/:id/images", farmerOnly, limits.Upload(), cropHandler.UploadImages)
			}
		}

		// Farmer dashboard routes
		farmer := v1.Group("/farmer")
		farmer.Use(auth.AuthRequired(), farmerOnly)
		{
			farmer.GET("/crops", cropHandler.ListMyCrops)
			farmer.GET("/orders", orderHandler.ListFarmerOrders)
		}

		// Order routes
		orders := v1.Group("/orders")
		orders.Use(auth.AuthRequired())
		{
			orders.POST("", buyerOnly, orderHandler.PlaceOrder)
			orders.GET("/my", buyerOnly, orderHandler.ListBuyerOrders)
			orders.GET("/:id", orderHandler.GetOrder)

			orders.PATCH("/:id/status", farmerOnly, orderHandler.UpdateStatus)
			orders.PATCH("/:id/confirm", farmerOnly, orderHandler.Confirm)
			orders.PATCH("/:id/reject", farmerOnly, orderHandler.Reject)
			orders.PATCH("/:id/deliver", farmerOnly, orderHandler.Deliver)

			orders.POST("/:id/payment", buyerOnly, paymentHandler.CreatePaymentOrder)
			orders.POST("/:id/payment/verify", buyerOnly, paymentHandler.VerifyPayment)
		}

		// Provider callbacks authenticate by signature, not by session.
		v1.POST("/payments/webhook/stripe", paymentHandler.StripeWebhook)

		// Notification routes
		notifications := v1.Group("/notifications")
		notifications.Use(auth.AuthRequired())
		{
			notifications.GET("", notificationHandler.List)
			notifications.PATCH("/read-all", notificationHandler.MarkAllRead)
			notifications.PATCH("/:id/read", notificationHandler.MarkRead)
		}

		// Scheme routes (public)
		schemes := v1.Group("/schemes")
		{
			schemes.GET("", schemeHandler.ListSchemes)
			schemes.GET("/:id", schemeHandler.GetScheme)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(auth.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/stats", adminHandler.GetDashboardStats)

			adminUsers := admin.Group("/users")
			{
				adminUsers.GET("", adminHandler.GetUsers)
				adminUsers.PATCH("/:id/block", adminHandler.BlockUser)
				adminUsers.PATCH("/:id/unblock", adminHandler.UnblockUser)
			}

			admin.DELETE("/crops/:id", adminHandler.DeleteCrop)

			adminOrders := admin.Group("/orders")
			{
				adminOrders.GET("", adminHandler.GetOrders)
				adminOrders.GET("/export", adminHandler.ExportOrders)
			}

			adminSchemes := admin.Group("/schemes")
			{
				adminSchemes.POST("", adminHandler.CreateScheme)
				adminSchemes.PUT("/:id", adminHandler.UpdateScheme)
				adminSchemes.DELETE("/:id", adminHandler.DeleteScheme)
			}
		}
	}

	// Uploaded images are served from disk when S3 is not configured
	if deps.Storage != nil && deps.Storage.IsLocal() {
		r.Static("/uploads", deps.Storage.LocalDir())
	}

	return r
}
