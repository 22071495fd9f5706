package handlers

import (
	"expressless/internal/config"
	"expressless/internal/middleware"
	"expressless/pkg/lambda"
)

// ServiceName is reported by the health endpoint
const ServiceName = "expressless"

// Version is reported by the health endpoint
const Version = "1.0.0"

// RouterConfig holds configuration for setting up routes
type RouterConfig struct {
	Config      *config.Config
	AuthService *middleware.AuthService
}

// NewApp builds the complete middleware chain served by the adapter:
// global middleware, the routes and the JSON error stage.
func NewApp(rc *RouterConfig) lambda.Middleware {
	// Route params are merged before route stages run
	router := NewRouter().Group("", lambda.Use(middleware.PathValidation()))
	SetupRoutes(router, rc)
	if !rc.Config.IsProduction() {
		SetupDevelopmentRoutes(router, rc)
	}

	stages := SetupMiddleware(rc.Config)
	stages = append(stages,
		lambda.Use(router.Middleware()),
		lambda.Catch(middleware.ErrorHandler()),
	)
	return lambda.Chain(stages...)
}

// SetupMiddleware returns the global middleware stages in order
func SetupMiddleware(cfg *config.Config) []lambda.Stage {
	stages := []lambda.Stage{
		// Request ID and correlation ID
		lambda.Use(middleware.RequestID()),
		lambda.Use(middleware.CORS(cfg.CORS.AllowOrigin)),
		lambda.Use(middleware.CorrelationID()),
		lambda.Use(middleware.SecurityHeaders()),
		lambda.Use(middleware.RequestSizeLimit(cfg.Request.MaxBodyBytes)),
		// Content type validation for requests with bodies
		lambda.Use(middleware.ContentTypeValidation("json", "+json")),
		lambda.Use(middleware.RequestValidation()),
		lambda.Use(middleware.RateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)),
	}

	if cfg.Environment == "development" {
		stages = append(stages, lambda.Use(middleware.RequestLogger()))
	}
	return stages
}

// SetupRoutes configures all API routes
func SetupRoutes(router *Router, rc *RouterConfig) {
	demoHandler := NewDemoHandler(ServiceName, Version, rc.Config.IsProduction())
	authHandler := NewAuthHandler(rc.AuthService)

	// Health check endpoint
	router.GET("/health", lambda.Use(demoHandler.Health))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/greeting", lambda.Use(demoHandler.Greeting))
		v1.POST("/echo", lambda.Use(demoHandler.Echo))
		v1.POST("/session", lambda.Use(demoHandler.Session))

		// Authentication routes (no auth required)
		auth := v1.Group("/auth")
		{
			auth.POST("/login", lambda.Use(authHandler.Login))
			auth.POST("/refresh", lambda.Use(authHandler.RefreshToken))
			auth.POST("/validate", lambda.Use(authHandler.ValidateToken))

			// Protected auth routes
			authProtected := auth.Group("", lambda.Use(middleware.Authentication(rc.AuthService)))
			{
				authProtected.POST("/logout", lambda.Use(authHandler.Logout))
				authProtected.GET("/me", lambda.Use(authHandler.GetCurrentUser))
			}
		}

		// Admin routes
		admin := v1.Group("/admin",
			lambda.Use(middleware.Authentication(rc.AuthService)),
			lambda.Use(middleware.Authorization(string(middleware.RoleAdmin))),
		)
		{
			admin.GET("/users/:user_id", lambda.Use(func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
				res.JSON(map[string]string{"id": req.Param("user_id")})
			}))
		}
	}
}

// SetupDevelopmentRoutes adds development-only routes
func SetupDevelopmentRoutes(router *Router, rc *RouterConfig) {
	dev := router.Group("/dev")
	{
		// Generate demo token for testing
		dev.POST("/token", lambda.Use(func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
			token, _, err := rc.AuthService.Issue(middleware.Identity{
				UserID:   "demo-user",
				Username: "demo",
				Email:    "demo@example.com",
				Roles:    []string{string(middleware.RoleAdmin)},
			})
			if err != nil {
				next(err)
				return
			}
			res.JSON(map[string]string{"token": token})
		}))

		// Configuration info
		dev.GET("/config", lambda.Use(func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
			res.JSON(map[string]any{
				"environment": rc.Config.Environment,
				"log_level":   rc.Config.Log.Level,
				"cors_origin": rc.Config.CORS.AllowOrigin,
				"rate_limit":  rc.Config.RateLimit.RequestsPerSecond,
				"metrics":     rc.Config.Metrics.Enabled,
				"token_ttl":   rc.AuthService.TokenDuration().String(),
				"api_version": Version,
			})
		}))
	}
}
