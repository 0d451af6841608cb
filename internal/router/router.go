package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/fresadolab/cnc-training-api/internal/handler"
	"github.com/fresadolab/cnc-training-api/internal/middleware"
	"github.com/fresadolab/cnc-training-api/internal/models"
	"github.com/fresadolab/cnc-training-api/internal/repository"
	"github.com/fresadolab/cnc-training-api/internal/service"
	"github.com/fresadolab/cnc-training-api/pkg/config"
	"github.com/fresadolab/cnc-training-api/pkg/logger"
	corsmiddleware "github.com/fresadolab/cnc-training-api/pkg/middleware/cors"
	reqidmiddleware "github.com/fresadolab/cnc-training-api/pkg/middleware/requestid"
	"go.uber.org/zap"
)

// Dependencies carries everything the router needs to assemble routes.
type Dependencies struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *service.MetricsService
	AuthService *service.AuthService
	UserRepo    *repository.UserRepository

	Auth        *handler.AuthHandler
	Users       *handler.UserHandler
	Classes     *handler.ClassHandler
	Assignments *handler.AssignmentHandler
	Responses   *handler.ResponseHandler
	MetricsH    *handler.MetricsHandler

	UploadsDir string
}

// New assembles the gin engine with all middleware and routes.
func New(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(deps.Config.CORS.AllowedOrigins))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	r.GET("/health", deps.MetricsH.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", deps.MetricsH.Prometheus)

	if deps.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if deps.UploadsDir != "" {
		r.Static("/uploads", deps.UploadsDir)
	}

	api := r.Group(deps.Config.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", deps.Auth.Register)
	auth.POST("/login", deps.Auth.Login)

	protected := api.Group("")
	protected.Use(middleware.JWT(deps.AuthService))

	protected.GET("/auth/me", deps.Auth.Me)

	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)

	// Teachers read the roster as the participant picker; only admins
	// change roles.
	users := protected.Group("/users")
	users.GET("", staff, deps.Users.List)
	users.PUT("/:id/role",
		middleware.RequireRoles(models.RoleAdmin),
		middleware.Audit(deps.UserRepo, models.AuditActionRoleChange, "user"),
		deps.Users.SetRole,
	)

	classes := protected.Group("/classes")
	classes.GET("", staff, deps.Classes.List)
	classes.POST("", staff,
		middleware.Audit(deps.UserRepo, models.AuditActionCreate, "class"),
		deps.Classes.Create,
	)
	classes.GET("/:id/participants", staff, deps.Classes.ListParticipants)
	classes.POST("/:id/participants", staff,
		middleware.Audit(deps.UserRepo, models.AuditActionCreate, "class_participant"),
		deps.Classes.AddParticipant,
	)
	classes.GET("/:id/assignments", deps.Assignments.List)
	classes.POST("/:id/assignments", staff,
		middleware.Audit(deps.UserRepo, models.AuditActionCreate, "assignment"),
		deps.Assignments.Create,
	)
	classes.GET("/:id/responses", staff, deps.Responses.ListByClass)
	classes.GET("/:id/responses/export", staff, deps.Responses.Export)

	assignments := protected.Group("/assignments")
	assignments.PUT("/:id", staff,
		middleware.Audit(deps.UserRepo, models.AuditActionUpdate, "assignment"),
		deps.Assignments.Update,
	)
	assignments.DELETE("/:id", staff,
		middleware.Audit(deps.UserRepo, models.AuditActionDelete, "assignment"),
		deps.Assignments.Delete,
	)
	assignments.GET("/:id/responses", staff, deps.Responses.ListByAssignment)
	assignments.POST("/:id/responses",
		middleware.RequireRoles(models.RoleStudent),
		deps.Responses.Submit,
	)

	return r
}
