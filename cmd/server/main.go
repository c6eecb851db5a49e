package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/access"
	"github.com/koombo/koombo/internal/api"
	"github.com/koombo/koombo/internal/config"
	"github.com/koombo/koombo/internal/db"
	"github.com/koombo/koombo/internal/membership"
	"github.com/koombo/koombo/internal/middleware"
	"github.com/koombo/koombo/internal/models"
	"github.com/koombo/koombo/internal/notify"
	"github.com/koombo/koombo/internal/observ"
	"github.com/koombo/koombo/internal/order"
	"github.com/koombo/koombo/internal/realtime"
	"github.com/koombo/koombo/internal/repository/postgres"
	"github.com/koombo/koombo/internal/tenant"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Config and logger
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// ---------------------------------------------------------------
	// 2. Postgres: migrate, then pool
	//
	// Startup has no parent deadline — Background() is correct here.
	// Once serving, every request brings its own context.
	// ---------------------------------------------------------------
	if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	// ---------------------------------------------------------------
	// 3. Redis: the order change feed rides on pub/sub
	// ---------------------------------------------------------------
	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(redisOpt)
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	// ---------------------------------------------------------------
	// 4. Repositories
	// ---------------------------------------------------------------
	pool := database.Pool()
	tenantRepo := postgres.NewTenantStore(pool)
	userRepo := postgres.NewUserStore(pool)
	membershipRepo := postgres.NewMembershipStore(pool)
	menuRepo := postgres.NewMenuStore(pool)
	orderRepo := postgres.NewOrderStore(pool)

	// ---------------------------------------------------------------
	// 5. Domain services
	//
	// Wiring order mirrors the data flow: resolver classifies the
	// request, guard admits it, the order service mutates, the feed
	// re-broadcasts, the dispatcher notifies.
	// ---------------------------------------------------------------
	resolver := tenant.NewResolver(tenantRepo, cfg.MainDomains, cfg.ParentDomains)
	identity := access.NewIdentity(userRepo)
	guard := access.NewGuard(membershipRepo, logger)
	memberships := membership.NewService(userRepo, membershipRepo, logger)

	hub := realtime.NewHub(logger)
	dispatcher := notify.NewDispatcher(hub, logger)
	publisher := realtime.NewPublisher(rdb)

	orders := order.NewService(orderRepo, menuRepo, guard, publisher, dispatcher, logger)

	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()
	feed := realtime.NewFeed(rdb, orderRepo, hub, logger)
	go feed.Run(feedCtx)

	// ---------------------------------------------------------------
	// 6. Handlers
	// ---------------------------------------------------------------
	authHandler := api.NewAuthHandler(userRepo, cfg.JWTSecret, logger)
	userHandler := api.NewUserHandler(userRepo, logger)
	menuHandler := api.NewMenuHandler(menuRepo, logger)
	orderHandler := api.NewOrderHandler(orders, hub, logger)
	kitchenHandler := api.NewKitchenHandler(orders, orderRepo, hub, dispatcher, logger)
	adminHandler := api.NewAdminHandler(orders, orderRepo, memberships, cfg.WhatsAppPrefix, logger)
	tenantHandler := api.NewTenantHandler(tenantRepo, logger)

	// ---------------------------------------------------------------
	// 7. Routes
	// ---------------------------------------------------------------
	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	// Health is PUBLIC and tenant-less — load balancers hit it.
	srv.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Everything else resolves the Host header first: main domain or an
	// active tenant subdomain, anything else is "restaurant not found".
	root := srv.Group("/")
	root.Use(middleware.ResolveTenant(resolver))

	root.POST("/auth/signup", authHandler.Signup)
	root.POST("/auth/login", authHandler.Login)

	// Public tenant storefront: browsing and checkout need no account.
	storefront := root.Group("/")
	storefront.Use(middleware.RequireTenant())
	storefront.GET("/menu", menuHandler.Browse)
	storefront.GET("/menu/featured", menuHandler.Featured)
	storefront.POST("/orders", orderHandler.Place)
	storefront.GET("/orders/:id/track", orderHandler.Track)
	storefront.GET("/orders/:id/ws", orderHandler.Stream)

	authed := root.Group("/")
	authed.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	authed.GET("/users/me", userHandler.GetMe)

	// Kitchen board: kitchen, admin, or super_admin, plus a membership
	// on the resolved tenant (the guard re-derives both from storage).
	kitchen := root.Group("/kitchen")
	kitchen.Use(
		middleware.TokenFromQuery(),
		middleware.AuthMiddleware(cfg.JWTSecret),
		middleware.RequireRole(models.RoleKitchen, models.RoleAdmin, models.RoleSuperAdmin),
		middleware.RequireTenant(),
		middleware.Guarded(identity, guard),
	)
	kitchen.GET("/orders", kitchenHandler.ListOpen)
	kitchen.PATCH("/orders/:id/status", kitchenHandler.Transition)
	kitchen.GET("/ws", kitchenHandler.Stream)
	kitchen.GET("/notifications", kitchenHandler.Notifications)
	kitchen.POST("/notifications/:id/read", kitchenHandler.DismissNotification)

	// Admin console: admin or super_admin.
	admin := root.Group("/admin")
	admin.Use(
		middleware.AuthMiddleware(cfg.JWTSecret),
		middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin),
		middleware.RequireTenant(),
		middleware.Guarded(identity, guard),
	)
	admin.GET("/orders", adminHandler.ListOrders)
	admin.GET("/orders/:id", adminHandler.GetOrder)
	admin.DELETE("/orders/:id", adminHandler.PurgeOrder)
	admin.POST("/orders/:id/whatsapp", adminHandler.WhatsApp)
	admin.POST("/menu", menuHandler.CreateItem)
	admin.PUT("/menu/:id", menuHandler.UpdateItem)
	admin.DELETE("/menu/:id", menuHandler.DeleteItem)
	admin.POST("/categories", menuHandler.CreateCategory)
	admin.DELETE("/categories/:id", menuHandler.DeleteCategory)
	admin.POST("/members", adminHandler.AssignMember)
	admin.DELETE("/members/:user_id", adminHandler.RemoveMember)
	admin.POST("/users/:id/role", adminHandler.ChangeRole)

	// Platform console: super_admin only, lives on the main domain.
	super := root.Group("/super")
	super.Use(
		middleware.AuthMiddleware(cfg.JWTSecret),
		middleware.RequireRole(models.RoleSuperAdmin),
	)
	super.POST("/tenants", tenantHandler.Create)
	super.GET("/tenants", tenantHandler.List)
	super.PUT("/tenants/:id", tenantHandler.Update)
	super.POST("/tenants/:id/deactivate", tenantHandler.Deactivate)
	super.POST("/tenants/:id/activate", tenantHandler.Activate)

	logger.Info("starting koombo",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	return srv.Run(":" + cfg.Port)
}
