package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/accessdesk/internal/app"
	"github.com/odyssey-erp/accessdesk/internal/iap"
	"github.com/odyssey-erp/accessdesk/internal/observability"
	"github.com/odyssey-erp/accessdesk/internal/platform/cache"
	"github.com/odyssey-erp/accessdesk/internal/platform/db"
	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint/permissions"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint/rolepermissions"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint/roles"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint/userroles"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint/users"
	"github.com/odyssey-erp/accessdesk/internal/view"
	"github.com/odyssey-erp/accessdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGConnMaxAge})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "accessdesk_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	httpClient := &http.Client{Timeout: 5 * time.Second}
	var audience iap.AudienceSource = iap.NewMetadataAudience(cfg.MetadataURL, httpClient)
	if cfg.IAPAudience != "" {
		audience = iap.StaticAudience(cfg.IAPAudience)
	}
	verifier := iap.NewVerifier(iap.NewKeySet(cfg.IAPCertsURL, httpClient, cfg.IAPKeyCacheTTL), audience, cfg.IAPIssuer)
	resolver := iap.NewResolver(verifier, logger)

	rbacService := rbac.NewService(rbac.NewPGStore(dbpool), logger)
	guard := rbac.Guard{
		Authorizer:  rbacService,
		Identities:  resolver,
		Logger:      logger,
		Metrics:     metrics,
		LandingPath: cfg.LandingPath,
	}

	kit := &tablemaint.Kit{
		Logger:    logger,
		Templates: templates,
		CSRF:      csrfManager,
		Guard:     guard,
		Audit:     shared.NewAuditLogger(dbpool),
		Forms:     tablemaint.NewForms(),
	}

	userService := users.NewService(users.NewRepository(dbpool), users.Options{
		Protected:     cfg.ProtectedUsers,
		DefaultRoleID: cfg.DefaultRoleID,
	})
	roleService := roles.NewService(roles.NewRepository(dbpool), roles.Options{
		Protected:           cfg.ProtectedRoles,
		DefaultPermissionID: cfg.DefaultPermissionID,
	})
	tableHandler := tablemaint.NewHandler(kit, map[string]tablemaint.Mounter{
		"user":            users.NewHandler(kit, userService, cfg.TrustedTaskQueues),
		"role":            roles.NewHandler(kit, roleService),
		"permission":      permissions.NewHandler(kit, permissions.NewService(permissions.NewRepository(dbpool), cfg.ProtectedPermissions)),
		"user_role":       userroles.NewHandler(kit, userroles.NewService(userroles.NewRepository(dbpool), cfg.ProtectedUserRoles)),
		"role_permission": rolepermissions.NewHandler(kit, rolepermissions.NewService(rolepermissions.NewRepository(dbpool), cfg.ProtectedRolePermissions)),
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Guard:            guard,
		TableMaintenance: tableHandler,
		JobHandler:       jobs.NewHandler(inspector, logger, guard),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
