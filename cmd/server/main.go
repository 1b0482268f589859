// @title           Bufete API
// @version         1.0
// @description     Law-firm case management: administrators assign cases, lawyers move them through their lifecycle, book appointments with clients, exchange messages and keep versioned documents per case.
// @contact.name    Aldo Rifki Putra
// @contact.email   aldoetobex@gmail.com
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

//go:generate swag init -d ../.. -g cmd/server/main.go -o ../../docs

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	fiberSwagger "github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/aldoetobex/bufete-backend/docs"
	"github.com/aldoetobex/bufete-backend/internal/access"
	"github.com/aldoetobex/bufete-backend/internal/auth"
	"github.com/aldoetobex/bufete-backend/internal/cases"
	"github.com/aldoetobex/bufete-backend/internal/directory"
	"github.com/aldoetobex/bufete-backend/internal/documents"
	"github.com/aldoetobex/bufete-backend/internal/messaging"
	"github.com/aldoetobex/bufete-backend/internal/reports"
	"github.com/aldoetobex/bufete-backend/internal/scheduling"
	"github.com/aldoetobex/bufete-backend/internal/storage"
	"github.com/aldoetobex/bufete-backend/internal/store"
	"github.com/aldoetobex/bufete-backend/internal/store/gormstore"
	"github.com/aldoetobex/bufete-backend/internal/store/memstore"
	"github.com/aldoetobex/bufete-backend/pkg/config"
	"github.com/aldoetobex/bufete-backend/pkg/database"
	"github.com/aldoetobex/bufete-backend/pkg/logger"
	"github.com/aldoetobex/bufete-backend/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging.Level)
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	// Persistence
	var (
		repo store.Repository
		db   *gorm.DB
	)
	switch cfg.Database.Driver {
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		repo = memstore.New()
	default:
		db, err = database.Open(cfg.Database, log)
		if err != nil {
			log.Fatal("database", zap.Error(err))
		}
		repo = gormstore.New(db)
	}

	files, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal("file storage", zap.Error(err))
	}

	// Services
	eng := access.NewEngine(log.Named("access"))
	dirSvc := directory.NewService(repo, auth.BcryptHasher{}, eng, log.Named("directory"))
	caseSvc := cases.NewService(repo, eng, log.Named("cases"))
	schedSvc := scheduling.NewService(repo, eng, log.Named("scheduling"))
	msgSvc := messaging.NewService(repo, eng, log.Named("messaging"))
	docSvc := documents.NewService(repo, files, eng, cfg.Storage.SignedURLTTL, log.Named("documents"))
	repSvc := reports.NewService(repo, eng, log.Named("reports"))

	b := cfg.Bootstrap
	if err := dirSvc.EnsureAdmin(ctx, b.AdminName, b.AdminEmail, b.AdminPassword); err != nil {
		log.Fatal("bootstrap administrator", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: auth.ErrorHandler(log),
		BodyLimit:    cfg.HTTP.BodyLimitMiB << 20,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(auth.AccessLog(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		if db != nil {
			sqlDB, err := db.DB()
			if err != nil || sqlDB.PingContext(c.UserContext()) != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "database unavailable"})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}
	app.Get("/swagger/*", fiberSwagger.HandlerDefault)

	api := app.Group("/api")
	tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.TTL)
	authed := auth.RequireAuth(tokens, repo)
	adminOnly := auth.RequireRole(models.RoleAdmin)
	staff := auth.RequireRole(models.RoleAdmin, models.RoleLawyer)

	// Auth & directory
	authH := auth.NewHandler(dirSvc, tokens)
	api.Post("/signup", authH.Signup)
	api.Post("/login", authH.Login)
	api.Get("/me", authed, authH.Me)
	api.Get("/users", authed, adminOnly, authH.ListUsers)
	api.Post("/users", authed, adminOnly, authH.CreateUser)
	api.Patch("/users/:id/status", authed, adminOnly, authH.SetStatus)
	api.Get("/directory/lawyers", authed, staff, authH.ActiveLawyers)
	api.Get("/directory/clients", authed, staff, authH.ActiveClients)

	// Cases
	caseH := cases.NewHandler(caseSvc)
	api.Get("/cases", authed, caseH.List)
	api.Post("/cases", authed, staff, caseH.Create)
	api.Get("/cases/:id", authed, caseH.Get)
	api.Post("/cases/:id/transition", authed, staff, caseH.Transition)
	api.Get("/cases/:id/history", authed, caseH.History)
	api.Get("/lawyer/clients", authed, auth.RequireRole(models.RoleLawyer), caseH.LawyerClients)

	// Documents
	docH := documents.NewHandler(docSvc, cfg.Storage.MaxFileMiB)
	api.Get("/cases/:id/documents", authed, docH.List)
	api.Post("/cases/:id/documents", authed, staff, docH.Upload)
	api.Get("/documents/:id/signed-url", authed, docH.SignedURL)

	// Appointments (static paths before :id)
	schedH := scheduling.NewHandler(schedSvc)
	api.Get("/appointments/upcoming", authed, schedH.Upcoming)
	api.Get("/appointments", authed, schedH.List)
	api.Post("/appointments", authed, staff, schedH.Book)
	api.Post("/appointments/:id/cancel", authed, staff, schedH.Cancel)
	api.Post("/appointments/:id/complete", authed, staff, schedH.Complete)

	// Messages (static paths before :id)
	msgH := messaging.NewHandler(msgSvc)
	api.Get("/messages/recipients", authed, msgH.Recipients)
	api.Get("/messages/inbox", authed, msgH.Inbox)
	api.Post("/messages", authed, msgH.Send)
	api.Get("/messages/:id", authed, msgH.Get)
	api.Post("/messages/:id/read", authed, msgH.MarkRead)

	// Reports
	repH := reports.NewHandler(repSvc)
	rep := api.Group("/reports", authed, adminOnly)
	rep.Get("/dashboard", repH.Dashboard)
	rep.Get("/cases", repH.Cases)
	rep.Get("/lawyers", repH.Lawyers)
	rep.Get("/financial", repH.Financial)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
		log.Info("server listening", zap.String("addr", addr), zap.String("env", cfg.App.Environment))
		if err := app.Listen(addr); err != nil {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
}
