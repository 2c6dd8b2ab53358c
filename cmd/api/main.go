package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/Salones-api/internal/bootstrap"
	httpRouter "github.com/jhoicas/Salones-api/internal/interfaces/http"
	"github.com/jhoicas/Salones-api/pkg/config"
	"github.com/jhoicas/Salones-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: "api",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("storage", cfg.App.Storage).
		Str("payments", cfg.Payments.Provider).
		Msg("iniciando aplicación")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT_SECRET es obligatorio")
	}

	svc, cleanup, err := bootstrap.Build(context.Background(), cfg, log)
	defer cleanup()
	if err != nil {
		log.Error().Err(err).Msg("inicializar servicios")
		return
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.Payments.Timeout + 10*time.Second,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		Lifecycle:   svc.Lifecycle,
		Gate:        svc.Gate,
		SMS:         svc.SMS,
		Catalog:     svc.Catalog,
		JWTSecret:   cfg.JWT.Secret,
		UpgradeURL:  cfg.Payments.UpgradeURL,
		ServiceName: cfg.App.Name,
		SwaggerFile: cfg.HTTP.SwaggerFile,
		Log:         log.Component("http"),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Payments.Timeout+5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
