// Command reconcile ejecuta las tareas programadas de facturación: conciliación con el
// procesador de pagos, aplicación de cambios de plan programados y reparación de snapshots.
package main

import (
	"context"
	"os"

	"github.com/jhoicas/Salones-api/internal/bootstrap"
	"github.com/jhoicas/Salones-api/pkg/config"
	"github.com/jhoicas/Salones-api/pkg/logger"
)

func main() {
	root := newRootCmd(func(ctx context.Context) (*bootstrap.Services, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, func() {}, err
		}
		log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Service: "reconcile"})
		return bootstrap.Build(ctx, cfg, log)
	})
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
