package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mikeboe/research-canvas/pkg/config"
	"github.com/mikeboe/research-canvas/pkg/research"
	"github.com/mikeboe/research-canvas/pkg/server"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	cfg := config.Load()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt, err := research.NewRuntime(context.Background(), cfg, reg)
	if err != nil {
		slog.Error("Failed to initialize research runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	// Session logs go to research_logs as well as stdout.
	if rt.DB != nil {
		rt.Engine.Logger = slog.New(server.NewDBLogHandler(rt.DB, slog.Default().Handler()))
	}

	svc := server.NewService(rt.Engine, rt.DB, rt.Index)
	handler := server.NewHandler(svc, reg)

	r := gin.Default()

	// CORS Setup
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Allow all for dev
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id"},
		ExposeHeaders:    []string{"Content-Length", "Mcp-Session-Id"},
		AllowCredentials: true,
	}))

	handler.RegisterRoutes(r)

	slog.Info("Server starting", "port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		slog.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
