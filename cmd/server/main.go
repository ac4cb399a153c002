package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mikeboe/research-analyst/pkg/app"
	"github.com/mikeboe/research-analyst/pkg/config"
	"github.com/mikeboe/research-analyst/pkg/fusion"
	"github.com/mikeboe/research-analyst/pkg/server"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	svc := server.NewService(a.DB, a.NewAnalyst)
	handler := server.NewHandler(svc, fusion.NewEngine(cfg.Thresholds()), a.Searcher, a.Graph, a.Indexer)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Allow all for dev
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id"},
		ExposeHeaders:    []string{"Content-Length", "Mcp-Session-Id"},
		AllowCredentials: true,
	}))

	handler.RegisterRoutes(r)

	fmt.Printf("Server starting on port %s\n", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
