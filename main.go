package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/whisper-web/backend/internal/api"
	"github.com/whisper-web/backend/internal/auth"
	"github.com/whisper-web/backend/internal/config"
	"github.com/whisper-web/backend/internal/db"
	"github.com/whisper-web/backend/internal/download"
	"github.com/whisper-web/backend/internal/gpu"
	"github.com/whisper-web/backend/internal/job"
	"github.com/whisper-web/backend/internal/pipeline"
	"github.com/whisper-web/backend/internal/transcribe"
)

func main() {
	cfg := config.Load()

	// Ensure working directories exist
	os.MkdirAll(cfg.DataPath, 0755)
	os.MkdirAll(cfg.UploadPath, 0755)
	os.MkdirAll(cfg.OutputPath, 0755)

	// Initialize database
	database, err := db.NewSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Ensure admin user exists
	if err := database.EnsureAdmin(cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}
	log.Printf("Admin user ensured: %s", cfg.AdminUsername)

	// Probe GPU once so the log shows what the cuda dropdown will offer
	gpu.Detect()

	// Transcription pipeline: engine cache + downloader
	engines := transcribe.NewCache(transcribe.NewProcessLoader(cfg.PythonBin))
	fetcher := download.NewYtDlp(cfg.YtDlpBin)
	service := pipeline.NewService(pipeline.New(engines, fetcher), cfg.OutputPath)

	// Run queue
	queue := job.NewQueue(database.DB(), service.HandleJob)

	// Initialize JWT service
	jwtService := auth.NewJWTService(cfg.JWTSecret)

	// Create router
	router := api.NewRouter(database, jwtService, cfg, queue)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Starting server on %s", addr)
	log.Printf("Upload path: %s", cfg.UploadPath)
	log.Printf("Output path: %s", cfg.OutputPath)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		queue.Stop()
		engines.Close()
		database.Close()
		os.Exit(0)
	}()

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
