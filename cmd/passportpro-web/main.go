package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ymiah/passportpro/internal/auth"
	"github.com/ymiah/passportpro/internal/compliance"
	"github.com/ymiah/passportpro/internal/config"
	"github.com/ymiah/passportpro/internal/logging"
	"github.com/ymiah/passportpro/internal/pipeline"
	"github.com/ymiah/passportpro/internal/session"
)

// CLI flags
var (
	portFlag  int
	modelFlag string
)

// Shared server state, initialized in runMain.
var (
	sessions *session.Store
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "passportpro-web",
	Short: "Web API for the passport photo compliance pipeline",
	Long: `passportpro-web starts a local web server exposing the passport photo
pipeline: upload a portrait, crop it to the 35:45 passport frame, submit it
to the compliance backend, tune display adjustments, and download the
score-gated export.

Examples:
  passportpro-web
  passportpro-web --port 9090
  passportpro-web --model gemini-2.5-flash-image`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Gemini image model to use (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	start := time.Now()
	logging.Init()

	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}

	apiKey, err := auth.GetAPIKey()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get API key")
	}

	ctx := context.Background()
	client, err := compliance.NewClient(ctx, apiKey, cfg.Model, cfg.AspectHint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create compliance client")
	}
	if err := client.Validate(ctx); err != nil {
		log.Fatal().Err(err).Msg("API key validation failed")
	}

	sessions = session.NewStore(func() *pipeline.Pipeline {
		return pipeline.New(client, cfg.MaxUploadBytes)
	}, time.Duration(cfg.SessionTTLMinutes)*time.Minute)

	stopSweeper := make(chan struct{})
	sessions.StartSweeper(5*time.Minute, stopSweeper)
	defer close(stopSweeper)

	handler := withLogging(withCORS(newMux()))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second, // Transformation runs inside the request
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logging.NewStartupLogger("passportpro-web").
		Config("port", strconv.Itoa(cfg.Port)).
		Config("model", cfg.Model).
		Config("aspectHint", cfg.AspectHint).
		Config("maxUploadBytes", strconv.FormatInt(cfg.MaxUploadBytes, 10)).
		Config("sessionTTLMinutes", strconv.Itoa(cfg.SessionTTLMinutes)).
		Feature("sessionSweeper", true).
		InitDuration(time.Since(start)).
		Log()

	fmt.Printf("\n  PassportPro API: http://localhost:%d\n\n", cfg.Port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", handleSessionCreate)
	mux.HandleFunc("/api/state", handleState)
	mux.HandleFunc("/api/upload", handleUpload)
	mux.HandleFunc("/api/crop", handleCrop)
	mux.HandleFunc("/api/crop/cancel", handleCropCancel)
	mux.HandleFunc("/api/process", handleProcess)
	mux.HandleFunc("/api/adjust", handleAdjust)
	mux.HandleFunc("/api/preview", handlePreview)
	mux.HandleFunc("/api/export", handleExport)
	mux.HandleFunc("/api/export/bundle", handleExportBundle)
	mux.HandleFunc("/api/reset", handleReset)
	return mux
}

// --- Middleware ---

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("API request")
		}
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only allow localhost origins; the server is a local tool.
		origin := r.Header.Get("Origin")
		if origin != "" && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
