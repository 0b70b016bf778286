package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/invoicebox/invoicebox/internal/extraction"
	"github.com/invoicebox/invoicebox/internal/invoice"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("invoicebox")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "invoicebox.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./uploads", "Upload storage directory")
		engineType     = fs.StringLong("engine", "tesseract", "OCR engine: 'tesseract' or 'gemini'")
		ocrLang        = fs.StringLong("lang", "eng", "OCR language (tesseract)")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		dpi            = fs.Float64Long("dpi", 300, "Rasterization DPI")
		maxPages       = fs.IntLong("max-pages", 20, "Maximum pages per document")
		pageTimeout    = fs.DurationLong("page-timeout", 30*time.Second, "OCR time budget per page")
		ocrConcurrency = fs.IntLong("ocr-concurrency", 2, "Pages OCR'd in parallel per document")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICEBOX"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := invoice.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize OCR engine. Engine failure does not stop the server:
	// uploads degrade to empty results until the engine is fixed.
	var locator extraction.Locator
	switch *engineType {
	case "tesseract":
		slog.Info("Initializing Tesseract engine...", "lang", *ocrLang)
		locator, err = extraction.NewTesseractLocator(*ocrLang)
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini engine...", "model", *geminiModel)
		locator, err = extraction.NewGeminiLocator(apiKey, *geminiModel)
	default:
		slog.Error("Invalid engine type", "type", *engineType, "valid", "tesseract or gemini")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("OCR engine unavailable, starting in degraded mode", "error", err)
		locator = nil
	}
	if locator != nil {
		defer locator.Close()
	}

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := invoice.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Assemble the pipeline and service
	rasterizer := extraction.NewFitzRasterizer(*dpi, *maxPages)
	pipeline := extraction.NewPipeline(rasterizer, locator,
		extraction.WithOCRConcurrency(*ocrConcurrency),
		extraction.WithPageTimeout(*pageTimeout),
	)

	docTimeout := time.Duration(*maxPages) * *pageTimeout
	invoiceService := invoice.NewService(db, store, pipeline, docTimeout)

	basicAuth := invoice.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := invoice.NewServer(invoiceService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
