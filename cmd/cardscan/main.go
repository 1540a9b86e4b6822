package main

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/cardscan/internal/card"
	"github.com/zombor/cardscan/internal/checkout"
	"github.com/zombor/cardscan/internal/scanning"
	"github.com/zombor/cardscan/internal/secure"
	"github.com/zombor/cardscan/internal/session"
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

	fs := ff.NewFlagSet("cardscan")
	var (
		port            = fs.IntLong("port", 8080, "HTTP server port")
		dbPath          = fs.StringLong("db", "cardscan.db", "Session database file path (empty keeps sessions in memory)")
		backendURL      = fs.StringLong("backend-url", "", "Scan backend base URL")
		backendToken    = fs.StringLong("backend-token", "", "Bearer token for the scan backend (optional)")
		requestTimeout  = fs.DurationLong("request-timeout", 15*time.Second, "Timeout for a single backend request")
		pollInterval    = fs.DurationLong("poll-interval", scanning.DefaultPollInterval, "Delay between poll attempts")
		pollMaxAttempts = fs.IntLong("poll-max-attempts", 0, "Give up after this many poll attempts (0 = unbounded)")
		pollTimeout     = fs.DurationLong("poll-timeout", 0, "Give up polling after this long (0 = unbounded)")
		threshold       = fs.Float64Long("confidence-threshold", card.DefaultConfidenceThreshold, "Confidence below which a scan is flagged")
		cipherName      = fs.StringLong("cipher", "cbc", "Payload cipher: 'cbc' or 'passphrase'")
		tokenSecret     = fs.StringLong("token-secret", "", "HMAC secret to verify auth tokens (optional)")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion     = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("CARDSCAN"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize session store
	var store session.Store
	if *dbPath == "" {
		slog.Info("Keeping scan sessions in memory")
		store = session.NewMemoryStore()
	} else {
		slog.Info("Initializing database...", "path", *dbPath)
		db, err := session.NewBoltStore(*dbPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = db
	}

	slog.Info("Initializing scan backend...", "url", *backendURL)
	backend, err := scanning.NewClient(*backendURL, *backendToken, *requestTimeout)
	if err != nil {
		slog.Error("Failed to initialize scan backend", "error", err)
		os.Exit(1)
	}

	c, err := secure.NewCipher(*cipherName)
	if err != nil {
		slog.Error("Invalid cipher", "cipher", *cipherName, "valid", "cbc or passphrase")
		os.Exit(1)
	}

	var extractor secure.KeyExtractor = secure.NewUnverifiedExtractor()
	if *tokenSecret != "" {
		extractor, err = secure.NewVerifiedExtractor([]byte(*tokenSecret))
		if err != nil {
			slog.Error("Failed to initialize token verification", "error", err)
			os.Exit(1)
		}
		slog.Info("Auth token verification enabled")
	}

	service := checkout.NewService(checkout.Deps{
		Initiator: scanning.NewInitiator(backend, store),
		Poller: scanning.NewPoller(backend, scanning.PollPolicy{
			Interval:    *pollInterval,
			MaxAttempts: *pollMaxAttempts,
			Timeout:     *pollTimeout,
		}),
		Store:     store,
		Extractor: extractor,
		Decryptor: secure.NewDecryptor(c),
		Validator: card.NewValidator(*threshold),
	})
	defer service.Close()

	// Pick up a scan that was pending when the process last stopped
	if _, err := service.Resume(); err != nil && !errors.Is(err, session.ErrNotFound) {
		slog.Warn("Could not resume previous scan", "error", err)
	}

	// Initialize server
	basicAuth := checkout.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := checkout.NewServer(service, basicAuth)

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
