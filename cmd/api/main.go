package main

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/AdarshRaj19/Medshare/internal/app"
	"github.com/AdarshRaj19/Medshare/internal/clock"
	"github.com/AdarshRaj19/Medshare/internal/config"
	"github.com/AdarshRaj19/Medshare/internal/messaging"
	"github.com/AdarshRaj19/Medshare/internal/storage/postgres"
	transporthttp "github.com/AdarshRaj19/Medshare/internal/transport/http"
	"github.com/AdarshRaj19/Medshare/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := log.Default()
	loadEnvFile(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	var events app.Publisher = app.NopPublisher()
	if cfg.EventsEnabled() {
		kafkaPub := messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { _ = kafkaPub.Close() }()
		events = messaging.LogFailures(kafkaPub, logger)
	} else {
		logger.Printf("WARN: KAFKA_BROKERS not set, lifecycle events disabled")
	}

	clk := clock.NewSystem()

	batchRepo := postgres.NewBatchRepository(pool)
	batchSvc := app.NewBatchService(batchRepo, clk, app.WithRetention(cfg.Retention))
	requestRepo := postgres.NewRequestRepository(pool)
	requestSvc := app.NewRequestService(requestRepo, clk, events)
	reservationRepo := postgres.NewReservationRepository(pool)
	reservationSvc := app.NewReservationService(
		reservationRepo, batchSvc, requestSvc, clk, events,
		app.WithHoldTTL(cfg.ReservationTTL),
	)
	matchRepo := postgres.NewMatchRepository(pool)
	matchSvc := app.NewMatchService(matchRepo, reservationSvc, clk)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/batches", transporthttp.HandleAddBatch(batchSvc))
	mux.Handle("/requests", transporthttp.HandleSubmitRequest(requestSvc))
	mux.Handle("/reservations/", transporthttp.HandleReservationAction(reservationSvc))
	mux.Handle("/match/run", transporthttp.HandleRunMatch(matchSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOrigins, mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: handler,
	}

	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	defer stopSweeps()
	go runSweeps(sweepCtx, logger, cfg.SweepInterval, batchSvc, requestSvc, reservationSvc, matchSvc)

	log.Printf("api listening on :%s service_id=%s", cfg.ServerPort, cfg.ServiceID)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
		}
	case <-stopCtx.Done():
		log.Printf("shutdown signal received, stopping server")
	}
	stopSweeps()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server shutdown error: %v", err)
	}
	log.Printf("server stopped")
}

// runSweeps drives the periodic maintenance the core deliberately does not
// own: expiry sweeps, forced releases, the matching pass, retention archive.
func runSweeps(
	ctx context.Context,
	logger *log.Logger,
	interval time.Duration,
	batches *app.BatchService,
	requests *app.RequestService,
	reservations *app.ReservationService,
	matches *app.MatchService,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		expiredBatches, err := batches.SweepExpired(ctx)
		if err != nil {
			logger.Printf("WARN: batch sweep: %v", err)
		}
		if len(expiredBatches) > 0 {
			if err := reservations.ReleaseForBatches(ctx, expiredBatches); err != nil {
				logger.Printf("WARN: release for expired batches: %v", err)
			}
		}

		expiredRequests, err := requests.SweepExpired(ctx)
		if err != nil {
			logger.Printf("WARN: request sweep: %v", err)
		}
		if len(expiredRequests) > 0 {
			if err := reservations.ReleaseForRequests(ctx, expiredRequests); err != nil {
				logger.Printf("WARN: release for expired requests: %v", err)
			}
		}

		if _, err := reservations.SweepExpired(ctx); err != nil {
			logger.Printf("WARN: reservation sweep: %v", err)
		}

		if report, err := matches.RunPass(ctx); err != nil {
			logger.Printf("WARN: matching pass (reserved %d of %d): %v", report.Reserved, report.Proposed, err)
		} else if report.Reserved > 0 {
			logger.Printf("matching pass reserved %d of %d proposals", report.Reserved, report.Proposed)
		}

		if archived, err := batches.ArchiveTerminal(ctx); err != nil {
			logger.Printf("WARN: archive terminal batches: %v", err)
		} else if archived > 0 {
			logger.Printf("archived %d terminal batches", archived)
		}
	}
}

func loadEnvFile(logger *log.Logger) {
	path, err := findEnvFile()
	if err != nil {
		logger.Printf("WARN: failed to locate .env: %v", err)
		return
	}
	if path == "" {
		return
	}

	file, err := os.Open(path)
	if err != nil {
		logger.Printf("WARN: failed to open %s: %v", path, err)
		return
	}
	if err := parseEnvFile(logger, file); err != nil {
		logger.Printf("WARN: failed to load %s: %v", path, err)
	} else {
		logger.Printf("loaded env from %s", path)
	}
	_ = file.Close()
}

func findEnvFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for i := 0; i < 6; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

func parseEnvFile(logger *log.Logger, file *os.File) error {
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		value = trimQuotes(value)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			logger.Printf("WARN: failed to set %s from env file", key)
		}
	}
	return scanner.Err()
}

func trimQuotes(value string) string {
	if len(value) < 2 {
		return value
	}
	if (value[0] == '"' && value[len(value)-1] == '"') ||
		(value[0] == '\'' && value[len(value)-1] == '\'') {
		return value[1 : len(value)-1]
	}
	return value
}
