package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"ticketflow/internal/api"
	"ticketflow/internal/config"
	"ticketflow/internal/escalate"
	"ticketflow/internal/notify"
	"ticketflow/internal/payment"
	"ticketflow/internal/remind"
	"ticketflow/internal/sched"
	"ticketflow/internal/store"
)

func main() {
	var (
		addr    = flag.String("addr", ":8080", "HTTP bind address")
		dbPath  = flag.String("db", "ticketflow.db", "SQLite DB path")
		cfgPath = flag.String("config", "", "TOML config path (defaults apply when empty)")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	repo := store.NewSQLiteRepo(db)
	sender := notify.NewStoreSender(repo)

	reminder := remind.New(repo, sender)
	cleanup := remind.NewCleanup(repo, cfg.Cleanup.MaxAge.Std())
	engine := escalate.NewEngine(repo, sender, cfg.Escalation.Steps)
	gateway := payment.NewHTTPGateway(cfg.Payments.GatewayURL, cfg.Payments.CallTimeout.Std())
	poller := payment.NewPoller(repo, gateway, payment.LogFulfiller{}, cfg.Payments)

	scheduler := sched.New()
	jobs := []struct {
		name    string
		spec    string
		handler sched.Handler
	}{
		{"reminder-day-ahead", cfg.Schedules.DayAheadReminder, reminder.RunDayAhead},
		{"reminder-final-call", cfg.Schedules.FinalCallReminder, reminder.RunFinalCall},
		{"escalation", cfg.Schedules.Escalation, engine.Run},
		{"payment-poll", cfg.Schedules.PaymentPoll, poller.Run},
		{"cleanup", cfg.Schedules.Cleanup, cleanup.Run},
	}
	for _, j := range jobs {
		// Misconfigured schedules must surface at startup, not as dead jobs.
		if err := scheduler.Register(j.name, j.spec, j.handler); err != nil {
			log.Fatal().Err(err).Str("job", j.name).Msg("register job")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	scheduler.Start(ctx)

	srv := &http.Server{Addr: *addr, Handler: api.NewServer(scheduler, repo)}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	scheduler.Stop()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
