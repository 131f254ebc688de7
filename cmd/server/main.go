/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server. Handles configuration,
  dependency injection, background jobs and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and config.yaml
  2. Initialize SQLite store
  3. Build the policy registry and domain services
  4. Start the background jobs (heartbeat, poller, reminders)
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Directory holding config.yaml (default: ".")
  -db      SQLite database path override
           Use ":memory:" for an in-memory database

BACKGROUND JOBS:
  Heartbeat      pool rollover and monthly accrual
  Poller         scans requests needing notification or auto-approval
  Reminders      pending-request and trial-period manager nags
  DirectorySync  LDAP-backed user refresh (only when ldap.enabled)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the background jobs
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go: Router configuration
  - jobs/: Background job implementations
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/calendar/caldav"
	"github.com/warp/leave-engine/config"
	ldapdir "github.com/warp/leave-engine/directory/ldap"
	"github.com/warp/leave-engine/jobs"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/notify/smtp"
	"github.com/warp/leave-engine/policy"
	"github.com/warp/leave-engine/request"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml")
	dbPath := flag.String("db", "", "SQLite database path override")
	flag.Parse()

	// .env is optional, absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	holidays, err := cfg.HolidayCalendar()
	if err != nil {
		log.Fatalf("Invalid holiday configuration: %v", err)
	}

	var cal calendar.Calendar = calendar.Disabled{}
	if cfg.Calendar.Enabled {
		cal = caldav.New(cfg.Calendar.Username, cfg.Calendar.Password)
	}

	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.Mail.Enabled {
		mailer = smtp.New(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password)
	}
	composer := &notify.Composer{Sender: cfg.Mail.Sender, HRAddress: cfg.Mail.HRAddress}

	policies := policy.DefaultRegistry()

	svc := request.NewService(store, policies, holidays)
	svc.Calendar = cal
	machine := request.NewMachine(store, cal)

	workers := jobs.NewWorkers(store, machine, mailer, cal, composer, cfg.Calendar.URL)
	poller := jobs.NewPoller(store, func(task jobs.Task) {
		if err := workers.Process(context.Background(), task); err != nil {
			log.Printf("[Worker] %s for request %s failed: %v", task.Kind, task.RequestID, err)
		}
	})
	heartbeat := jobs.NewHeartbeat(store, policies)
	reminders := &jobs.ReminderJob{Store: store, Mailer: mailer, Composer: composer, Now: time.Now}
	trial := &jobs.TrialReminderJob{
		Store:    store,
		Mailer:   mailer,
		Composer: composer,
		Windows:  cfg.TrialWindows(),
		Now:      time.Now,
	}

	runners := []*jobs.Runner{
		jobs.NewRunner("Heartbeat", cfg.Jobs.HeartbeatInterval, heartbeat.Run),
		jobs.NewRunner("Poller", cfg.Jobs.PollInterval, poller.Run),
		jobs.NewRunner("Reminders", cfg.Jobs.ReminderInterval, reminders.Run),
		jobs.NewRunner("TrialReminders", cfg.Jobs.ReminderInterval, trial.Run),
	}
	if cfg.LDAP.Enabled {
		sync := &jobs.DirectorySyncJob{Store: store, Directory: &ldapdir.Client{
			URL:          cfg.LDAP.URL,
			BindDN:       cfg.LDAP.BindDN,
			BindPassword: cfg.LDAP.BindPassword,
			BaseDN:       cfg.LDAP.BaseDN,
			ManagerGroup: cfg.LDAP.ManagerGroup,
			AdminGroup:   cfg.LDAP.AdminGroup,
		}}
		runners = append(runners, jobs.NewRunner("DirectorySync", cfg.Jobs.SyncInterval, sync.Run))
	}
	for _, r := range runners {
		r.Start()
	}

	handler := api.NewHandler(store, svc, machine, cfg.Calendar.URL)
	router := api.NewRouter(handler, cfg.HTTP.AllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	for _, r := range runners {
		r.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
