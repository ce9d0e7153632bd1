package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"password_expiry_notifier/internal/app"
	"password_expiry_notifier/internal/domain/account"
	"password_expiry_notifier/internal/domain/onboarding"
	domainTelegram "password_expiry_notifier/internal/domain/telegram"
	"password_expiry_notifier/internal/infra/config"
	idb "password_expiry_notifier/internal/infra/database"
	"password_expiry_notifier/internal/infra/directory"
	"password_expiry_notifier/internal/infra/logger"
	"password_expiry_notifier/internal/infra/mailer"
	"password_expiry_notifier/internal/infra/report"
	"password_expiry_notifier/internal/infra/scheduler"
	"password_expiry_notifier/internal/infra/telegram"
)

// Upper bound for one resident-mode run.
const runTimeout = 2 * time.Hour

func main() {
	envFile := flag.String("env", "", "path to a .env file (default: ./.env when present)")
	mode := flag.String("mode", "", "run mode override: live, simulate or report")
	once := flag.Bool("once", false, "run once and exit even when CRON_SPEC is set")
	flag.Parse()

	cfg, err := config.Load(config.Overrides{EnvFile: *envFile, RunMode: *mode, Once: *once})
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}

	closeLog, err := logger.Init(cfg)
	if err != nil {
		logger.Log.Fatalf("Could not open log file: %v", err)
	}
	defer closeLog()
	log := logger.Get()
	log.WithFields(logrus.Fields{
		"run_mode":    cfg.RunMode,
		"environment": cfg.Environment,
		"directory":   cfg.DirectorySource,
		"ledger":      idb.LedgerLocation(ledgerOptions(cfg)),
	}).Info("Configuration loaded")

	dir, closeDir, err := openDirectory(cfg)
	if err != nil {
		log.Fatalf("Could not open account directory: %v", err)
	}
	defer closeDir()

	composer, err := app.NewMessageComposer(cfg.Locales, app.ComposerOptions{
		InternalDomains: cfg.InternalDomains,
		Organization:    cfg.OrganizationName,
		ChangeURL:       cfg.PasswordChangeURL,
	})
	if err != nil {
		log.Fatalf("Could not load message templates: %v", err)
	}

	sender := mailer.NewSMTPSender(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		StartTLS: cfg.SMTPStartTLS,
	})
	dispatcher, err := app.NewNotificationDispatcher(sender, app.DispatcherConfig{
		RunMode:              cfg.RunMode,
		From:                 cfg.SMTPFrom,
		SimulationRecipients: cfg.SimulationRecipients,
		MaxPerSecond:         cfg.SMTPMaxPerSecond,
	}, composer.SimulationBanner, logrus.NewEntry(log).WithField("component", "dispatcher"))
	if err != nil {
		log.Fatalf("Could not create dispatcher: %v", err)
	}

	var reports app.ReportWriter
	if cfg.ReportDir != "" {
		reports = report.NewWriter(cfg.ReportDir, cfg.ReportEncoding)
	}

	var tc domainTelegram.Client
	var bot *telebot.Bot
	if cfg.TelegramToken != "" {
		b, err := telegram.NewBot(cfg.TelegramToken, cfg.CronSpec != "" && cfg.TelegramSummaryChatID != 0, logrus.NewEntry(log).WithField("component", "telegram"))
		if err != nil {
			log.Fatalf("%v", err)
		}
		tc = telegram.NewTelebotAdapter(b)
		bot = b
	}

	opts := ledgerOptions(cfg)
	service, err := app.NewNotificationService(
		dir,
		func(ctx context.Context) (onboarding.Ledger, error) { return idb.OpenLedger(ctx, opts) },
		composer,
		dispatcher,
		reports,
		tc,
		app.ServiceConfig{
			RunMode:       cfg.RunMode,
			Condition:     cfg.Condition,
			GroupFilter:   cfg.GroupFilter,
			SendQuota:     cfg.SendQuota,
			SummaryChatID: cfg.TelegramSummaryChatID,
		},
		log,
	)
	if err != nil {
		log.Fatalf("Could not create notification service: %v", err)
	}

	if cfg.CronSpec == "" {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if _, err := service.Run(ctx); err != nil {
			log.Errorf("Password expiry run failed: %v", err)
			closeDir()
			closeLog()
			os.Exit(1)
		}
		return
	}

	notifScheduler := scheduler.NewNotificationScheduler(service, log, cfg.CronSpec, runTimeout)
	if err := notifScheduler.Start(); err != nil {
		log.Fatalf("Could not start scheduler: %v", err)
	}

	if bot != nil && cfg.TelegramSummaryChatID != 0 {
		telegram.RegisterBotCommands(bot, notifScheduler, cfg.TelegramSummaryChatID, logrus.NewEntry(log).WithField("component", "telegram"))
		// Start bot in a goroutine so it doesn't block graceful shutdown handling
		go bot.Start()
		defer bot.Stop()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit // Block until a signal is received

	log.Info("Shutting down application...")
	notifScheduler.Stop()
	log.Info("Application shut down gracefully.")
}

func ledgerOptions(cfg *config.AppConfig) idb.LedgerOptions {
	return idb.LedgerOptions{
		Backend: cfg.LedgerBackend,
		Dir:     cfg.LedgerDir,
		DSN:     cfg.LedgerDSN,
		RunMode: cfg.RunMode,
	}
}

func openDirectory(cfg *config.AppConfig) (account.Directory, func(), error) {
	switch cfg.DirectorySource {
	case config.DirectoryCSV:
		d, err := directory.OpenCSVDirectory(cfg.DirectoryCSV)
		if err != nil {
			return nil, nil, err
		}
		return d, func() {}, nil
	default:
		d := directory.NewLDAPDirectory(directory.LDAPConfig{
			URL:          cfg.LDAPURL,
			BindDN:       cfg.LDAPBindDN,
			BindPassword: cfg.LDAPBindPassword,
			BaseDN:       cfg.LDAPBaseDN,
		})
		return d, func() { _ = d.Close() }, nil
	}
}
