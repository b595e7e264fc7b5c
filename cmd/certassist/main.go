package main

import (
	"flag"
	"log/slog"
	"time"

	"certassist-backend/lib/configutil"
	"certassist-backend/lib/restyutil"
	"certassist-backend/lib/scrapers/tnedistrict"
	"certassist-backend/lib/serviceutil"
	"certassist-backend/lib/telemetry"
	"certassist-backend/services/bot"
	"certassist-backend/services/jobs"
	"certassist-backend/services/ops"
	"certassist-backend/services/payments"
	"certassist-backend/services/status"
)

type TelegramConfig struct {
	Token           string `json:"token"`
	AdminChatID     int64  `json:"admin_chat_id"`
	UploadDir       string `json:"upload_dir"`
	SessionTtlHours int    `json:"session_ttl_hours"`
}

type PaymentsConfig struct {
	Enabled bool `json:"enabled"`
	payments.Config
}

type OpsConfig struct {
	Port  int    `json:"port"`
	Token string `json:"token"`
}

type Config struct {
	Database    configutil.Database `json:"database"`
	Scraper     tnedistrict.Config  `json:"scraper"`
	MaxSessions int                 `json:"max_sessions"`
	Telegram    TelegramConfig      `json:"telegram"`
	Payments    PaymentsConfig      `json:"payments"`
	Smtp        *bot.SmtpConfig     `json:"smtp"`
	Ops         OpsConfig           `json:"ops"`
}

func main() {
	verbose := flag.Bool("v", false, "enables debug logging")
	flag.Parse()

	telemetry.InitSlog(*verbose)
	if *verbose {
		bot.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(".dev/resty/telegram"))
	}

	ctx := serviceutil.SignalContext()

	otel, err := telemetry.SetupFromEnv(ctx, "certassist")
	if err != nil {
		serviceutil.Fatal("failed to initialize telemetry", err)
	}
	defer otel.Shutdown(ctx)
	telemetry.InstrumentPerfStats(ctx)

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if config.Telegram.Token == "" {
		slog.Error("telegram.token is required")
		return
	}

	slog.Info("opening database...")
	database, err := config.Database.Open()
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}
	defer database.Close()

	jobSvc, err := jobs.NewService(database)
	if err != nil {
		serviceutil.Fatal("failed to initialize job store", err)
	}

	scraperCfg := config.Scraper.WithDefaults()
	navigator := tnedistrict.NewNavigator(scraperCfg)
	statusSvc := status.NewService(navigator, config.MaxSessions)

	var pay bot.Payments
	if config.Payments.Enabled {
		pay = payments.NewService(config.Payments.Config)
	}

	tg := bot.NewTelegramClient(config.Telegram.Token)

	notifiers := bot.MultiNotifier{
		bot.NewTelegramNotifier(tg, config.Telegram.AdminChatID),
	}
	if config.Smtp != nil {
		notifiers = append(notifiers, bot.NewEmailNotifier(*config.Smtp))
	}

	botSvc := bot.NewService(tg, tg, statusSvc, jobSvc, pay, notifiers, bot.Options{
		AdminChatID: config.Telegram.AdminChatID,
		UploadDir:   config.Telegram.UploadDir,
		SessionTTL:  time.Duration(config.Telegram.SessionTtlHours) * time.Hour,
	})

	probe := tnedistrict.NewProbe(scraperCfg.PortalUrl)
	if err := probe.Check(ctx); err != nil {
		slog.Warn("portal is unreachable, continuing anyway", "err", err, "url", scraperCfg.PortalUrl)
	}

	opsPort := config.Ops.Port
	if opsPort == 0 {
		opsPort = 8160
	}
	opsSvc := ops.NewService(database, jobSvc, probe, ops.Options{
		Token: config.Ops.Token,
	})
	go serviceutil.StartHttpServer(opsPort, opsSvc.Router())

	slog.Info("starting bot...", "admin_chat_id", config.Telegram.AdminChatID)
	err = botSvc.Run(ctx, tg)
	if err != nil && ctx.Err() == nil {
		serviceutil.Fatal("bot poll loop failed", err)
	}
	slog.Info("shutting down")
}
