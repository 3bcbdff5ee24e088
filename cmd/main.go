package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"go-guardian/internal/audit"
	"go-guardian/internal/botswitch"
	"go-guardian/internal/config"
	"go-guardian/internal/detectors"
	"go-guardian/internal/dispatcher"
	"go-guardian/internal/escalation"
	"go-guardian/internal/gateway"
	"go-guardian/internal/health"
	"go-guardian/internal/ledger"
	"go-guardian/internal/logging"
	"go-guardian/internal/pipeline"
	"go-guardian/internal/window"
	"go-guardian/pkg/util"
)

func main() {
	fmt.Println("Starting Guardian moderation engine")

	_ = godotenv.Load()

	if err := logging.Init(envOr("LOG_LEVEL", "info"), envOr("LOG_FILE", "guardian.log")); err != nil {
		panic(err)
	}

	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		fmt.Println("DISCORD_TOKEN is required")
		os.Exit(1)
	}
	ownerID, err := util.ParseSnowflake(envOr("OWNER_ID", "0"))
	if err != nil || ownerID == 0 {
		fmt.Println("OWNER_ID is required")
		os.Exit(1)
	}

	settings, err := config.Load(envOr("SETTINGS_PATH", "settings.json"))
	if err != nil {
		panic(err)
	}

	led, err := ledger.Open(envOr("LEDGER_PATH", "guardian.db"))
	if err != nil {
		panic(err)
	}

	sink, err := audit.NewSink(envOr("AUDIT_PATH", "audit.jsonl"), led)
	if err != nil {
		panic(err)
	}
	settings.OnChange(func(s *config.Settings) {
		sink.Emit(audit.Record{
			Action:  "settings",
			Outcome: audit.OutcomeSettingsChanged,
		})
	})

	sw := botswitch.Load(envOr("STATE_PATH", "bot_state.json"), ownerID)

	components, err := startComponents(token, settings, led, sink, sw)
	if err != nil {
		panic(err)
	}

	logging.Log().Info("all components started")

	waitForShutdown()

	stopComponents(components)
	sink.Close()
	led.Close()

	logging.Log().Info("shutdown complete")
}

type Components struct {
	dispatch *dispatcher.Dispatcher
	pipe     *pipeline.Pipeline
	gw       *gateway.Gateway
	healthd  *health.Server
}

func startComponents(token string, settings *config.Store, led *ledger.Ledger, sink *audit.Sink, sw *botswitch.Switch) (*Components, error) {
	counters := window.NewCounter()
	antinuke := detectors.NewAntiNuke(settings, counters)
	antispam := detectors.NewAntiSpam(settings, counters)

	// Executor needs the session, session handlers need the pipeline, so
	// the dispatcher starts with a deferred executor binding.
	disp := dispatcher.New(nil, sink, 4, 4096)

	engine := escalation.New(settings, led, sw, disp, sink)
	pipe := pipeline.New(settings, sw, antinuke, antispam, engine, sink)

	gw, err := gateway.New(token, pipe)
	if err != nil {
		return nil, err
	}
	disp.Bind(dispatcher.NewDiscordExecutor(gw.Session()))

	if err := gw.Open(); err != nil {
		return nil, err
	}

	healthd := health.New(envOr("HEALTH_ADDR", ":8080"), sw, pipe, sink)
	healthd.Start()

	return &Components{dispatch: disp, pipe: pipe, gw: gw, healthd: healthd}, nil
}

func waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	fmt.Println("\nShutdown signal received")
}

func stopComponents(c *Components) {
	if err := c.gw.Close(); err != nil {
		logging.Log().WithError(err).Warn("gateway close failed")
	}
	c.pipe.Stop()
	c.dispatch.Stop()
	if err := c.healthd.Stop(); err != nil {
		logging.Log().WithError(err).Warn("health server stop failed")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
