package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/b0bbywan/go-systemctl-mqtt/backend"
	"github.com/b0bbywan/go-systemctl-mqtt/backend/login1"
	"github.com/b0bbywan/go-systemctl-mqtt/backend/systemd1"
	"github.com/b0bbywan/go-systemctl-mqtt/cache"
	"github.com/b0bbywan/go-systemctl-mqtt/config"
	"github.com/b0bbywan/go-systemctl-mqtt/logger"
	"github.com/b0bbywan/go-systemctl-mqtt/mqtt"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.New()
	if err != nil {
		logger.Fatal("[%s] Failed to load config: %v", config.AppName, err)
	}

	// Set log level from config
	logger.SetLevel(cfg.LogLevel)

	// Global context for the entire application
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shared system bus connection for logind and the unit monitors
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		logger.Fatal("[%s] Failed to connect to system bus: %v", config.AppName, err)
	}
	defer conn.Close()

	login := login1.New(conn)
	probePoweroff(login)

	// The service manager connection is only needed for unit control jobs
	var units *systemd1.Client
	if len(cfg.ControlUnits) > 0 {
		units, err = systemd1.New(ctx)
		if err != nil {
			logger.Fatal("[%s] Failed to connect to service manager: %v", config.AppName, err)
		}
		defer units.Close()
	}

	var state *backend.State
	if units != nil {
		state = backend.NewState(cfg, login, units)
	} else {
		state = backend.NewState(cfg, login, nil)
	}

	client := mqtt.New(cfg.MQTT, state)
	state.SetPublisher(client)

	// Take the inhibitor lock before anything else so no shutdown slips
	// through while the MQTT session comes up
	if err := state.AcquireShutdownLock(); err != nil {
		logger.Fatal("[%s] %v", config.AppName, err)
	}

	if err := client.Connect(ctx); err != nil {
		logger.Fatal("[%s] MQTT startup failed: %v", config.AppName, err)
	}

	errs := make(chan error, 2+len(cfg.MonitorUnits))

	dispatcher := mqtt.NewDispatcher(state, client.Messages(), client.PublishDiscovery)
	go func() {
		errs <- dispatcher.Run(ctx)
	}()

	go func() {
		errs <- login.WatchPrepareForShutdown(ctx, func(active bool) error {
			return state.HandlePreparingForShutdown(ctx, active)
		})
	}()

	unitStates := cache.New[string]()
	for _, unit := range cfg.MonitorUnits {
		monitor := systemd1.NewMonitor(conn, unit, unitStates, unitPublisher(state, unit))
		go func() {
			errs <- monitor.Run(ctx)
		}()
	}

	logger.Info("[%s] started", config.AppName)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("[%s] Shutdown signal received, stopping...", config.AppName)
	case err := <-errs:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("[%s] task failed: %v", config.AppName, err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := client.Disconnect(shutdownCtx); err != nil {
		logger.Warn("[%s] MQTT disconnect failed: %v", config.AppName, err)
	}
	state.ReleaseShutdownLock()

	logger.Info("[%s] stopped", config.AppName)
}

// probePoweroff logs early when the daemon will not be able to act on
// poweroff commands.
func probePoweroff(login *login1.Client) {
	result, err := login.CanPowerOff()
	if err != nil {
		logger.Warn("[%s] failed to probe poweroff capability: %v", config.AppName, err)
		return
	}
	switch result {
	case "yes", "challenge":
		logger.Debug("[%s] poweroff capability: %s", config.AppName, result)
	default:
		logger.Warn("[%s] poweroff may be refused by logind: %s", config.AppName, result)
	}
}

func unitPublisher(state *backend.State, unit string) systemd1.PublishFunc {
	return func(ctx context.Context, activeState string) error {
		return state.PublishUnitActiveState(ctx, unit, activeState)
	}
}
