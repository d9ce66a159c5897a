// craftlink - Minecraft whitelist and presence bridge for Discord
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/craftlink/craftlink/internal/api"
	"github.com/craftlink/craftlink/internal/auth"
	"github.com/craftlink/craftlink/internal/bot"
	"github.com/craftlink/craftlink/internal/collector"
	"github.com/craftlink/craftlink/internal/config"
	"github.com/craftlink/craftlink/internal/events"
	"github.com/craftlink/craftlink/internal/rcon"
	"github.com/craftlink/craftlink/internal/storage"
	"github.com/craftlink/craftlink/internal/telemetry"
	flag "github.com/spf13/pflag"
)

var version = "dev"

const defaultConfigPath = "/etc/craftlink/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		cmdInit(os.Args[2:])
	case "serve":
		os.Exit(cmdServe(os.Args[2:]))
	case "status":
		cmdStatus(os.Args[2:])
	case "users":
		cmdUsers(os.Args[2:])
	case "rcon":
		cmdRcon(os.Args[2:])
	case "hash-password":
		cmdHashPassword(os.Args[2:])
	case "backup":
		cmdBackup(os.Args[2:])
	case "restore":
		cmdRestore(os.Args[2:])
	case "version":
		fmt.Printf("craftlink %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: craftlink <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init [--no-systemd] [--user craftlink]  Bootstrap system (create user, dirs, config)")
	fmt.Println("  serve                                   Run the bot, the periodic tasks and the HTTP API")
	fmt.Println("  status                                  Show who is online (queries the HTTP API)")
	fmt.Println("  users [--sort play_time|name]           List linked users (queries the HTTP API)")
	fmt.Println("  rcon <command...>                       Run a console command on the game server")
	fmt.Println("  hash-password                           Hash an operator password for auth.admin_password_hash")
	fmt.Println("  backup <file>                           Write a compressed snapshot of the registry")
	fmt.Println("  restore <file>                          Replace the registry with a snapshot")
	fmt.Println("  version                                 Show version")
	fmt.Println("  help                                    Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/craftlink/config.yml)")
	fmt.Println("  --url <url>        Base URL of the craftlink API (default: derived from config)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  sudo craftlink init")
	fmt.Println("  craftlink serve --config /etc/craftlink/config.yml")
	fmt.Println("  craftlink rcon whitelist list")
	fmt.Println("  craftlink backup /tmp/registry.zst")
}

// setupLogging installs the default slog handler
func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// resolveConfigPath falls back to the default location when no path is given
func resolveConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	if _, err := os.Stat(defaultConfigPath); err != nil {
		return "", fmt.Errorf("no config file found at %s, use --config to specify one", defaultConfigPath)
	}
	return defaultConfigPath, nil
}

// cmdServe runs everything until a signal arrives or a task halts. The
// return value is the process exit code.
func cmdServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfgPath, err := resolveConfigPath(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	setupLogging(cfg.LogLevel)
	slog.Info("craftlink starting", "version", version)

	if cfg.Discord.Token == "" {
		slog.Error("discord.token is not set")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, "craftlink")
	if err != nil {
		slog.Error("Failed to set up tracing", "error", err)
		return 1
	}
	defer func() {
		tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer tcancel()
		if err := shutdownTracing(tctx); err != nil {
			slog.Warn("Tracing shutdown error", "error", err)
		}
	}()

	// Storage
	kv, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.RedisURL, cfg.Storage.Namespace)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		return 1
	}
	defer kv.Close()
	registry := storage.NewRegistry(kv)
	slog.Info("Storage ready", "driver", cfg.Storage.Driver)

	// Game server console
	console := rcon.NewClient(cfg.Rcon.Address, cfg.Rcon.Password, cfg.Rcon.Timeout)
	defer console.Close()
	whitelist := rcon.NewWhitelist(console)

	// Event fan-out
	fanout := events.NewFanout()
	if cfg.Events.NatsURL != "" {
		publisher, err := events.NewNATSPublisher(cfg.Events.NatsURL, cfg.Events.Subject)
		if err != nil {
			slog.Error("Failed to connect to NATS", "error", err)
			return 1
		}
		defer publisher.Close()
		fanout.Attach(publisher)
		slog.Info("Publishing events to NATS", "subject", cfg.Events.Subject)
	}

	// Discord
	discord, err := bot.New(cfg.Discord.Token)
	if err != nil {
		slog.Error("Failed to create bot", "error", err)
		return 1
	}

	broadcaster := collector.NewBroadcaster(whitelist, registry, discord, fanout, collector.BroadcasterConfig{
		Prefix:           cfg.Discord.Prefix,
		ActivityInterval: cfg.Tasks.ActivityInterval,
		DisplayInterval:  cfg.Tasks.DisplayInterval,
	})
	presence := collector.NewPresence(whitelist, registry, fanout, cfg.Tasks.PresenceInterval)
	provisioner := collector.NewProvisioner(registry, discord,
		collector.NewHeadSource(cfg.Avatars.BaseURL, cfg.Avatars.Size), fanout,
		cfg.Tasks.BadgeInterval, cfg.Avatars.MinDelay)

	discord.SetHandler(bot.NewHandler(registry, whitelist, broadcaster, discord, fanout, bot.Settings{
		Prefix:        cfg.Discord.Prefix,
		Name:          cfg.Discord.Name,
		Description:   cfg.Discord.Description,
		Host:          cfg.Minecraft.Host,
		Port:          cfg.Minecraft.Port,
		AvatarBaseURL: cfg.Avatars.BaseURL,
		Operators:     cfg.Discord.Operators,
	}))

	if err := discord.Start(ctx); err != nil {
		slog.Error("Failed to start bot", "error", err)
		return 1
	}

	// HTTP API
	var server *http.Server
	var router *api.Router
	serverErr := make(chan error, 1)
	if cfg.Server.HTTPPort > 0 {
		authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration, cfg.Auth.AdminUser, cfg.Auth.AdminPassword)
		if cfg.Auth.JWTSecret == "" {
			slog.Warn("No JWT secret configured, tokens will not survive a restart")
		}
		if !authService.LoginEnabled() {
			slog.Warn("No admin password hash configured, operator login is disabled")
		}

		router = api.NewRouter(registry, broadcaster, console, authService)
		router.StartWebSocketHub()
		fanout.Attach(router.Hub())

		addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
		server = &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			slog.Info("HTTP server listening", "addr", addr)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	// Periodic tasks
	tasks := []collector.Task{presence.Task()}
	tasks = append(tasks, broadcaster.Tasks()...)
	tasks = append(tasks, provisioner.Task())
	manager := collector.NewManager(cfg.Tasks.HaltOnError(), tasks...)
	manager.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig)
	case err := <-serverErr:
		slog.Error("HTTP server error", "error", err)
		exitCode = 1
	case err := <-manager.Errors():
		// Leave the restart to the service supervisor
		slog.Error("Periodic task failed, exiting", "error", err)
		exitCode = 1
	}

	// Sequential shutdown
	if server != nil {
		slog.Info("Shutting down HTTP server")
		httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(httpCtx); err != nil {
			slog.Warn("HTTP server shutdown error", "error", err)
		}
		httpCancel()
		router.StopWebSocketHub()
	}

	slog.Info("Stopping periodic tasks")
	manager.Stop()

	if err := discord.Stop(); err != nil {
		slog.Warn("Error closing Discord session", "error", err)
	}

	cancel()
	slog.Info("Shutdown complete")
	return exitCode
}
