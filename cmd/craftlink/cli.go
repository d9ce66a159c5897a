package main

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/craftlink/craftlink/internal/auth"
	"github.com/craftlink/craftlink/internal/config"
	"github.com/craftlink/craftlink/internal/domain"
	"github.com/craftlink/craftlink/internal/rcon"
	"github.com/craftlink/craftlink/internal/storage"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"
)

//go:embed systemd/*
var systemdFiles embed.FS

// CLI helper variables
var baseURL = "http://localhost:8080"

// loadCLIConfigFromFlags loads config and derives the API base URL
func loadCLIConfigFromFlags(configPath, apiURL string) *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", configPath, err)
		if apiURL != "" {
			baseURL = apiURL
		}
		return nil
	}

	if apiURL != "" {
		baseURL = apiURL
	} else if cfg.Server.HTTPPort > 0 {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	}
	return cfg
}

// mustLoadConfig loads config or exits
func mustLoadConfig(configPath string) *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func getJSON(path string, target interface{}) error {
	resp, err := http.Get(baseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(target)
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	apiURL := fs.String("url", "", "base URL of the craftlink API")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, *apiURL)

	var status struct {
		OnlineCount    int                   `json:"online_count"`
		Online         []string              `json:"online"`
		Players        []domain.PlayerStatus `json:"players"`
		LastUpdated    *time.Time            `json:"last_updated"`
		MonitorEnabled bool                  `json:"monitor_enabled"`
	}
	if err := getJSON("/api/status", &status); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if status.LastUpdated == nil {
		fmt.Println("No snapshot yet (the player list monitor is off or has not ticked).")
		return
	}
	fmt.Printf("%d online, updated %s\n\n", status.OnlineCount, status.LastUpdated.Local().Format("15:04:05"))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLAYER\tPLAY TIME\tHP\tX\tY\tZ")
	fmt.Fprintln(w, "------\t---------\t--\t-\t-\t-")
	shown := make(map[string]bool)
	for _, p := range status.Players {
		shown[p.GameUsername] = true
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%.1f\t%.1f\t%.1f\n", p.GameUsername,
			domain.FormatPlayTime(p.TotalPlaySeconds), p.Health, p.Position.X, p.Position.Y, p.Position.Z)
	}
	for _, name := range status.Online {
		if !shown[name] {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\n", name)
		}
	}
	w.Flush()
}

func cmdUsers(args []string) {
	fs := flag.NewFlagSet("users", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	apiURL := fs.String("url", "", "base URL of the craftlink API")
	sortBy := fs.String("sort", "play_time", "order by play_time or name")
	limit := fs.Int("limit", 50, "maximum number of users")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, *apiURL)

	q := url.Values{}
	q.Set("sort", *sortBy)
	q.Set("limit", strconv.Itoa(*limit))

	var resp struct {
		Users []struct {
			domain.LinkedUser
			PlayTime string `json:"play_time"`
		} `json:"users"`
		Total int `json:"total"`
	}
	if err := getJSON("/api/users?"+q.Encode(), &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DISCORD ID\tMINECRAFT\tPLAY TIME\tBADGE")
	fmt.Fprintln(w, "----------\t---------\t---------\t-----")
	for _, u := range resp.Users {
		badge := "pending"
		if u.BadgeCurrent {
			badge = u.BadgeID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ChatID, u.GameUsername, u.PlayTime, badge)
	}
	w.Flush()
	fmt.Printf("\n%d of %d users\n", len(resp.Users), resp.Total)
}

// cmdRcon talks to the game server directly, without a running craftlink
func cmdRcon(args []string) {
	fs := flag.NewFlagSet("rcon", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: craftlink rcon <command...>")
		os.Exit(1)
	}
	cfg := mustLoadConfig(*configPath)

	client := rcon.NewClient(cfg.Rcon.Address, cfg.Rcon.Password, cfg.Rcon.Timeout)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Rcon.Timeout+5*time.Second)
	defer cancel()

	out, err := client.Execute(ctx, strings.Join(fs.Args(), " "))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(out)
}

func cmdHashPassword(args []string) {
	fs := flag.NewFlagSet("hash-password", flag.ExitOnError)
	fs.Parse(args)

	fmt.Print("Enter password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read password: %v\n", err)
		os.Exit(1)
	}

	if len(password) < 8 {
		fmt.Fprintln(os.Stderr, "Error: password must be at least 8 characters")
		os.Exit(1)
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read password: %v\n", err)
		os.Exit(1)
	}

	if string(password) != string(confirm) {
		fmt.Fprintln(os.Stderr, "Error: passwords do not match")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to hash password: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
	fmt.Println()
	fmt.Println("Put this in auth.admin_password_hash or CRAFTLINK_ADMIN_PASSWORD_HASH.")
}

// openStore opens the configured KV backend for offline maintenance
func openStore(configPath string) storage.KV {
	cfg := mustLoadConfig(configPath)
	kv, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.RedisURL, cfg.Storage.Namespace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open storage: %v\n", err)
		os.Exit(1)
	}
	return kv
}

func cmdBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: craftlink backup <file>")
		os.Exit(1)
	}

	kv := openStore(*configPath)
	defer kv.Close()

	out, err := os.Create(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := storage.Export(context.Background(), kv, out); err != nil {
		out.Close()
		fmt.Fprintf(os.Stderr, "Error: backup failed: %v\n", err)
		os.Exit(1)
	}
	if err := out.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Backup written to %s\n", fs.Arg(0))
}

func cmdRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: craftlink restore <file>")
		os.Exit(1)
	}

	in, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer in.Close()

	kv := openStore(*configPath)
	defer kv.Close()

	snap, err := storage.Import(context.Background(), kv, in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: restore failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Restored %d records from snapshot taken %s\n", len(snap.Records), snap.CreatedAt.Local().Format(time.RFC1123))
	fmt.Println("Restart craftlink for the running instance to pick it up.")
}

// detectSystemd checks if the system is running systemd
func detectSystemd() bool {
	_, err := os.Stat("/run/systemd/system")
	return err == nil
}

// systemctlRun executes a systemctl command, printing stderr on failure
func systemctlRun(args ...string) error {
	cmd := exec.Command("systemctl", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// cmdInit bootstraps the system: creates user, dirs, config, and the
// systemd unit that restarts craftlink when a task halts it
func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	noSystemd := fs.Bool("no-systemd", false, "skip systemd unit installation")
	userName := fs.String("user", "craftlink", "service user name")
	fs.Parse(args)

	if os.Getuid() != 0 {
		fmt.Fprintf(os.Stderr, "Error: craftlink init must be run as root\n")
		os.Exit(1)
	}

	if _, err := os.Stat(defaultConfigPath); err == nil {
		fmt.Printf("craftlink is already initialized (%s exists).\n", defaultConfigPath)
		fmt.Println("To re-initialize, remove the config file first.")
		return
	}

	sysUser := *userName
	useSd := !*noSystemd && detectSystemd()

	// 1. Service user
	if _, err := user.Lookup(sysUser); err != nil {
		fmt.Printf("Creating service user '%s'...\n", sysUser)
		cmd := exec.Command("useradd", "-r", "-s", "/usr/sbin/nologin", sysUser)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating user: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("Service user '%s' already exists\n", sysUser)
	}

	u, err := user.Lookup(sysUser)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error looking up user '%s': %v\n", sysUser, err)
		os.Exit(1)
	}
	uid, _ := strconv.Atoi(u.Uid)
	gid, _ := strconv.Atoi(u.Gid)

	// 2. Directories
	for _, dir := range []string{"/etc/craftlink", "/var/lib/craftlink"} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", dir, err)
			os.Exit(1)
		}
		if err := os.Chown(dir, uid, gid); err != nil {
			fmt.Fprintf(os.Stderr, "Error chowning %s: %v\n", dir, err)
			os.Exit(1)
		}
		fmt.Printf("Directory: %s\n", dir)
	}

	// 3. Default config
	defaultCfg := &config.Config{
		Discord:   config.DiscordConfig{Prefix: "::", Name: "craftlink"},
		Minecraft: config.MinecraftConfig{Host: "localhost", Port: 25565},
		Rcon:      config.RconConfig{Address: "127.0.0.1:25575", Timeout: 5 * time.Second},
		Storage: config.StorageConfig{
			Driver:    "sqlite",
			Path:      "/var/lib/craftlink/craftlink.db",
			Namespace: "craftlink",
		},
		Server:   config.ServerConfig{ListenAddr: "127.0.0.1", HTTPPort: 8080},
		LogLevel: "info",
	}
	if err := config.Save(defaultConfigPath, defaultCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
		os.Exit(1)
	}
	os.Chown(defaultConfigPath, uid, gid)
	fmt.Printf("Config: %s\n", defaultConfigPath)

	// 4. Systemd unit
	if useSd {
		data, err := systemdFiles.ReadFile("systemd/craftlink.service")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading embedded unit: %v\n", err)
			os.Exit(1)
		}
		content := string(data)
		if sysUser != "craftlink" {
			content = strings.ReplaceAll(content, "User=craftlink", "User="+sysUser)
			content = strings.ReplaceAll(content, "Group=craftlink", "Group="+sysUser)
		}
		dest := filepath.Join("/etc/systemd/system", "craftlink.service")
		if err := os.WriteFile(dest, []byte(content), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", dest, err)
			os.Exit(1)
		}
		fmt.Printf("Systemd: %s\n", dest)

		fmt.Println("Running systemctl daemon-reload...")
		systemctlRun("daemon-reload")
		fmt.Println("Enabling craftlink.service...")
		systemctlRun("enable", "craftlink.service")
	} else {
		fmt.Println("Systemd: skipped")
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Set discord.token and rcon.password in /etc/craftlink/config.yml")
	fmt.Println("     (or CRAFTLINK_DISCORD_TOKEN / CRAFTLINK_RCON_PASSWORD)")
	fmt.Println("  2. Optional: craftlink hash-password, then set auth.admin_password_hash")
	if useSd {
		fmt.Println("  3. Start craftlink: sudo systemctl start craftlink")
	} else {
		fmt.Println("  3. Start craftlink: craftlink serve")
	}
}
