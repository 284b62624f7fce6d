// Command virtual-office runs the realtime virtual office server.
//
// It supports three commands:
//  1. "serve" (default) – runs the raw WebSocket office on PORT and the admin
//     REST API with its /mcp endpoint on ADMIN_PORT
//  2. "peer" – connects a headless bot participant that accepts challenges and
//     plays rock-paper-scissors on its own
//  3. "mcp" – runs an MCP stdio server proxying to a running admin API
//
// Configuration comes from the environment (optionally a .env file) and is
// overridden by flags. An ngrok tunnel can expose the office publicly during
// development.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/virtual-office/api"
	"github.com/wricardo/virtual-office/logging"
	"github.com/wricardo/virtual-office/minigame"
	"github.com/wricardo/virtual-office/office/config"
	"github.com/wricardo/virtual-office/office/hub"
	"github.com/wricardo/virtual-office/office/presence"
	"github.com/wricardo/virtual-office/peer"
	"github.com/wricardo/virtual-office/transport/mcp"
	"github.com/wricardo/virtual-office/transport/websocket"
)

const (
	Version = "1.0.0"
	AppName = "Virtual Office Server"

	shutdownTimeout = 10 * time.Second
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "virtual-office",
		Usage:   AppName,
		Version: Version,
		Flags:   serverFlags(),
		Action:  runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the realtime office and the admin API",
				Flags:  serverFlags(),
				Action: runServe,
			},
			{
				Name:   "peer",
				Usage:  "Connect a bot participant to an office",
				Flags:  peerFlags(),
				Action: runPeer,
			},
			{
				Name:   "mcp",
				Usage:  "Run an MCP stdio server proxying to the admin API",
				Flags:  mcpFlags(),
				Action: runMCPStdio,
			},
		},
	}
}

func serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Usage: "Listen host", Sources: cli.EnvVars("HOST")},
		&cli.IntFlag{Name: "port", Usage: "Realtime WebSocket port", Sources: cli.EnvVars("PORT")},
		&cli.IntFlag{Name: "admin-port", Usage: "Admin API port, 0 disables it", Sources: cli.EnvVars("ADMIN_PORT")},
		&cli.IntFlag{Name: "history", Usage: "General chat messages kept", Sources: cli.EnvVars("CHAT_HISTORY_LIMIT")},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", Sources: cli.EnvVars("LOG_LEVEL")},
		&cli.StringFlag{Name: "log-file", Usage: "Also write logs to this rotating file", Sources: cli.EnvVars("LOG_FILE")},
		&cli.BoolFlag{Name: "debug", Usage: "Shorthand for --log-level debug"},
		&cli.BoolFlag{Name: "ngrok", Usage: "Expose the office through an ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
		&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
		&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain", Sources: cli.EnvVars("NGROK_DOMAIN")},
	}
}

func peerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "url", Value: "ws://localhost:3001/", Usage: "Office WebSocket URL"},
		&cli.StringFlag{Name: "name", Value: "Bot", Usage: "Display name"},
		&cli.StringFlag{Name: "avatar", Value: presence.DefaultAvatar().ID, Usage: "Avatar id"},
		&cli.StringFlag{Name: "tone", Value: string(presence.DefaultTone), Usage: "Avatar tone"},
		&cli.StringFlag{Name: "challenge", Usage: "Name of a player to challenge when present"},
		&cli.DurationFlag{Name: "think", Value: 500 * time.Millisecond, Usage: "Delay before each move"},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error"},
	}
}

func mcpFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "admin-url", Value: "http://localhost:3002", Usage: "Admin API base URL", Sources: cli.EnvVars("ADMIN_URL")},
	}
}

// loadConfig reads the environment through lookup and applies explicitly set
// flags on top.
func loadConfig(cmd *cli.Command, lookup config.LookupFunc) (config.Config, error) {
	cfg, err := config.Load(lookup)
	if err != nil {
		return cfg, err
	}

	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("admin-port") {
		cfg.AdminPort = int(cmd.Int("admin-port"))
	}
	if cmd.IsSet("history") {
		cfg.ChatHistoryLimit = int(cmd.Int("history"))
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.Bool("debug") {
		cfg.LogLevel = "debug"
	}
	if cmd.IsSet("log-file") {
		cfg.LogFile = cmd.String("log-file")
	}
	if cmd.IsSet("ngrok") {
		cfg.NgrokEnabled = cmd.Bool("ngrok")
	}
	if cmd.IsSet("ngrok-auth") {
		cfg.NgrokAuthToken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		cfg.NgrokDomain = cmd.String("ngrok-domain")
	}

	return cfg, cfg.Validate()
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, os.LookupEnv)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer logger.Sync()

	return serve(ctx, cfg, logger)
}

// serve runs the office until ctx is cancelled, then shuts everything down.
func serve(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) error {
	logger.Infow("starting "+AppName,
		"version", Version,
		"addr", cfg.Addr(),
		"admin", cfg.AdminAddr(),
		"office", fmt.Sprintf("%vx%v", cfg.OfficeWidth, cfg.OfficeHeight),
		"history", cfg.ChatHistoryLimit,
	)

	office := hub.New(hub.Options{
		Bounds:       cfg.Bounds(),
		HistoryLimit: cfg.ChatHistoryLimit,
		Logger:       logger.With("component", "hub"),
	})
	realtime := websocket.NewServer(office, logger.With("component", "websocket"), websocket.Options{
		MaxPayload: cfg.MaxFrameBytes,
	})

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}
	errc := make(chan error, 3)
	go func() { errc <- realtime.Serve(ln) }()
	logger.Infow("realtime office listening", "url", "ws://"+ln.Addr().String()+"/")

	var admin *http.Server
	if addr := cfg.AdminAddr(); addr != "" {
		admin, err = startAdmin(addr, office, logger, errc)
		if err != nil {
			realtime.Shutdown(context.Background())
			return err
		}
	}

	if cfg.NgrokEnabled {
		tun, err := ngrokListen(ctx, cfg, logger)
		if err != nil {
			logger.Warnw("ngrok tunnel unavailable", "error", err)
		} else {
			go func() { errc <- realtime.Serve(tun) }()
		}
	}

	select {
	case <-ctx.Done():
		logger.Infow("shutting down", "cause", context.Cause(ctx))
	case err := <-errc:
		if !errors.Is(err, websocket.ErrServerClosed) && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("listener failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	office.Shutdown(hub.ShutdownReason)
	if err := realtime.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("realtime shutdown incomplete", "error", err)
	}
	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("admin shutdown incomplete", "error", err)
		}
	}
	logger.Infow("server stopped")
	return nil
}

// startAdmin serves the admin API with the MCP bridge mounted at /mcp.
func startAdmin(addr string, office *hub.Hub, logger *zap.SugaredLogger, errc chan<- error) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	apiServer := api.NewServer(office, logger.With("component", "api"))
	apiServer.Handle("/mcp", mcp.NewClient("http://"+loopback(ln.Addr())))

	httpServer := &http.Server{
		Handler:      apiServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() { errc <- httpServer.Serve(ln) }()

	logger.Infow("admin API listening",
		"api", "http://"+ln.Addr().String()+"/api",
		"mcp", "http://"+ln.Addr().String()+"/mcp",
	)
	return httpServer, nil
}

// loopback rewrites a wildcard listen address into one the process can dial.
func loopback(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func ngrokListen(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (net.Listener, error) {
	if cfg.NgrokAuthToken == "" {
		return nil, errors.New("no auth token, set NGROK_AUTHTOKEN or --ngrok-auth")
	}

	var tunnel ngrokConfig.Tunnel
	if cfg.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.NgrokDomain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.NgrokAuthToken))
	if err != nil {
		return nil, fmt.Errorf("failed to start ngrok tunnel: %w", err)
	}
	logger.Infow("ngrok tunnel established", "url", tun.URL())
	return tun, nil
}

func runPeer(ctx context.Context, cmd *cli.Command) error {
	logger, err := logging.New(logging.Options{Level: cmd.String("log-level")})
	if err != nil {
		return err
	}
	defer logger.Sync()

	bot := peer.NewBot(peer.BotOptions{
		Client: peer.Options{
			URL:    cmd.String("url"),
			Logger: logger.With("component", "peer"),
			Timing: minigame.DefaultTiming,
		},
		Name:      cmd.String("name"),
		Avatar:    cmd.String("avatar"),
		Tone:      presence.Tone(cmd.String("tone")),
		Opponent:  cmd.String("challenge"),
		ThinkTime: cmd.Duration("think"),
	})

	err = bot.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func runMCPStdio(ctx context.Context, cmd *cli.Command) error {
	client := mcp.NewClient(cmd.String("admin-url"))
	if err := server.ServeStdio(client.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
