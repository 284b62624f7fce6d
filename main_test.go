package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/wricardo/virtual-office/office/config"
	"github.com/wricardo/virtual-office/office/presence"
)

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName != "Virtual Office Server" {
		t.Errorf("Unexpected app name %s", AppName)
	}
}

func TestCommands(t *testing.T) {
	app := newApp()

	want := map[string]bool{"serve": false, "peer": false, "mcp": false}
	for _, c := range app.Commands {
		if _, ok := want[c.Name]; ok {
			want[c.Name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("Missing command %s", name)
		}
	}
	if app.Action == nil {
		t.Error("Root command should default to serve")
	}
}

// runFlags parses args with the server flags and returns the loaded config.
func runFlags(t *testing.T, env map[string]string, args ...string) (config.Config, error) {
	t.Helper()

	var (
		cfg config.Config
		err error
	)
	cmd := &cli.Command{
		Name:  "test",
		Flags: serverFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err = loadConfig(cmd, func(key string) (string, bool) {
				v, ok := env[key]
				return v, ok
			})
			return nil
		},
	}
	if runErr := cmd.Run(context.Background(), append([]string{"test"}, args...)); runErr != nil {
		t.Fatalf("Failed to run command: %v", runErr)
	}
	return cfg, err
}

func TestFlagDefaults(t *testing.T) {
	cfg, err := runFlags(t, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg != config.Default() {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	env := map[string]string{"PORT": "4000", "CHAT_HISTORY_LIMIT": "20", "LOG_LEVEL": "warn"}

	cfg, err := runFlags(t, env, "--port", "5000", "--debug", "--admin-port", "0")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Port != 5000 {
		t.Errorf("Expected flag port 5000, got %d", cfg.Port)
	}
	if cfg.ChatHistoryLimit != 20 {
		t.Errorf("Expected env history 20, got %d", cfg.ChatHistoryLimit)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected --debug to win, got %s", cfg.LogLevel)
	}
	if cfg.AdminAddr() != "" {
		t.Errorf("Expected admin API disabled, got %s", cfg.AdminAddr())
	}
}

func TestFlagsAreValidated(t *testing.T) {
	_, err := runFlags(t, nil, "--history", "0")
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestPeerDefaultsAreInCatalog(t *testing.T) {
	var avatar, tone string
	cmd := &cli.Command{
		Name:  "test",
		Flags: peerFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			avatar, tone = cmd.String("avatar"), cmd.String("tone")
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"test"}); err != nil {
		t.Fatalf("Failed to run command: %v", err)
	}

	got := presence.SanitizeAvatar(avatar, tone)
	if got.ID != avatar || string(got.Tone) != tone {
		t.Errorf("Default avatar %s/%s is not selectable, server would use %s/%s", avatar, tone, got.ID, got.Tone)
	}
}

func TestLoopback(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0.0.0.0:3002", "127.0.0.1:3002"},
		{"[::]:3002", "127.0.0.1:3002"},
		{"10.0.0.5:3002", "10.0.0.5:3002"},
	}
	for _, tt := range tests {
		addr, err := net.ResolveTCPAddr("tcp", tt.in)
		if err != nil {
			t.Fatalf("Failed to resolve %s: %v", tt.in, err)
		}
		if got := loopback(addr); got != tt.want {
			t.Errorf("loopback(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.AdminPort = freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, zap.NewNop().Sugar()) }()

	healthURL := "http://" + cfg.AdminAddr() + "/healthz"
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(healthURL)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("Expected healthy admin API, got %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Admin API never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
