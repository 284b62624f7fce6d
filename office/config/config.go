package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/wricardo/virtual-office/office/presence"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Config holds every tunable of the server process.
type Config struct {
	Host             string
	Port             int
	AdminPort        int
	OfficeWidth      float64
	OfficeHeight     float64
	OfficePadding    float64
	ChatHistoryLimit int
	MaxFrameBytes    int
	LogLevel         string
	LogFile          string

	NgrokEnabled   bool
	NgrokAuthToken string
	NgrokDomain    string
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Host:             "0.0.0.0",
		Port:             3001,
		AdminPort:        3002,
		OfficeWidth:      1200,
		OfficeHeight:     800,
		OfficePadding:    40,
		ChatHistoryLimit: 50,
		MaxFrameBytes:    1 << 20,
		LogLevel:         "info",
	}
}

// Load reads the configuration from lookup on top of Default and validates it.
func Load(lookup LookupFunc) (Config, error) {
	cfg := Default()
	if lookup == nil {
		return cfg, nil
	}

	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	float := func(key string, dst *float64) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	str("HOST", &cfg.Host)
	integer("PORT", &cfg.Port)
	integer("ADMIN_PORT", &cfg.AdminPort)
	float("OFFICE_WIDTH", &cfg.OfficeWidth)
	float("OFFICE_HEIGHT", &cfg.OfficeHeight)
	float("OFFICE_PADDING", &cfg.OfficePadding)
	integer("CHAT_HISTORY_LIMIT", &cfg.ChatHistoryLimit)
	integer("MAX_FRAME_BYTES", &cfg.MaxFrameBytes)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FILE", &cfg.LogFile)
	boolean("NGROK_ENABLED", &cfg.NgrokEnabled)
	str("NGROK_AUTH_TOKEN", &cfg.NgrokAuthToken)
	str("NGROK_AUTHTOKEN", &cfg.NgrokAuthToken)
	str("NGROK_DOMAIN", &cfg.NgrokDomain)

	if len(errs) > 0 {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that the configuration describes a usable office.
func (c Config) Validate() error {
	switch {
	case c.OfficeWidth <= 0 || c.OfficeHeight <= 0:
		return fmt.Errorf("%w: office size must be positive, got %vx%v", ErrInvalidConfig, c.OfficeWidth, c.OfficeHeight)
	case c.OfficePadding < 0:
		return fmt.Errorf("%w: padding must not be negative, got %v", ErrInvalidConfig, c.OfficePadding)
	case 2*c.OfficePadding >= c.OfficeWidth || 2*c.OfficePadding >= c.OfficeHeight:
		return fmt.Errorf("%w: padding %v leaves no room in a %vx%v office", ErrInvalidConfig, c.OfficePadding, c.OfficeWidth, c.OfficeHeight)
	case c.ChatHistoryLimit < 1:
		return fmt.Errorf("%w: chat history limit must be at least 1, got %d", ErrInvalidConfig, c.ChatHistoryLimit)
	case c.MaxFrameBytes < 125:
		return fmt.Errorf("%w: max frame bytes must be at least 125, got %d", ErrInvalidConfig, c.MaxFrameBytes)
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("%w: port out of range: %d", ErrInvalidConfig, c.Port)
	case c.AdminPort < 0 || c.AdminPort > 65535:
		return fmt.Errorf("%w: admin port out of range: %d", ErrInvalidConfig, c.AdminPort)
	}
	return nil
}

// Bounds returns the office rectangle.
func (c Config) Bounds() presence.Bounds {
	return presence.Bounds{Width: c.OfficeWidth, Height: c.OfficeHeight, Padding: c.OfficePadding}
}

// Addr is the realtime listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// AdminAddr is the admin listen address, empty when the admin API is disabled.
func (c Config) AdminAddr() string {
	if c.AdminPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.AdminPort))
}
