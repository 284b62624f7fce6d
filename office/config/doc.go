// Package config provides runtime configuration for the virtual office server.
//
// The config package handles:
//   - Loading settings from the process environment (optionally seeded from a .env file)
//   - Applying documented defaults for every setting
//   - Validating the office rectangle, chat history cap and listener ports
//
// Settings:
//
//	HOST                 listen host for the realtime server (default 0.0.0.0)
//	PORT                 listen port for the realtime server (default 3001)
//	ADMIN_PORT           admin REST/MCP port, 0 disables it (default 3002)
//	OFFICE_WIDTH         office width in pixels (default 1200)
//	OFFICE_HEIGHT        office height in pixels (default 800)
//	OFFICE_PADDING       edge padding kept free on every side (default 40)
//	CHAT_HISTORY_LIMIT   general chat messages retained (default 50)
//	MAX_FRAME_BYTES      largest accepted frame payload (default 1 MiB)
//	LOG_LEVEL            debug, info, warn or error (default info)
//	LOG_FILE             optional rotating log file
//	NGROK_ENABLED        expose the realtime server through an ngrok tunnel
//	NGROK_AUTHTOKEN      ngrok auth token (NGROK_AUTH_TOKEN also accepted)
//	NGROK_DOMAIN         optional reserved ngrok domain
//
// Usage:
//
//	cfg, err := config.Load(os.LookupEnv)
//	if err != nil {
//		log.Fatal(err)
//	}
//	bounds := cfg.Bounds()
package config
