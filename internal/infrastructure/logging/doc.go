// Package logging provides structured logging for SiteReport Core.
//
// Logger wraps log/slog so every component logs with the same handler,
// level and default fields (service, version). Attributes named after
// credentials (password, token, refresh_token, authorization, secret) are
// replaced with [REDACTED] before they are written.
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("login succeeded", "user_id", userID, "jti", jti)
//
// Never log passwords, raw tokens or signing secrets. Token identifiers
// (jti) and user ids are safe to log.
package logging
