// Package config validates and loads the server's environment configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration for the chat server.
type Config struct {
	// Required
	Port string

	// Optional, with defaults
	AdminAddr    string
	LogLevel     string
	DevMode      bool
	RoomBacklog  int
	MailboxCap   int
	ShutdownWait int // seconds
}

// Load validates all relevant environment variables and returns a Config.
// Returns an error if any required variable is missing or out of range.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = os.Getenv("CHAT_PORT")
	if cfg.Port == "" {
		errs = append(errs, "CHAT_PORT is required")
	} else if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("CHAT_PORT must be a valid port number between 1 and 65535 (got %q)", cfg.Port))
	}

	cfg.AdminAddr = getEnvOrDefault("CHAT_ADMIN_ADDR", "127.0.0.1:9090")

	// LogLevel is only logged below; the logger does not read it (its level
	// follows DevMode).
	cfg.LogLevel = getEnvOrDefault("CHAT_LOG_LEVEL", "info")

	cfg.DevMode = os.Getenv("CHAT_DEV_MODE") == "true"

	backlogStr := getEnvOrDefault("CHAT_ROOM_BACKLOG", "32")
	backlog, err := strconv.Atoi(backlogStr)
	if err != nil || backlog < 1 || backlog > 4096 {
		errs = append(errs, fmt.Sprintf("CHAT_ROOM_BACKLOG must be an integer in [1,4096] (got %q)", backlogStr))
	}
	cfg.RoomBacklog = backlog

	mailboxStr := getEnvOrDefault("CHAT_MAILBOX_CAP", "256")
	mailbox, err := strconv.Atoi(mailboxStr)
	if err != nil || mailbox < 1 || mailbox > 65536 {
		errs = append(errs, fmt.Sprintf("CHAT_MAILBOX_CAP must be an integer in [1,65536] (got %q)", mailboxStr))
	}
	cfg.MailboxCap = mailbox

	waitStr := getEnvOrDefault("CHAT_SHUTDOWN_WAIT_SECONDS", "5")
	wait, err := strconv.Atoi(waitStr)
	if err != nil || wait < 0 {
		errs = append(errs, fmt.Sprintf("CHAT_SHUTDOWN_WAIT_SECONDS must be a non-negative integer (got %q)", waitStr))
	}
	cfg.ShutdownWait = wait

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"port", cfg.Port,
		"admin_addr", cfg.AdminAddr,
		"log_level", cfg.LogLevel,
		"dev_mode", cfg.DevMode,
		"room_backlog", cfg.RoomBacklog,
		"mailbox_cap", cfg.MailboxCap,
		"shutdown_wait_seconds", cfg.ShutdownWait,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
