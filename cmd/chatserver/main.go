// Command chatserver runs the chat coordinator, the chat TCP listener, and
// the admin HTTP surface (health + metrics) until a termination signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chatcore/chatserver/internal/adminhttp"
	"github.com/chatcore/chatserver/internal/config"
	"github.com/chatcore/chatserver/internal/lifecycle"
	"github.com/chatcore/chatserver/internal/logging"
)

func main() {
	for _, path := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	port := flag.String("port", "", "chat listen port (required)")
	flag.Parse()

	if *port != "" {
		os.Setenv("CHAT_PORT", *port)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevMode); err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	logging.Info(ctx, "starting chatserver", zap.String("port", cfg.Port), zap.String("admin_addr", cfg.AdminAddr))

	chatServer := lifecycle.NewServer(":"+cfg.Port, cfg.RoomBacklog, cfg.MailboxCap)
	adminServer := adminhttp.NewServer(cfg.AdminAddr, chatServer.Ready)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return chatServer.Run(groupCtx)
	})
	group.Go(func() error {
		return adminhttp.Run(groupCtx, adminServer, lifecycle.ShutdownWait(cfg.ShutdownWait))
	})

	if err := group.Wait(); err != nil {
		logging.Error(ctx, "server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logging.Info(ctx, "chatserver exited cleanly")
}
