package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NordCoder/Taskboard/internal/obs"
	"github.com/NordCoder/Taskboard/pkg/notifyclient"
	"go.uber.org/zap"
)

func main() {
	base := flag.String("base", envOr("TASKBOARD_URL", "http://localhost:8080"), "api-gateway base url")
	token := flag.String("token", os.Getenv("TASKBOARD_TOKEN"), "bearer token")
	window := flag.Int("window", notifyclient.DefaultWindow, "live window size")
	reconnect := flag.Bool("reconnect", true, "reconnect after the channel drops")
	debug := flag.Bool("debug", false, "debug logging to stderr")
	flag.Parse()

	level := "warn"
	if *debug {
		level = "debug"
	}
	l, err := obs.NewLogger(obs.LogConfig{Level: level, Pretty: true, App: "taskboard/notify-tail"})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	if *token == "" {
		l.Fatal("a token is required (-token or TASKBOARD_TOKEN)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var a *notifyclient.Agent
	a, err = notifyclient.New(notifyclient.Config{
		BaseURL:   *base,
		Token:     *token,
		Window:    *window,
		Reconnect: *reconnect,
		Logger:    l,
		OnState: func(s notifyclient.State) {
			if s == notifyclient.Joined {
				printMailbox(a.Snapshot())
			}
		},
		OnPush: func(n notifyclient.Notification) {
			printLine(n)
			fmt.Printf("  unread: %d\n", a.Snapshot().UnreadCount)
		},
	})
	if err != nil {
		l.Fatal("agent", zap.Error(err))
	}

	if err := a.Run(ctx); err != nil {
		if errors.Is(err, notifyclient.ErrUnauthorized) {
			l.Fatal("token rejected")
		}
		l.Fatal("agent stopped", zap.Error(err))
	}
}

func printMailbox(v notifyclient.View) {
	fmt.Printf("mailbox of %s: %d unread\n", v.Recipient, v.UnreadCount)
	for i := len(v.Notifications) - 1; i >= 0; i-- {
		printLine(v.Notifications[i])
	}
}

func printLine(n notifyclient.Notification) {
	mark := "*"
	if n.Read {
		mark = " "
	}
	fmt.Printf("%s %s [%s] %s\n", mark, n.CreatedAt.Local().Format(time.DateTime), n.Type, n.Message)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
