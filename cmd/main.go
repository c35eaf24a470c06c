// Command chatsync runs the sync engine against a configured chat backend
// and tails the chat list to stdout. It exists to exercise the engine end to
// end; real consumers embed the session in their UI layer.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"chatsync/internal/config"
	"chatsync/internal/session"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuration error", zap.Error(err))
	}

	ses, err := session.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build session", zap.Error(err))
	}
	defer ses.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ses.Connect(ctx); err != nil {
		logger.Fatal("failed to connect", zap.Error(err))
	}
	logger.Info("connected", zap.String("user", ses.UserID))

	if err := ses.ChatList.LoadPage(ctx, 1, "", ""); err != nil {
		logger.Warn("initial chat list load failed", zap.Error(err))
	}

	unsubscribe := ses.ChatList.Subscribe(func() {
		chats := ses.ChatList.Chats()
		logger.Info("chat list changed", zap.Int("chats", len(chats)))
		for i, c := range chats {
			if i == 5 {
				break
			}
			logger.Info("chat",
				zap.String("id", c.ID),
				zap.String("category", string(c.Category)),
				zap.Int("unread", c.Unread.Count),
			)
		}
	})
	defer unsubscribe()

	<-ctx.Done()
	logger.Info("shutting down")
}
