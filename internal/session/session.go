// Package session is the composition root of the sync engine. It builds the
// REST client, the realtime hub and the synchronizers from one Config and
// hands them to every component explicitly; there are no package-level
// singletons anywhere in the engine.
package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"chatsync/internal/api"
	"chatsync/internal/chat"
	"chatsync/internal/chathub"
	"chatsync/internal/config"
	"chatsync/internal/transport"
)

// Session wires the engine together for one authenticated user. The hub and
// the chat list live as long as the session; conversation synchronizers come
// and go with the screens that need them.
type Session struct {
	UserID   string
	UserName string

	API      *api.Client
	Hub      *chathub.Hub
	ChatList *chat.ChatListSync
	Reads    *chat.ReadReceipts

	cfg *config.Config
	log *zap.Logger

	mu   sync.Mutex
	open *chat.MessageSync
}

// New builds a session from configuration. The local user identity is taken
// from the access token's claims.
func New(cfg *config.Config, log *zap.Logger) (*Session, error) {
	userID, err := UserIDFromToken(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("resolve user identity: %w", err)
	}

	restClient := api.NewClient(cfg.APIBaseURL, cfg.Token, cfg.RequestTimeout, log)

	hub := chathub.NewHub(chathub.HubOptions{
		Dialer:         &transport.WSDialer{URL: cfg.WSURL, Token: cfg.Token, Log: log},
		UserID:         userID,
		UserName:       UserNameFromToken(cfg.Token),
		Heartbeat:      cfg.HeartbeatInterval,
		ReconnectDelay: cfg.ReconnectDelay,
		Log:            log,
	})

	chatList := chat.NewChatListSync(userID, cfg.ChatPageSize, restClient, hub, log)
	reads := chat.NewReadReceipts(userID, restClient, hub, chatList, log)

	return &Session{
		UserID:   userID,
		UserName: UserNameFromToken(cfg.Token),
		API:      restClient,
		Hub:      hub,
		ChatList: chatList,
		Reads:    reads,
		cfg:      cfg,
		log:      log,
	}, nil
}

// Connect brings the realtime channel up. Safe to call repeatedly and from
// concurrent callers.
func (s *Session) Connect(ctx context.Context) error {
	return s.Hub.EnsureConnected(ctx)
}

// OnForeground is the app-foreground hook: reconnect if needed and re-flush
// pending room joins.
func (s *Session) OnForeground(ctx context.Context) error {
	return s.Hub.OnForeground(ctx)
}

// OpenConversation enters a conversation screen: any previously open one is
// closed, the room join is queued (and flushed if connected), the first
// history page, pins and the counterparty's read marker are loaded. The
// returned synchronizer is live until CloseConversation.
func (s *Session) OpenConversation(ctx context.Context, chatID, counterpartyID string) (*chat.MessageSync, error) {
	s.CloseConversation()

	conv := chat.NewMessageSync(chatID, s.UserID, s.cfg.MessagePageSize, s.API, s.Hub, s.log)

	s.Hub.JoinChats(chatID)
	s.ChatList.SetActiveChat(chatID)
	s.Reads.SetOpenConversation(chatID, counterpartyID)

	if err := conv.LoadPage(ctx, 0); err != nil {
		conv.Close()
		s.ChatList.ClearActiveChat()
		s.Reads.ClearOpenConversation()
		return nil, err
	}
	if err := conv.LoadPins(ctx); err != nil {
		s.log.Warn("pinned messages unavailable", zap.String("chat", chatID), zap.Error(err))
	}
	if err := s.Reads.FetchMarker(ctx, chatID); err != nil {
		s.log.Warn("read marker unavailable", zap.String("chat", chatID), zap.Error(err))
	}

	s.mu.Lock()
	s.open = conv
	s.mu.Unlock()
	return conv, nil
}

// Conversation returns the currently open synchronizer, if any.
func (s *Session) Conversation() *chat.MessageSync {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// CloseConversation leaves the conversation screen: handlers are detached
// and transient conversation state cleared. The connection and the join
// queue are session-wide and survive.
func (s *Session) CloseConversation() {
	s.mu.Lock()
	open := s.open
	s.open = nil
	s.mu.Unlock()

	if open == nil {
		return
	}
	open.Close()
	s.ChatList.ClearActiveChat()
	s.Reads.ClearOpenConversation()
}

// Close shuts the whole session down.
func (s *Session) Close() error {
	s.CloseConversation()
	s.Reads.Close()
	s.ChatList.Close()
	return s.Hub.Close()
}
