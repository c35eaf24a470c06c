package chat_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatsync/internal/models"
)

// MockMessageAPI is a testify mock of the chat.MessageAPI interface.
type MockMessageAPI struct {
	mock.Mock
}

func (m *MockMessageAPI) MessageHistory(ctx context.Context, chatID string, skip, limit int) ([]models.Message, bool, error) {
	args := m.Called(chatID, skip, limit)
	var msgs []models.Message
	if args.Get(0) != nil {
		msgs = args.Get(0).([]models.Message)
	}
	return msgs, args.Bool(1), args.Error(2)
}

func (m *MockMessageAPI) SendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(msg)
	if args.Get(0) == nil {
		return models.Message{}, args.Error(1)
	}
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MockMessageAPI) EditMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(msg)
	if args.Get(0) == nil {
		return models.Message{}, args.Error(1)
	}
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MockMessageAPI) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	args := m.Called(chatID, messageID)
	return args.Error(0)
}

func (m *MockMessageAPI) PinMessage(ctx context.Context, chatID, messageID string) error {
	args := m.Called(chatID, messageID)
	return args.Error(0)
}

func (m *MockMessageAPI) UnpinMessage(ctx context.Context, chatID, messageID string) error {
	args := m.Called(chatID, messageID)
	return args.Error(0)
}

func (m *MockMessageAPI) PinnedMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	args := m.Called(chatID)
	var msgs []models.Message
	if args.Get(0) != nil {
		msgs = args.Get(0).([]models.Message)
	}
	return msgs, args.Error(1)
}

// MockChatListAPI is a testify mock of the chat.ChatListAPI interface.
type MockChatListAPI struct {
	mock.Mock
}

func (m *MockChatListAPI) ChatPage(ctx context.Context, category models.Category, page, pageSize int, search string) ([]models.ChatSummary, bool, error) {
	args := m.Called(category, page, pageSize, search)
	var chats []models.ChatSummary
	if args.Get(0) != nil {
		chats = args.Get(0).([]models.ChatSummary)
	}
	return chats, args.Bool(1), args.Error(2)
}

// MockReadAPI is a testify mock of the chat.ReadAPI interface.
type MockReadAPI struct {
	mock.Mock
}

func (m *MockReadAPI) MarkRead(ctx context.Context, chatID, messageID string) error {
	args := m.Called(chatID, messageID)
	return args.Error(0)
}

func (m *MockReadAPI) LastReadMarker(ctx context.Context, chatID string) (string, error) {
	args := m.Called(chatID)
	return args.String(0), args.Error(1)
}

// emitted is one event recorded by the fake bus.
type emitted struct {
	event   string
	payload any
}

// fakeBus is an in-process EventBus double: handlers register as with the
// real hub, and tests push wire payloads through them.
type fakeBus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]func(json.RawMessage)
	sent     []emitted
	emitErr  error
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]map[int]func(json.RawMessage))}
}

func (b *fakeBus) Register(event string, fn func(data json.RawMessage)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.handlers[event] == nil {
		b.handlers[event] = make(map[int]func(json.RawMessage))
	}
	b.handlers[event][id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[event], id)
	}
}

func (b *fakeBus) Emit(event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.emitErr != nil {
		return b.emitErr
	}
	b.sent = append(b.sent, emitted{event: event, payload: payload})
	return nil
}

// push marshals payload and dispatches it to every handler of event, the way
// an incoming frame would arrive.
func (b *fakeBus) push(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	b.mu.Lock()
	fns := make([]func(json.RawMessage), 0, len(b.handlers[event]))
	for _, fn := range b.handlers[event] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
}

func (b *fakeBus) handlerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, hs := range b.handlers {
		n += len(hs)
	}
	return n
}

func (b *fakeBus) sentEvents() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.sent))
	for i, e := range b.sent {
		out[i] = e.event
	}
	return out
}
