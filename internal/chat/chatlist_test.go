package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatsync/internal/chat"
	"chatsync/internal/models"
)

const listPageSize = 4

func newChatListSync(api *MockChatListAPI, bus *fakeBus) *chat.ChatListSync {
	return chat.NewChatListSync(testUserID, listPageSize, api, bus, zap.NewNop())
}

func summary(id string, at time.Time) models.ChatSummary {
	return models.ChatSummary{
		ID:        id,
		Category:  models.CategoryDirect,
		UpdatedAt: at,
	}
}

func chatIDs(chats []models.ChatSummary) []string {
	out := make([]string, len(chats))
	for i, c := range chats {
		out[i] = c.ID
	}
	return out
}

func TestChatList_PageOneReplacesAndDedupes(t *testing.T) {
	api := new(MockChatListAPI)
	s := newChatListSync(api, newFakeBus())
	now := time.Now()

	api.On("ChatPage", models.Category(""), 1, listPageSize, "").
		Return([]models.ChatSummary{
			summary("a", now),
			summary("b", now),
			summary("a", now.Add(-time.Hour)), // duplicate: first occurrence wins
		}, false, nil).Once()

	require.NoError(t, s.LoadPage(context.Background(), 1, "", ""))
	assert.Equal(t, []string{"a", "b"}, chatIDs(s.Chats()))

	// Reloading page 1 replaces the list wholesale.
	api.On("ChatPage", models.Category(""), 1, listPageSize, "").
		Return([]models.ChatSummary{summary("c", now)}, false, nil).Once()
	require.NoError(t, s.LoadPage(context.Background(), 1, "", ""))
	assert.Equal(t, []string{"c"}, chatIDs(s.Chats()))
}

func TestChatList_LaterPagesPreserveKnownOrder(t *testing.T) {
	api := new(MockChatListAPI)
	s := newChatListSync(api, newFakeBus())
	now := time.Now()

	api.On("ChatPage", models.Category(""), 1, listPageSize, "").
		Return([]models.ChatSummary{summary("a", now), summary("b", now), summary("c", now)}, true, nil)
	require.NoError(t, s.LoadPage(context.Background(), 1, "", ""))

	// Page 2 re-delivers b (updated) and introduces d and e. The relative
	// order of a, b, c must not change mid-scroll.
	updatedB := summary("b", now.Add(time.Minute))
	api.On("ChatPage", models.Category(""), 2, listPageSize, "").
		Return([]models.ChatSummary{updatedB, summary("d", now), summary("e", now)}, false, nil)
	require.NoError(t, s.LoadPage(context.Background(), 2, "", ""))

	chats := s.Chats()
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, chatIDs(chats))
	assert.Equal(t, updatedB.UpdatedAt.Unix(), chats[1].UpdatedAt.Unix(), "known entry updated in place")
}

func TestChatList_LoadErrorLeavesStateUntouched(t *testing.T) {
	api := new(MockChatListAPI)
	s := newChatListSync(api, newFakeBus())
	now := time.Now()

	api.On("ChatPage", models.Category(""), 1, listPageSize, "").
		Return([]models.ChatSummary{summary("a", now)}, false, nil).Once()
	require.NoError(t, s.LoadPage(context.Background(), 1, "", ""))

	api.On("ChatPage", models.Category(""), 2, listPageSize, "").
		Return(nil, false, errors.New("boom")).Once()
	assert.Error(t, s.LoadPage(context.Background(), 2, "", ""))
	assert.Equal(t, []string{"a"}, chatIDs(s.Chats()))
}

func TestChatList_LiveUpdateMovesChatToFront(t *testing.T) {
	api := new(MockChatListAPI)
	s := newChatListSync(api, newFakeBus())
	base := time.Unix(0, 0)

	api.On("ChatPage", models.Category(""), 1, listPageSize, "").
		Return([]models.ChatSummary{
			summary("A", base.Add(10*time.Second)),
			summary("B", base.Add(5*time.Second)),
		}, false, nil)
	require.NoError(t, s.LoadPage(context.Background(), 1, "", ""))
	require.Equal(t, []string{"A", "B"}, chatIDs(s.Chats()))

	update := summary("B", base.Add(20*time.Second))
	update.Latest = &models.LatestMessage{ID: "m9", Content: "new activity"}
	s.ApplyLiveUpdate(update)

	chats := s.Chats()
	assert.Equal(t, []string{"B", "A"}, chatIDs(chats))
	require.NotNil(t, chats[0].Latest)
	assert.Equal(t, "m9", chats[0].Latest.ID)
}

func TestChatList_LiveUpdateInsertsUnknownChat(t *testing.T) {
	api := new(MockChatListAPI)
	s := newChatListSync(api, newFakeBus())

	s.ApplyLiveUpdate(summary("fresh", time.Now()))
	assert.Equal(t, []string{"fresh"}, chatIDs(s.Chats()))
}

func TestChatList_UnreadAppliedOnlyWhenAddressedToLocalUser(t *testing.T) {
	api := new(MockChatListAPI)
	s := newChatListSync(api, newFakeBus())
	now := time.Now()

	api.On("ChatPage", models.Category(""), 1, listPageSize, "").
		Return([]models.ChatSummary{summary("a", now)}, false, nil)
	require.NoError(t, s.LoadPage(context.Background(), 1, "", ""))

	addressed := summary("a", now.Add(time.Second))
	addressed.Unread = models.Unread{Count: 3, ForUserID: testUserID}
	s.ApplyLiveUpdate(addressed)
	assert.Equal(t, 3, s.Chats()[0].Unread.Count)

	foreign := summary("a", now.Add(2*time.Second))
	foreign.Unread = models.Unread{Count: 9, ForUserID: "user_peer"}
	s.ApplyLiveUpdate(foreign)
	assert.Equal(t, 3, s.Chats()[0].Unread.Count, "a counter addressed to someone else is ignored")
}

func TestChatList_UnreadClearedWhileConversationOpen(t *testing.T) {
	api := new(MockChatListAPI)
	s := newChatListSync(api, newFakeBus())
	now := time.Now()

	api.On("ChatPage", models.Category(""), 1, listPageSize, "").
		Return([]models.ChatSummary{summary("a", now)}, false, nil)
	require.NoError(t, s.LoadPage(context.Background(), 1, "", ""))
	s.SetActiveChat("a")

	update := summary("a", now.Add(time.Second))
	update.Unread = models.Unread{Count: 5, ForUserID: testUserID}
	s.ApplyLiveUpdate(update)

	assert.Equal(t, 0, s.Chats()[0].Unread.Count, "open conversation never shows unread")

	s.ClearActiveChat()
	update.UpdatedAt = now.Add(2 * time.Second)
	s.ApplyLiveUpdate(update)
	assert.Equal(t, 5, s.Chats()[0].Unread.Count)
}

func TestChatList_ByCategoryIsAFilterView(t *testing.T) {
	api := new(MockChatListAPI)
	s := newChatListSync(api, newFakeBus())
	now := time.Now()

	group := summary("g", now)
	group.Category = models.CategoryGroup
	bot := summary("bot", now)
	bot.Category = models.CategoryBot

	api.On("ChatPage", models.Category(""), 1, listPageSize, "").
		Return([]models.ChatSummary{summary("d", now), group, bot}, false, nil)
	require.NoError(t, s.LoadPage(context.Background(), 1, "", ""))

	assert.Equal(t, []string{"d"}, chatIDs(s.ByCategory(models.CategoryDirect)))
	assert.Equal(t, []string{"g"}, chatIDs(s.ByCategory(models.CategoryGroup)))
	assert.Equal(t, []string{"bot"}, chatIDs(s.ByCategory(models.CategoryBot)))
}

func TestChatList_CategoryBadges(t *testing.T) {
	api := new(MockChatListAPI)
	bus := newFakeBus()
	s := newChatListSync(api, bus)

	bus.push(t, models.EventCategoryBadge, models.BadgePayload{Category: models.CategoryGroup})
	bus.push(t, models.EventCategoryBadge, models.BadgePayload{Category: models.CategoryGroup})
	assert.Equal(t, 2, s.Badge(models.CategoryGroup))
	assert.Equal(t, 0, s.Badge(models.CategoryDirect))

	s.ClearBadge(models.CategoryGroup)
	assert.Equal(t, 0, s.Badge(models.CategoryGroup))
}

func TestChatList_LiveUpdateViaBus(t *testing.T) {
	api := new(MockChatListAPI)
	bus := newFakeBus()
	s := newChatListSync(api, bus)

	bus.push(t, models.EventChatUpdated, summary("a", time.Now()))
	assert.Equal(t, []string{"a"}, chatIDs(s.Chats()))

	bus.push(t, models.EventNewNotification, struct{}{})
	assert.Equal(t, 1, s.Notifications())
}
