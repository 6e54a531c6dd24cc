package projection

import (
	"charity-chat/domain"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func persisted(content string, at time.Time) domain.Message {
	return domain.Message{ID: uuid.New(), ChatID: "chat-1", SenderID: "charity-a", Content: content, CreatedAt: at}
}

func TestTimeline_AckAndEchoNeverDuplicate(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("chat-1")
	now := time.Now()

	// Given an optimistic entry
	timeline.AddPending(domain.Message{ChatID: "chat-1", SenderID: "user-b", Content: "hello", ClientKey: "k1", CreatedAt: now})

	// When the ack arrives, then the echo of the same message
	stored := domain.Message{ID: uuid.New(), ChatID: "chat-1", SenderID: "user-b", Content: "hello", ClientKey: "k1", CreatedAt: now}
	req.False(timeline.Confirm(stored))
	req.False(timeline.Confirm(stored))

	// Then a single sent entry exists
	entries := timeline.Entries()
	req.Len(entries, 1)
	req.Equal(StateSent, entries[0].State)
	req.Equal(stored.ID, entries[0].Message.ID)
}

func TestTimeline_Confirm_KeepsPersistedOrder(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("chat-1")
	now := time.Now()

	timeline.Load([]domain.Message{persisted("one", now), persisted("three", now.Add(2*time.Second))})
	timeline.AddPending(domain.Message{Content: "mine", ClientKey: "k1", CreatedAt: now.Add(3 * time.Second)})

	req.True(timeline.Confirm(persisted("two", now.Add(time.Second))))
	req.True(timeline.Confirm(persisted("four", now.Add(4*time.Second))))

	var contents []string
	for _, e := range timeline.Entries() {
		contents = append(contents, fmt.Sprintf("%s:%s", e.Message.Content, e.State))
	}
	req.Equal([]string{"one:sent", "two:sent", "three:sent", "four:sent", "mine:pending"}, contents)
}

func TestTimeline_Confirm_AckAfterPeerEchoMovesToPersistedPosition(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("chat-1")
	now := time.Now()

	// Given my pending message and one still pending after it
	timeline.AddPending(domain.Message{ChatID: "chat-1", SenderID: "user-b", Content: "mine", ClientKey: "k1", CreatedAt: now})
	timeline.AddPending(domain.Message{ChatID: "chat-1", SenderID: "user-b", Content: "later", ClientKey: "k2", CreatedAt: now})

	// When the peer echo, persisted after mine, arrives before my ack
	theirs := persisted("theirs", now.Add(2*time.Millisecond))
	req.True(timeline.Confirm(theirs))
	mine := domain.Message{ID: uuid.New(), ChatID: "chat-1", SenderID: "user-b", Content: "mine", ClientKey: "k1", CreatedAt: now.Add(time.Millisecond)}
	req.False(timeline.Confirm(mine))

	// Then sent entries follow the persisted order and pending ones stay last
	entries := timeline.Entries()
	req.Len(entries, 3)
	req.Equal("mine", entries[0].Message.Content)
	req.Equal("theirs", entries[1].Message.Content)
	req.Equal("later", entries[2].Message.Content)
	req.Equal(StatePending, entries[2].State)
}

func TestTimeline_FailAndRetry(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("chat-1")
	timeline.AddPending(domain.Message{Content: "hello", ClientKey: "k1"})

	_, ok := timeline.Retry("k1")
	req.False(ok, "only failed entries can be retried")

	timeline.Fail("k1", fmt.Errorf("network failure"))
	entry, ok := timeline.Find("k1")
	req.True(ok)
	req.Equal(StateFailed, entry.State)
	req.Equal("network failure", entry.Error)

	msg, ok := timeline.Retry("k1")
	req.True(ok)
	req.Equal("hello", msg.Content)
	entry, _ = timeline.Find("k1")
	req.Equal(StatePending, entry.State)
	req.Empty(entry.Error)
}

func TestTimeline_Load_KeepsUnknownOptimisticEntries(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("chat-1")
	timeline.AddPending(domain.Message{Content: "persisted meanwhile", ClientKey: "k1"})
	timeline.AddPending(domain.Message{Content: "still failed", ClientKey: "k2"})
	timeline.Fail("k2", fmt.Errorf("boom"))

	history := persisted("persisted meanwhile", time.Now())
	history.ClientKey = "k1"
	timeline.Load([]domain.Message{history})

	entries := timeline.Entries()
	req.Len(entries, 2)
	req.Equal(StateSent, entries[0].State)
	req.Equal(StateFailed, entries[1].State)
	req.Equal("k2", entries[1].Message.ClientKey)
}
