package storage

import (
	"charity-chat/domain"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_MessageHistory_Performance(t *testing.T) {
	if testing.Short() {
		t.Skip("seeding is slow")
	}
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t), testLogger())

	totalMessages := 20_000
	target := domain.ChatID("chat-42")

	// Seeding spread over 100 chats
	startSeed := time.Now()
	for i := 0; i < totalMessages; i++ {
		chatID := domain.ChatID(fmt.Sprintf("chat-%d", i%100))
		_, _, err := repo.Append(domain.Message{
			ChatID:    chatID,
			SenderID:  fmt.Sprintf("user_%d", i%500),
			Content:   "Gracias por la donación, this is a performance test!",
			CreatedAt: time.Now(),
		})
		req.NoError(err)
	}
	t.Logf("Seeded %d messages in %v", totalMessages, time.Since(startSeed))

	startGet := time.Now()
	messages, err := repo.List(target)
	req.NoError(err)
	t.Logf("Retrieved %d messages for %s in %v", len(messages), target, time.Since(startGet))

	req.Len(messages, totalMessages/100)
	for i := 1; i < len(messages); i++ {
		req.True(messages[i].CreatedAt.After(messages[i-1].CreatedAt))
	}

	last, err := repo.Last(target)
	req.NoError(err)
	req.Equal(messages[len(messages)-1].ID, last.ID)
}

// Test_MessageRepository_ConcurrentAppends validates thread-safety when
// several goroutines write to their own chat simultaneously.
func Test_MessageRepository_ConcurrentAppends(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t), testLogger())

	const (
		numGoroutines    = 10
		writesPerRoutine = 50
	)

	var wg sync.WaitGroup
	var errorCount atomic.Int32
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(routineID int) {
			defer wg.Done()
			chatID := domain.ChatID(fmt.Sprintf("chat-%d", routineID))
			for j := 0; j < writesPerRoutine; j++ {
				_, _, err := repo.Append(domain.Message{
					ChatID:    chatID,
					SenderID:  "user-b",
					Content:   fmt.Sprintf("message %d", j),
					ClientKey: fmt.Sprintf("k-%d", j),
					CreatedAt: time.Now(),
				})
				if err != nil {
					errorCount.Add(1)
				}
			}
		}(g)
	}
	wg.Wait()

	req.Zero(errorCount.Load())
	for g := 0; g < numGoroutines; g++ {
		messages, err := repo.List(domain.ChatID(fmt.Sprintf("chat-%d", g)))
		req.NoError(err)
		req.Len(messages, writesPerRoutine)
		for i := 1; i < len(messages); i++ {
			req.True(messages[i].CreatedAt.After(messages[i-1].CreatedAt))
		}
	}
}

func BenchmarkMessageRepository_Append(b *testing.B) {
	repo := NewMessageRepository(openTestDB(b), testLogger())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := repo.Append(domain.Message{
			ChatID:    "chat-bench",
			SenderID:  "user-b",
			Content:   "hola",
			CreatedAt: time.Now(),
		}); err != nil {
			b.Fatal(err)
		}
	}
}
