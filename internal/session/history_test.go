package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestHistoryAddKeepsExchangeOrder(t *testing.T) {
	h := NewHistory()
	h.Add("질문1", "답변1")
	h.Add("질문2", "답변2")

	msgs := h.Messages()
	want := []Message{
		{Role: RoleUser, Content: "질문1"},
		{Role: RoleAssistant, Content: "답변1"},
		{Role: RoleUser, Content: "질문2"},
		{Role: RoleAssistant, Content: "답변2"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("len = %d, want %d", len(msgs), len(want))
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("messages[%d] = %+v, want %+v", i, msgs[i], want[i])
		}
	}
	if h.Len() != 4 {
		t.Errorf("Len() = %d, want 4", h.Len())
	}
}

func TestHistoryMessagesReturnsCopy(t *testing.T) {
	h := NewHistory()
	h.Add("질문", "답변")

	msgs := h.Messages()
	msgs[0].Content = "변조"

	if h.Messages()[0].Content != "질문" {
		t.Error("mutation of returned slice leaked into history")
	}
}

func TestHistoryStoreLazyCreation(t *testing.T) {
	s := NewHistoryStore()
	id := uuid.New()

	h1 := s.Get(id)
	if h1 == nil {
		t.Fatal("Get() returned nil history")
	}
	if h1.Len() != 0 {
		t.Errorf("fresh history Len() = %d, want 0", h1.Len())
	}

	// Same session ID must always yield the same history instance.
	h1.Add("질문", "답변")
	if got := s.Get(id).Len(); got != 2 {
		t.Errorf("second Get() history Len() = %d, want 2", got)
	}
}

func TestHistoryStoreDelete(t *testing.T) {
	s := NewHistoryStore()
	id := uuid.New()

	s.Get(id).Add("질문", "답변")
	s.Delete(id)

	if got := s.Get(id).Len(); got != 0 {
		t.Errorf("history survived delete, Len() = %d", got)
	}
}

func TestHistoryConcurrentAppend(t *testing.T) {
	h := NewHistory()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Add(fmt.Sprintf("질문%d", i), fmt.Sprintf("답변%d", i))
		}()
	}
	wg.Wait()

	msgs := h.Messages()
	if len(msgs) != 100 {
		t.Fatalf("len = %d, want 100", len(msgs))
	}
	// Exchanges may interleave across goroutines, but each pair stays
	// adjacent and user-first.
	for i := 0; i < len(msgs); i += 2 {
		if msgs[i].Role != RoleUser || msgs[i+1].Role != RoleAssistant {
			t.Fatalf("exchange at %d out of order: %s, %s", i, msgs[i].Role, msgs[i+1].Role)
		}
	}
}
