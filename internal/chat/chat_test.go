package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/cookchat/cookchat/internal/llm"
	"github.com/cookchat/cookchat/internal/log"
	"github.com/cookchat/cookchat/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recipeResponse is a canonical recipe-bearing completion.
const recipeResponse = "김치찌개\n조리 시간: 30분, 2인분\n\n재료:\n- 김치 300g\n- 돼지고기 200g\n\n만드는 방법:\n1. 김치를 볶는다"

// chatResponse is conversational filler that carries no recipe.
const chatResponse = "네, 무엇이든 물어보세요!"

type fakeRetriever struct {
	mu        sync.Mutex
	passages  []string
	err       error
	lastQuery string
	lastK     int
	calls     int
}

func (r *fakeRetriever) Retrieve(_ context.Context, query string, k int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.lastQuery = query
	r.lastK = k
	if r.err != nil {
		return nil, r.err
	}
	return r.passages, nil
}

// fakeCompleter replays scripted responses in order; the last one repeats.
// Streaming splits the response into two fragments.
type fakeCompleter struct {
	mu        sync.Mutex
	responses []string
	err       error
	delay     time.Duration
	requests  []llm.Request
}

func (c *fakeCompleter) next(req llm.Request) (string, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	n := len(c.requests)
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return "", c.err
	}
	if n <= len(c.responses) {
		return c.responses[n-1], nil
	}
	return c.responses[len(c.responses)-1], nil
}

func (c *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	return c.next(req)
}

func (c *fakeCompleter) CompleteStream(ctx context.Context, req llm.Request, fn llm.StreamFunc) (string, error) {
	resp, err := c.next(req)
	if err != nil {
		return "", err
	}
	mid := len(resp) / 2
	for _, chunk := range []string{resp[:mid], resp[mid:]} {
		if err := fn(ctx, chunk); err != nil {
			return "", err
		}
	}
	return resp, nil
}

func (c *fakeCompleter) request(t *testing.T, i int) llm.Request {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.requests) {
		t.Fatalf("completer saw %d requests, want at least %d", len(c.requests), i+1)
	}
	return c.requests[i]
}

type testEnv struct {
	svc       *Service
	sessions  *session.Store
	histories *session.HistoryStore
	finals    *session.FinalStore
	retriever *fakeRetriever
	completer *fakeCompleter
}

func newTestEnv(t *testing.T, completer *fakeCompleter) *testEnv {
	t.Helper()

	env := &testEnv{
		sessions:  session.NewStore(),
		histories: session.NewHistoryStore(),
		finals:    session.NewFinalStore(),
		retriever: &fakeRetriever{passages: []string{"참고 레시피 1", "참고 레시피 2"}},
		completer: completer,
	}

	svc, err := New(Config{
		Sessions:  env.sessions,
		Histories: env.histories,
		Finals:    env.finals,
		Retriever: env.retriever,
		Completer: env.completer,
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.svc = svc
	return env
}

func TestNewValidation(t *testing.T) {
	valid := Config{
		Sessions:  session.NewStore(),
		Histories: session.NewHistoryStore(),
		Finals:    session.NewFinalStore(),
		Retriever: &fakeRetriever{},
		Completer: &fakeCompleter{responses: []string{"x"}},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing stores", func(c *Config) { c.Sessions = nil }},
		{"missing retriever", func(c *Config) { c.Retriever = nil }},
		{"missing completer", func(c *Config) { c.Completer = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("New() expected error, got nil")
			}
		})
	}

	if _, err := New(valid); err != nil {
		t.Errorf("New() with valid config error = %v", err)
	}
}

func TestInitSession(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{responses: []string{recipeResponse}})

	result, err := env.svc.InitSession(context.Background(), session.Profile{
		FoodType:     "한식",
		CookingLevel: session.LevelBeginner,
	})
	if err != nil {
		t.Fatalf("InitSession() error = %v", err)
	}
	if result.SessionID == uuid.Nil {
		t.Fatal("InitSession() returned nil session ID")
	}
	if result.InitialMessage != recipeResponse {
		t.Errorf("InitialMessage = %q, want the completion", result.InitialMessage)
	}

	// The opening turn runs against a synthesized question.
	if env.retriever.lastQuery != "한식 레시피를 알려줘" {
		t.Errorf("retrieval query = %q, want synthesized initial question", env.retriever.lastQuery)
	}
	if env.retriever.lastK != DefaultTopK {
		t.Errorf("retrieval k = %d, want %d", env.retriever.lastK, DefaultTopK)
	}

	msgs, err := env.svc.GetHistory(result.SessionID)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "한식 레시피를 알려줘" || msgs[1].Content != recipeResponse {
		t.Errorf("history after init = %+v", msgs)
	}

	// The opening response is a recipe, so the draft slot is populated.
	sess, _ := env.sessions.Get(result.SessionID)
	if sess.LastRecipe == nil || sess.LastRecipe.Name != "김치찌개" {
		t.Errorf("LastRecipe = %+v, want draft named 김치찌개", sess.LastRecipe)
	}
}

func TestInitSessionCompletionFailure(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{err: errors.New("model down")})

	if _, err := env.svc.InitSession(context.Background(), session.Profile{FoodType: "한식"}); err == nil {
		t.Fatal("InitSession() expected error, got nil")
	}
	// The session was created before the turn ran; it stays in the store.
	if env.sessions.Len() != 1 {
		t.Errorf("session count = %d, want 1", env.sessions.Len())
	}
}

func TestChatUnknownSession(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{responses: []string{recipeResponse}})

	if _, err := env.svc.Chat(context.Background(), uuid.New(), "질문"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Chat(unknown) error = %v, want ErrNotFound", err)
	}

	// The streaming variant signals not-found the same way.
	_, err := env.svc.ChatStream(context.Background(), uuid.New(), "질문",
		func(context.Context, string) error { return nil })
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("ChatStream(unknown) error = %v, want ErrNotFound", err)
	}
	if env.retriever.calls != 0 {
		t.Errorf("retriever called %d times for unknown sessions, want 0", env.retriever.calls)
	}
}

func TestChatPromptAssembly(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{responses: []string{recipeResponse}})
	created := env.sessions.Create(session.Profile{
		Allergies:    []string{"땅콩", "우유"},
		Preferences:  "매운맛 선호",
		CookingLevel: session.LevelIntermediate,
		FoodType:     "한식",
	})

	if _, err := env.svc.Chat(context.Background(), created.ID, "김치찌개 레시피 알려줘"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	req := env.completer.request(t, 0)
	if !strings.Contains(req.System, "요리 전문가") {
		t.Errorf("system prompt missing persona: %q", req.System)
	}
	if len(req.History) != 0 {
		t.Errorf("first turn history = %+v, want empty", req.History)
	}

	for _, want := range []string{
		"[알러지]\n땅콩, 우유",
		"[특이사항]\n매운맛 선호",
		"[요리 레벨]\nintermediate",
		"[컨텍스트]\n참고 레시피 1\n\n참고 레시피 2",
		"[질문]\n김치찌개 레시피 알려줘",
	} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, req.Prompt)
		}
	}
}

func TestChatPromptEmptyAllergies(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{responses: []string{recipeResponse}})
	created := env.sessions.Create(session.Profile{FoodType: "한식"})

	if _, err := env.svc.Chat(context.Background(), created.ID, "질문"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	req := env.completer.request(t, 0)
	if !strings.Contains(req.Prompt, "[알러지]\n없음") {
		t.Errorf("prompt missing 없음 sentinel:\n%s", req.Prompt)
	}
}

func TestChatHistoryAccumulates(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{responses: []string{recipeResponse, chatResponse}})
	created := env.sessions.Create(session.Profile{FoodType: "한식"})

	if _, err := env.svc.Chat(context.Background(), created.ID, "첫 질문"); err != nil {
		t.Fatalf("first Chat() error = %v", err)
	}
	if _, err := env.svc.Chat(context.Background(), created.ID, "둘째 질문"); err != nil {
		t.Fatalf("second Chat() error = %v", err)
	}

	// The second completion sees the first exchange, not the in-flight turn.
	req := env.completer.request(t, 1)
	if len(req.History) != 2 {
		t.Fatalf("second turn history len = %d, want 2", len(req.History))
	}
	if req.History[0].Content != "첫 질문" || req.History[1].Content != recipeResponse {
		t.Errorf("second turn history = %+v", req.History)
	}

	msgs, _ := env.svc.GetHistory(created.ID)
	if len(msgs) != 4 {
		t.Errorf("history len = %d, want 4", len(msgs))
	}
}

func TestChatRecipeClassification(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{responses: []string{recipeResponse, chatResponse}})
	created := env.sessions.Create(session.Profile{FoodType: "한식"})

	result, err := env.svc.Chat(context.Background(), created.ID, "레시피 알려줘")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !result.IsRecipe {
		t.Error("recipe response classified as non-recipe")
	}

	// A follow-up that is not a recipe leaves the draft slot untouched.
	result, err = env.svc.Chat(context.Background(), created.ID, "고마워!")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if result.IsRecipe {
		t.Error("filler response classified as recipe")
	}

	sess, _ := env.sessions.Get(created.ID)
	if sess.LastRecipe == nil || sess.LastRecipe.Content != recipeResponse {
		t.Errorf("LastRecipe = %+v, want the earlier recipe preserved", sess.LastRecipe)
	}
}

func TestChatRetrievalFailure(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{responses: []string{recipeResponse}})
	env.retriever.err = errors.New("vector search down")
	created := env.sessions.Create(session.Profile{FoodType: "한식"})

	if _, err := env.svc.Chat(context.Background(), created.ID, "질문"); err == nil {
		t.Fatal("Chat() expected error, got nil")
	}
	if got := env.histories.Get(created.ID).Len(); got != 0 {
		t.Errorf("history len after failed retrieval = %d, want 0", got)
	}
}

func TestChatCompletionFailure(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{err: errors.New("model down")})
	created := env.sessions.Create(session.Profile{FoodType: "한식"})

	if _, err := env.svc.Chat(context.Background(), created.ID, "질문"); err == nil {
		t.Fatal("Chat() expected error, got nil")
	}
	if got := env.histories.Get(created.ID).Len(); got != 0 {
		t.Errorf("history len after failed completion = %d, want 0", got)
	}
	sess, _ := env.sessions.Get(created.ID)
	if sess.LastRecipe != nil {
		t.Errorf("LastRecipe = %+v after failed turn, want nil", sess.LastRecipe)
	}
}

func TestChatStream(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{responses: []string{recipeResponse}})
	created := env.sessions.Create(session.Profile{FoodType: "한식"})

	var streamed strings.Builder
	result, err := env.svc.ChatStream(context.Background(), created.ID, "레시피 알려줘",
		func(_ context.Context, chunk string) error {
			streamed.WriteString(chunk)
			return nil
		})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}

	if streamed.String() != recipeResponse {
		t.Errorf("streamed fragments = %q, want full response", streamed.String())
	}
	if result.Response != recipeResponse || !result.IsRecipe {
		t.Errorf("result = %+v", result)
	}

	// The exchange commits only after the stream is exhausted.
	msgs, _ := env.svc.GetHistory(created.ID)
	if len(msgs) != 2 {
		t.Errorf("history len = %d, want 2", len(msgs))
	}
}

func TestChatStreamAbandonedCommitsNothing(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{responses: []string{recipeResponse}})
	created := env.sessions.Create(session.Profile{FoodType: "한식"})

	// The callback failing mid-stream stands in for a client disconnect.
	var chunks int
	_, err := env.svc.ChatStream(context.Background(), created.ID, "레시피 알려줘",
		func(context.Context, string) error {
			chunks++
			return errors.New("client went away")
		})
	if err == nil {
		t.Fatal("ChatStream() expected error, got nil")
	}
	if chunks != 1 {
		t.Errorf("stream continued after callback error, chunks = %d", chunks)
	}

	if got := env.histories.Get(created.ID).Len(); got != 0 {
		t.Errorf("abandoned stream committed history, len = %d", got)
	}
	sess, _ := env.sessions.Get(created.ID)
	if sess.LastRecipe != nil {
		t.Errorf("abandoned stream set LastRecipe = %+v", sess.LastRecipe)
	}
}

func TestFinalize(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{responses: []string{recipeResponse}})
	created := env.sessions.Create(session.Profile{FoodType: "한식"})

	if _, err := env.svc.Chat(context.Background(), created.ID, "레시피 알려줘"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	final, err := env.svc.Finalize(created.ID, "이걸로 확정")
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if final.Name != "김치찌개" || final.Content != recipeResponse {
		t.Errorf("final = %+v", final)
	}
	if !strings.Contains(final.ImagePrompt, "김치찌개") {
		t.Errorf("image prompt missing dish name: %q", final.ImagePrompt)
	}

	sess, _ := env.sessions.Get(created.ID)
	if !sess.IsFinalized {
		t.Error("session not marked finalized")
	}

	got, err := env.svc.GetFinalRecipe(created.ID)
	if err != nil {
		t.Fatalf("GetFinalRecipe() error = %v", err)
	}
	if got != final {
		t.Errorf("GetFinalRecipe() = %+v, want %+v", got, final)
	}
}

func TestFinalizeIsWriteOnce(t *testing.T) {
	second := "된장찌개\n\n재료:\n- 된장 2숟가락"
	env := newTestEnv(t, &fakeCompleter{responses: []string{recipeResponse, second}})
	created := env.sessions.Create(session.Profile{FoodType: "한식"})

	if _, err := env.svc.Chat(context.Background(), created.ID, "김치찌개 레시피"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	first, err := env.svc.Finalize(created.ID, "")
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	// Chat stays usable after finalize, and a later recipe turn must not
	// rewrite the frozen record.
	if _, err := env.svc.Chat(context.Background(), created.ID, "된장찌개도 알려줘"); err != nil {
		t.Fatalf("Chat() after finalize error = %v", err)
	}
	again, err := env.svc.Finalize(created.ID, "")
	if err != nil {
		t.Fatalf("second Finalize() error = %v", err)
	}
	if again != first {
		t.Errorf("re-finalize returned %+v, want original %+v", again, first)
	}
}

func TestFinalizeFallsBackToHistory(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{responses: []string{recipeResponse}})
	created := env.sessions.Create(session.Profile{FoodType: "한식"})

	// History carries recipes but the draft slot is empty: the walk must
	// pick the most recent recipe-bearing assistant turn.
	h := env.histories.Get(created.ID)
	h.Add("첫 질문", "옛날 레시피\n재료: 양파")
	h.Add("둘째 질문", recipeResponse)
	h.Add("고마워", chatResponse)

	final, err := env.svc.Finalize(created.ID, "")
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if final.Name != "김치찌개" || final.Content != recipeResponse {
		t.Errorf("fallback resolved %+v, want most recent recipe", final)
	}
}

func TestFinalizeNoRecipe(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{responses: []string{chatResponse}})
	created := env.sessions.Create(session.Profile{FoodType: "한식"})

	if _, err := env.svc.Finalize(created.ID, ""); !errors.Is(err, ErrNoRecipe) {
		t.Errorf("Finalize() error = %v, want ErrNoRecipe", err)
	}
	if _, err := env.svc.Finalize(uuid.New(), ""); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Finalize(unknown) error = %v, want ErrNotFound", err)
	}

	sess, _ := env.sessions.Get(created.ID)
	if sess.IsFinalized {
		t.Error("failed finalize flipped IsFinalized")
	}
}

func TestGetHistoryAndSessionInfo(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{responses: []string{recipeResponse}})
	created := env.sessions.Create(session.Profile{FoodType: "한식"})

	msgs, err := env.svc.GetHistory(created.ID)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("fresh history = %+v, want empty", msgs)
	}

	if _, err := env.svc.GetHistory(uuid.New()); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("GetHistory(unknown) error = %v, want ErrNotFound", err)
	}

	info, err := env.svc.GetSessionInfo(created.ID)
	if err != nil {
		t.Fatalf("GetSessionInfo() error = %v", err)
	}
	if info.Profile.FoodType != "한식" || info.IsFinalized {
		t.Errorf("session info = %+v", info)
	}
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{responses: []string{recipeResponse}})
	created := env.sessions.Create(session.Profile{FoodType: "한식"})

	if _, err := env.svc.Chat(context.Background(), created.ID, "레시피"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if _, err := env.svc.Finalize(created.ID, ""); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if !env.svc.DeleteSession(created.ID) {
		t.Fatal("DeleteSession() = false for existing session")
	}
	if _, err := env.sessions.Get(created.ID); !errors.Is(err, session.ErrNotFound) {
		t.Error("session survived delete")
	}
	if _, err := env.finals.Get(created.ID); !errors.Is(err, session.ErrNotFound) {
		t.Error("finalized recipe survived delete")
	}
	if got := env.histories.Get(created.ID).Len(); got != 0 {
		t.Errorf("history survived delete, len = %d", got)
	}

	if env.svc.DeleteSession(created.ID) {
		t.Error("DeleteSession() = true for already-deleted session")
	}
}

func TestConcurrentTurnsSameSessionSerialize(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{
		responses: []string{recipeResponse},
		delay:     10 * time.Millisecond,
	})
	created := env.sessions.Create(session.Profile{FoodType: "한식"})

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.Chat(context.Background(), created.ID, "질문"); err != nil {
				t.Errorf("Chat() error = %v", err)
			}
		}()
	}
	wg.Wait()

	// Serialization keeps every exchange an adjacent user/assistant pair.
	msgs, _ := env.svc.GetHistory(created.ID)
	if len(msgs) != 10 {
		t.Fatalf("history len = %d, want 10", len(msgs))
	}
	for i := 0; i < len(msgs); i += 2 {
		if msgs[i].Role != session.RoleUser || msgs[i+1].Role != session.RoleAssistant {
			t.Fatalf("exchange at %d interleaved: %s, %s", i, msgs[i].Role, msgs[i+1].Role)
		}
	}
}
