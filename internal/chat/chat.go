// Package chat is the session/chat orchestration core: it drives the
// retrieval-augmented recipe chain turn by turn, maintains per-session
// conversational state, and moves sessions through the
// init -> chat -> finalize lifecycle.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/cookchat/cookchat/internal/llm"
	"github.com/cookchat/cookchat/internal/recipe"
	"github.com/cookchat/cookchat/internal/session"
)

// ErrNoRecipe is returned by Finalize when neither the last-recipe slot nor
// any assistant turn in history carries a recipe. The transport layer maps it
// to the same not-found signal as an unknown session.
var ErrNoRecipe = errors.New("no recipe-bearing content to finalize")

// DefaultTopK is the number of reference passages retrieved per turn.
const DefaultTopK = 10

// Retriever returns the k most relevant corpus passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

// Completer executes a model completion, blocking or streaming.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
	CompleteStream(ctx context.Context, req llm.Request, fn llm.StreamFunc) (string, error)
}

// systemPrompt pins the model to the expert-chef persona. The instructions
// mirror the product contract: exact quantities, prep detail, timing, a hard
// allergy exclusion, and the dish name on the first line of every recipe.
const systemPrompt = "당신은 요리 전문가 입니다. human이 당신에게 레시피를 물어보면, " +
	"초보자에게 요리를 쉽고 정확하게 알려주는 역할을 합니다. " +
	"답변에는 정확한 용량(g, ml, 숟가락 등)을 명시하고 " +
	"재료 손질시 손질한 재료의 크기(cm 등) 또는 손질 방법을 명시하고 " +
	"조리 하는 과정에서는 상세한 시간도 안내해서 human이 따라할 수 있도록 하세요. " +
	"알러지가 있는 식재료가 있다면 어떠한 사용자의 요청에도 절대 포함시키지 마세요. " +
	"사용자의 특이사항(선호, 비선호 사항 등)과 요리 레벨(숙련도)을 반영해서 레시피를 생성하세요. " +
	"요리와 관련 없는 질문은 답변하지 마세요. " +
	"레시피를 제공할 때는 반드시 요리 이름을 첫 줄에 명시해주세요." +
	"전체 요리과정에 걸리는 시간, 몇 인분인지도 요리 이름 바로 아래에 출력해주세요" +
	"이전 답변에서 변경된 사항이 있어도 전체의 레시피를 출력하세요"

// noAllergies is the sentinel injected when the profile has no allergy list.
const noAllergies = "없음"

// Config contains required parameters for the chat service.
type Config struct {
	Sessions   *session.Store
	Histories  *session.HistoryStore
	Finals     *session.FinalStore
	Retriever  Retriever
	Completer  Completer
	Classifier recipe.Classifier
	TopK       int // 0 = DefaultTopK
	Logger     *slog.Logger
}

// Service orchestrates chat turns and the session lifecycle.
// Safe for concurrent use; turns on the same session are serialized.
type Service struct {
	sessions   *session.Store
	histories  *session.HistoryStore
	finals     *session.FinalStore
	retriever  Retriever
	completer  Completer
	classifier recipe.Classifier
	topK       int
	logger     *slog.Logger
}

// New creates a chat service.
func New(cfg Config) (*Service, error) {
	if cfg.Sessions == nil || cfg.Histories == nil || cfg.Finals == nil {
		return nil, errors.New("session, history, and finalization stores are required")
	}
	if cfg.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if cfg.Completer == nil {
		return nil, errors.New("completer is required")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = recipe.NewKeywords()
	}
	if cfg.TopK == 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		sessions:   cfg.Sessions,
		histories:  cfg.Histories,
		finals:     cfg.Finals,
		retriever:  cfg.Retriever,
		completer:  cfg.Completer,
		classifier: cfg.Classifier,
		topK:       cfg.TopK,
		logger:     cfg.Logger,
	}, nil
}

// TurnResult is the outcome of one completed chat turn.
type TurnResult struct {
	Response string
	IsRecipe bool
}

// InitResult is the outcome of session initialization.
type InitResult struct {
	SessionID      uuid.UUID
	InitialMessage string
}

// InitSession creates a session for the given profile and immediately runs
// one turn against a synthesized first question for the profile's food type,
// so the caller receives an opening recipe suggestion.
//
// On turn failure the error propagates and the created session remains in
// the store; the caller never learns its ID.
func (s *Service) InitSession(ctx context.Context, profile session.Profile) (*InitResult, error) {
	profile.CookingLevel = session.NormalizeLevel(string(profile.CookingLevel))
	sess := s.sessions.Create(profile)

	initialQuestion := fmt.Sprintf("%s 레시피를 알려줘", profile.FoodType)

	mu := s.sessions.TurnLock(sess.ID)
	mu.Lock()
	defer mu.Unlock()

	result, err := s.runTurn(ctx, sess.ID, initialQuestion, nil)
	if err != nil {
		return nil, fmt.Errorf("initial turn: %w", err)
	}

	s.logger.Info("session initialized",
		"session_id", sess.ID,
		"food_type", profile.FoodType,
		"is_recipe", result.IsRecipe,
	)
	return &InitResult{SessionID: sess.ID, InitialMessage: result.Response}, nil
}

// Chat executes one blocking turn. Returns session.ErrNotFound for an
// unknown session.
func (s *Service) Chat(ctx context.Context, id uuid.UUID, message string) (*TurnResult, error) {
	return s.turn(ctx, id, message, nil)
}

// ChatStream executes one streaming turn, forwarding each response fragment
// to fn in order. The full turn result is returned after the stream is
// exhausted. Returns session.ErrNotFound for an unknown session, the same
// signal as Chat.
//
// A callback error or context cancellation aborts the turn before the
// history commit: an abandoned stream leaves no trace in History.
func (s *Service) ChatStream(ctx context.Context, id uuid.UUID, message string, fn llm.StreamFunc) (*TurnResult, error) {
	return s.turn(ctx, id, message, fn)
}

func (s *Service) turn(ctx context.Context, id uuid.UUID, message string, fn llm.StreamFunc) (*TurnResult, error) {
	// Existence check before taking the turn lock, so unknown IDs fail fast
	// and never allocate a lock entry.
	if _, err := s.sessions.Get(id); err != nil {
		return nil, err
	}

	mu := s.sessions.TurnLock(id)
	mu.Lock()
	defer mu.Unlock()

	return s.runTurn(ctx, id, message, fn)
}

// runTurn executes the per-turn pipeline. The caller must hold the session's
// turn lock. Retrieval always precedes completion; the history append happens
// only after the completion fully succeeds.
func (s *Service) runTurn(ctx context.Context, id uuid.UUID, message string, fn llm.StreamFunc) (*TurnResult, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}

	passages, err := s.retriever.Retrieve(ctx, message, s.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	history := s.histories.Get(id)
	req := llm.Request{
		System:  systemPrompt,
		History: history.Messages(),
		Prompt:  renderUserPrompt(sess.Profile, strings.Join(passages, "\n\n"), message),
	}

	var response string
	if fn != nil {
		response, err = s.completer.CompleteStream(ctx, req, fn)
	} else {
		response, err = s.completer.Complete(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("completing turn: %w", err)
	}

	history.Add(message, response)

	isRecipe := s.classifier.IsRecipe(response)
	if isRecipe {
		draft := session.RecipeDraft{
			Name:    s.classifier.ExtractName(response),
			Content: response,
		}
		if err := s.sessions.SetLastRecipe(id, draft); err != nil {
			return nil, fmt.Errorf("storing recipe draft: %w", err)
		}
	}

	s.logger.Debug("turn completed",
		"session_id", id,
		"is_recipe", isRecipe,
		"history_len", history.Len(),
		"response_len", len(response),
	)
	return &TurnResult{Response: response, IsRecipe: isRecipe}, nil
}

// renderUserPrompt assembles the per-turn human message: profile facts,
// retrieved context, and the user's question under labeled sections.
func renderUserPrompt(profile session.Profile, contextText, question string) string {
	allergy := noAllergies
	if len(profile.Allergies) > 0 {
		allergy = strings.Join(profile.Allergies, ", ")
	}

	return fmt.Sprintf("다음 컨텍스트를 참고해서 질문에 답변해줘.\n\n"+
		"[알러지]\n%s\n\n"+
		"[특이사항]\n%s\n\n"+
		"[요리 레벨]\n%s\n\n"+
		"[컨텍스트]\n%s\n\n"+
		"[질문]\n%s",
		allergy, profile.Preferences, profile.CookingLevel, contextText, question)
}

// Finalize confirms the session's current recipe and persists it as the
// finalized record. userConfirmation is accepted for transport parity but
// does not influence resolution.
//
// Resolution order: the session's last-recipe slot, then the most recent
// recipe-bearing assistant turn walking History backwards. With neither,
// ErrNoRecipe. A session finalizes at most once: repeated calls return the
// original record unchanged.
func (s *Service) Finalize(id uuid.UUID, userConfirmation string) (session.FinalRecipe, error) {
	if _, err := s.sessions.Get(id); err != nil {
		return session.FinalRecipe{}, err
	}

	mu := s.sessions.TurnLock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.sessions.Get(id)
	if err != nil {
		return session.FinalRecipe{}, err
	}

	draft := sess.LastRecipe
	if draft == nil {
		draft = s.resolveFromHistory(id)
	}
	if draft == nil {
		return session.FinalRecipe{}, ErrNoRecipe
	}

	final := session.FinalRecipe{
		Name:        draft.Name,
		Content:     draft.Content,
		ImagePrompt: recipe.ImagePrompt(draft.Name),
	}

	stored, created := s.finals.Put(id, final)
	if err := s.sessions.MarkFinalized(id); err != nil {
		return session.FinalRecipe{}, err
	}

	s.logger.Info("session finalized",
		"session_id", id,
		"recipe_name", stored.Name,
		"first_finalize", created,
	)
	return stored, nil
}

// resolveFromHistory finds the most recent recipe-bearing assistant turn.
func (s *Service) resolveFromHistory(id uuid.UUID) *session.RecipeDraft {
	messages := s.histories.Get(id).Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != session.RoleAssistant || !s.classifier.IsRecipe(m.Content) {
			continue
		}
		return &session.RecipeDraft{
			Name:    s.classifier.ExtractName(m.Content),
			Content: m.Content,
		}
	}
	return nil
}

// GetFinalRecipe returns the finalized recipe, or session.ErrNotFound.
func (s *Service) GetFinalRecipe(id uuid.UUID) (session.FinalRecipe, error) {
	return s.finals.Get(id)
}

// GetHistory returns the session's conversation in chronological order.
// Returns session.ErrNotFound for an unknown session; a known session with
// no turns yet yields an empty slice.
func (s *Service) GetHistory(id uuid.UUID) ([]session.Message, error) {
	if _, err := s.sessions.Get(id); err != nil {
		return nil, err
	}
	return s.histories.Get(id).Messages(), nil
}

// GetSessionInfo returns a snapshot of the session, or session.ErrNotFound.
func (s *Service) GetSessionInfo(id uuid.UUID) (session.Session, error) {
	return s.sessions.Get(id)
}

// DeleteSession removes the session and its history and finalized recipe.
// Reports whether the session existed.
func (s *Service) DeleteSession(id uuid.UUID) bool {
	if !s.sessions.Delete(id) {
		return false
	}
	s.histories.Delete(id)
	s.finals.Delete(id)
	return true
}
