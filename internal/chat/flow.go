package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
)

// Input is the request payload for the chat flow.
type Input struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Output is the response payload from the chat flow.
type Output struct {
	Response  string `json:"response"`
	IsRecipe  bool   `json:"is_recipe"`
	SessionID string `json:"session_id"`
}

// StreamChunk is one streamed response fragment.
type StreamChunk struct {
	Text string `json:"text"`
}

// FlowName is the registered name of the chat flow in Genkit.
const FlowName = "cookchat/chat"

// Flow is the Genkit streaming flow type for chat turns.
// Exposed so transport code can call Run or Stream on it.
type Flow = core.Flow[Input, Output, StreamChunk]

// Genkit panics on duplicate flow registration, so the flow is a package
// singleton guarded by sync.Once.
var (
	flowOnce sync.Once
	flow     *Flow
)

// NewFlow returns the chat flow singleton, defining it on first call.
// Subsequent calls return the existing flow; arguments are then ignored.
func NewFlow(g *genkit.Genkit, svc *Service) *Flow {
	flowOnce.Do(func() {
		flow = defineFlow(g, svc)
	})
	return flow
}

// ResetFlowForTesting clears the flow singleton so tests can redefine it
// against a fresh Genkit instance. Not safe for concurrent use.
func ResetFlowForTesting() {
	flowOnce = sync.Once{}
	flow = nil
}

// defineFlow wraps Service.ChatStream in a Genkit streaming flow for tracing
// and DevUI visibility. The flow is a thin adapter: session parsing and chunk
// translation only, with the turn pipeline living in the service.
func defineFlow(g *genkit.Genkit, svc *Service) *Flow {
	return genkit.DefineStreamingFlow(g, FlowName,
		func(ctx context.Context, input Input, streamCb func(context.Context, StreamChunk) error) (Output, error) {
			sessionID, err := uuid.Parse(input.SessionID)
			if err != nil {
				return Output{SessionID: input.SessionID}, fmt.Errorf("parsing session id: %w", err)
			}

			var result *TurnResult
			if streamCb != nil {
				result, err = svc.ChatStream(ctx, sessionID, input.Message,
					func(ctx context.Context, chunk string) error {
						return streamCb(ctx, StreamChunk{Text: chunk})
					})
			} else {
				result, err = svc.Chat(ctx, sessionID, input.Message)
			}
			if err != nil {
				return Output{SessionID: input.SessionID}, err
			}

			return Output{
				Response:  result.Response,
				IsRecipe:  result.IsRecipe,
				SessionID: input.SessionID,
			}, nil
		},
	)
}
