package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested session does not exist in the store.
var ErrNotFound = errors.New("session not found")

// Message role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Level is the user's self-reported cooking skill.
type Level string

// Cooking levels accepted at session creation.
const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// NormalizeLevel maps free-form input to a known Level.
// Unknown or empty input defaults to beginner.
func NormalizeLevel(s string) Level {
	switch Level(s) {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return Level(s)
	default:
		return LevelBeginner
	}
}

// Profile is the immutable per-session user profile captured at creation.
type Profile struct {
	Allergies    []string
	Preferences  string
	CookingLevel Level
	FoodType     string
}

// RecipeDraft is the most recent recipe-bearing assistant response.
// Overwritten, never accumulated, by each subsequent recipe-bearing turn.
type RecipeDraft struct {
	Name    string
	Content string
}

// Session represents one recipe conversation.
type Session struct {
	ID          uuid.UUID
	Profile     Profile
	IsFinalized bool
	LastRecipe  *RecipeDraft
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Message is a single conversation turn entry.
type Message struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}

// FinalRecipe is the confirmed recipe frozen by finalize.
type FinalRecipe struct {
	Name        string `json:"recipe_name"`
	Content     string `json:"recipe_content"`
	ImagePrompt string `json:"image_prompt"`
}
