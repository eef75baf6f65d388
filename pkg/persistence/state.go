package persistence

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/conversation"
	"github.com/go-go-golems/jarvis/pkg/inference/toolloop"
)

const (
	ConversationsKey = "gemini-conversations"
	ThemeKey         = "gemini-theme"
)

type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"

	DefaultTheme = ThemeDark
)

var ErrInvalidTheme = errors.New("invalid theme")

func (t Theme) Valid() bool {
	return t == ThemeDark || t == ThemeLight
}

// State reads and writes the persisted conversation list and theme. Absent
// or corrupt values fall back to defaults and are logged, never returned as
// errors.
type State struct {
	kv KV
}

func NewState(kv KV) *State {
	return &State{kv: kv}
}

func (s *State) LoadConversations(ctx context.Context) []conversation.Conversation {
	raw, ok, err := s.kv.Get(ctx, ConversationsKey)
	if err != nil {
		log.Warn().Err(err).Str("key", ConversationsKey).Msg("could not read persisted conversations")
		return nil
	}
	if !ok || raw == "" {
		return nil
	}
	var cs []conversation.Conversation
	if err := json.Unmarshal([]byte(raw), &cs); err != nil {
		log.Warn().Err(err).Str("key", ConversationsKey).Msg("persisted conversations are corrupt, starting empty")
		return nil
	}
	return cs
}

func (s *State) SaveConversations(ctx context.Context, cs []conversation.Conversation) error {
	if cs == nil {
		cs = []conversation.Conversation{}
	}
	b, err := json.Marshal(cs)
	if err != nil {
		return errors.Wrap(err, "marshal conversations")
	}
	return s.kv.Set(ctx, ConversationsKey, string(b))
}

func (s *State) LoadTheme(ctx context.Context) Theme {
	raw, ok, err := s.kv.Get(ctx, ThemeKey)
	if err != nil {
		log.Warn().Err(err).Str("key", ThemeKey).Msg("could not read persisted theme")
		return DefaultTheme
	}
	if !ok {
		return DefaultTheme
	}
	var theme Theme
	if err := json.Unmarshal([]byte(raw), &theme); err != nil || !theme.Valid() {
		log.Warn().Str("key", ThemeKey).Str("value", raw).Msg("persisted theme is invalid, using default")
		return DefaultTheme
	}
	return theme
}

func (s *State) SaveTheme(ctx context.Context, theme Theme) error {
	if !theme.Valid() {
		return errors.Wrapf(ErrInvalidTheme, "%q", theme)
	}
	b, err := json.Marshal(theme)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, ThemeKey, string(b))
}

// SyncConversations saves the manager snapshot whenever a run finishes. It
// is used as the outcome persister of the agent loop.
type SyncConversations struct {
	State   *State
	Manager *conversation.Manager

	// mu is held from snapshot to write so that an older snapshot never
	// overwrites a newer one
	mu sync.Mutex
}

func (s *SyncConversations) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State.SaveConversations(ctx, s.Manager.Snapshot())
}

// PersistOutcome saves the conversations after a completed agent loop run.
func (s *SyncConversations) PersistOutcome(ctx context.Context, _ string, _ *toolloop.Outcome) error {
	return s.Save(ctx)
}
