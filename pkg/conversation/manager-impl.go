package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/turns"
)

// subscriberBuffer bounds the changes queued for a slow subscriber. Changes
// beyond it are dropped for that subscriber only.
const subscriberBuffer = 64

// Manager is the in-memory Store. All methods are safe for concurrent use;
// appends to one conversation are applied in call order.
type Manager struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	subscribers   map[string]map[chan Change]struct{}
	now           func() time.Time
}

var _ Store = (*Manager)(nil)

type ManagerOption func(*Manager)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		conversations: map[string]*Conversation{},
		subscribers:   map[string]map[chan Change]struct{}{},
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create registers a new conversation, optionally with its first turn, and
// returns its id.
func (m *Manager) Create(title string, firstTurn *turns.Turn) (string, error) {
	if firstTurn != nil {
		if err := firstTurn.Validate(); err != nil {
			return "", errors.Wrap(err, "invalid first turn")
		}
	}
	now := m.now()
	c := &Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if firstTurn != nil {
		c.Turns = append(c.Turns, firstTurn.Clone())
		c.Version++
	}

	m.mu.Lock()
	m.conversations[c.ID] = c
	m.mu.Unlock()

	log.Debug().Str("conversation_id", c.ID).Str("title", title).Msg("conversation created")
	return c.ID, nil
}

// Append adds t at the end of the conversation.
func (m *Manager) Append(id string, t turns.Turn) error {
	if len(t.Parts) == 0 {
		return ErrEmptyTurn
	}
	if err := t.Validate(); err != nil {
		return err
	}
	t = t.Clone()

	m.mu.Lock()
	c, ok := m.conversations[id]
	if !ok {
		m.mu.Unlock()
		return errors.Wrapf(ErrUnknownConversation, "append to %s", id)
	}
	c.Turns = append(c.Turns, t)
	c.UpdatedAt = m.now()
	c.Version++
	m.notifyLocked(Change{Kind: ChangeAppended, ConversationID: id, Turn: &t})
	m.mu.Unlock()
	return nil
}

// ListTurns returns a copy of the turns of the conversation.
func (m *Manager) ListTurns(id string) ([]turns.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownConversation, "list turns of %s", id)
	}
	return turns.CloneTurns(c.Turns), nil
}

func (m *Manager) Get(id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownConversation, "get %s", id)
	}
	return c.Clone(), nil
}

// List returns the conversations, most recently updated first.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	ret := make([]Summary, 0, len(m.conversations))
	for _, c := range m.conversations {
		ret = append(ret, c.summary())
	}
	m.mu.RUnlock()

	sort.SliceStable(ret, func(i, j int) bool {
		if ret[i].UpdatedAt.Equal(ret[j].UpdatedAt) {
			return ret[i].ID < ret[j].ID
		}
		return ret[i].UpdatedAt.After(ret[j].UpdatedAt)
	})
	return ret
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[id]; !ok {
		return errors.Wrapf(ErrUnknownConversation, "delete %s", id)
	}
	delete(m.conversations, id)
	m.notifyLocked(Change{Kind: ChangeDeleted, ConversationID: id})
	for ch := range m.subscribers[id] {
		close(ch)
	}
	delete(m.subscribers, id)
	return nil
}

func (m *Manager) Rename(id string, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return errors.Wrapf(ErrUnknownConversation, "rename %s", id)
	}
	c.Title = title
	c.UpdatedAt = m.now()
	c.Version++
	m.notifyLocked(Change{Kind: ChangeRenamed, ConversationID: id, Title: title})
	return nil
}

// Subscribe delivers the changes of conversation id until ctx is done or the
// conversation is deleted, then closes the channel.
func (m *Manager) Subscribe(ctx context.Context, id string) <-chan Change {
	ch := make(chan Change, subscriberBuffer)

	m.mu.Lock()
	if _, ok := m.conversations[id]; !ok {
		m.mu.Unlock()
		close(ch)
		return ch
	}
	subs, ok := m.subscribers[id]
	if !ok {
		subs = map[chan Change]struct{}{}
		m.subscribers[id] = subs
	}
	subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if subs, ok := m.subscribers[id]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
		}
	}()
	return ch
}

func (m *Manager) notifyLocked(c Change) {
	for ch := range m.subscribers[c.ConversationID] {
		select {
		case ch <- c:
		default:
			log.Warn().Str("conversation_id", c.ConversationID).Str("kind", string(c.Kind)).Msg("subscriber is full, dropping change")
		}
	}
}

// Snapshot returns deep copies of all conversations, most recent first.
func (m *Manager) Snapshot() []Conversation {
	summaries := m.List()
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]Conversation, 0, len(summaries))
	for _, s := range summaries {
		if c, ok := m.conversations[s.ID]; ok {
			ret = append(ret, *c.Clone())
		}
	}
	return ret
}

// Restore replaces the conversations with cs. Conversations without an id
// get one; turns that do not validate are dropped.
func (m *Manager) Restore(cs []Conversation) {
	restored := make(map[string]*Conversation, len(cs))
	for i := range cs {
		c := cs[i].Clone()
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		valid := c.Turns[:0]
		for _, t := range c.Turns {
			if err := t.Validate(); err != nil {
				log.Warn().Err(err).Str("conversation_id", c.ID).Msg("dropping invalid persisted turn")
				continue
			}
			valid = append(valid, t)
		}
		c.Turns = valid
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = c.CreatedAt
		}
		restored[c.ID] = c
	}

	m.mu.Lock()
	m.conversations = restored
	m.mu.Unlock()
}
