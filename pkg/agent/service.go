package agent

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/conversation"
	"github.com/go-go-golems/jarvis/pkg/helpers"
	"github.com/go-go-golems/jarvis/pkg/inference/session"
	"github.com/go-go-golems/jarvis/pkg/inference/toolloop"
	"github.com/go-go-golems/jarvis/pkg/knowledge"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/types"
	"github.com/go-go-golems/jarvis/pkg/turns"
)

var (
	ErrEmptySubmission = errors.New("submission has neither prompt nor attachment")
	ErrUnknownModel    = errors.New("unknown model choice")
)

// titleLength is the number of runes of the first prompt used as title.
const titleLength = 30

// DefaultTitle names conversations started without a prompt.
const DefaultTitle = "New conversation"

// Submission is one user message.
type Submission struct {
	// ConversationID is empty for a new conversation
	ConversationID string            `json:"conversationId,omitempty"`
	Prompt         string            `json:"prompt"`
	Attachment     *turns.Media      `json:"-"`
	Model          types.ModelChoice `json:"model,omitempty"`
}

type SubmitResult struct {
	ConversationID string `json:"conversationId"`
	Created        bool   `json:"created"`
	// Turns are the user turn followed by every turn the run appended
	Turns []turns.Turn    `json:"turns"`
	Rule  *knowledge.Rule `json:"rule,omitempty"`
	// Learned is the rule taught in this exchange
	Learned *knowledge.Rule   `json:"learned,omitempty"`
	Outcome *toolloop.Outcome `json:"-"`
}

// FinalText is the text of the last non-progress turn.
func (r *SubmitResult) FinalText() string {
	for i := len(r.Turns) - 1; i > 0; i-- {
		if !r.Turns[i].IsProgress() {
			return r.Turns[i].Text()
		}
	}
	return ""
}

// RuleMatcher answers prompts from learned rules.
type RuleMatcher interface {
	Match(ctx context.Context, prompt string) (*knowledge.Rule, bool, error)
}

// TurnLogger records every appended turn, e.g. in the knowledge base history.
type TurnLogger interface {
	LogTurn(ctx context.Context, conversationID string, t turns.Turn) error
}

// Saver persists the conversation list. Completed runs are persisted by the
// runner; the service saves after rule answers and aborted runs.
type Saver interface {
	Save(ctx context.Context) error
}

// EngineForFunc maps a model choice to a model name.
type EngineForFunc func(types.ModelChoice) string

// Service handles submissions: it creates conversations lazily, learns
// rules taught in conversation, answers from rules when one matches, and
// otherwise runs the agent loop in the conversation's session.
type Service struct {
	store     conversation.Store
	sessions  *session.Registry
	engineFor EngineForFunc
	rules     RuleMatcher
	learner   RuleLearner
	logger    TurnLogger
	saver     Saver

	teachingMu sync.Mutex
	teaching   map[string]*teachingScript
}

type Option func(*Service)

func WithRules(r RuleMatcher) Option {
	return func(s *Service) { s.rules = r }
}

func WithRuleLearner(l RuleLearner) Option {
	return func(s *Service) { s.learner = l }
}

func WithTurnLogger(l TurnLogger) Option {
	return func(s *Service) { s.logger = l }
}

func WithSaver(sv Saver) Option {
	return func(s *Service) { s.saver = sv }
}

func WithEngineFor(f EngineForFunc) Option {
	return func(s *Service) { s.engineFor = f }
}

func NewService(store conversation.Store, sessions *session.Registry, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("agent service needs a conversation store")
	}
	if sessions == nil {
		return nil, errors.New("agent service needs a session registry")
	}
	s := &Service{store: store, sessions: sessions, teaching: map[string]*teachingScript{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TitleFor returns the title of a conversation started with prompt.
func TitleFor(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(prompt) <= titleLength {
		return prompt
	}
	return string([]rune(prompt)[:titleLength])
}

func (s *Service) model(choice types.ModelChoice) (string, error) {
	switch choice {
	case "", types.ModelFlash, types.ModelPro:
	default:
		return "", errors.Wrapf(ErrUnknownModel, "%q", choice)
	}
	if s.engineFor == nil {
		return "", nil
	}
	return s.engineFor(choice), nil
}

// SubmitTurn appends the user turn and blocks until the run has appended
// its turns. It returns session.ErrSessionAlreadyActive while another
// submission of the same conversation is in flight. The session is reserved
// before the user turn is appended, so a refused submission leaves no turn
// behind.
func (s *Service) SubmitTurn(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if strings.TrimSpace(sub.Prompt) == "" && sub.Attachment == nil {
		return nil, ErrEmptySubmission
	}
	model, err := s.model(sub.Model)
	if err != nil {
		return nil, err
	}

	userTurn := turns.NewUserTurn(sub.Prompt, sub.Attachment)
	ret := &SubmitResult{ConversationID: sub.ConversationID}

	var (
		history     []turns.Turn
		reservation *session.Reservation
	)
	if sub.ConversationID == "" {
		id, err := s.store.Create(TitleFor(sub.Prompt), &userTurn)
		if err != nil {
			return nil, err
		}
		ret.ConversationID = id
		ret.Created = true
		reservation, err = s.sessions.Get(id).Reserve()
		if err != nil {
			return nil, err
		}
	} else {
		if _, err := s.store.Get(sub.ConversationID); err != nil {
			return nil, err
		}
		reservation, err = s.sessions.Get(sub.ConversationID).Reserve()
		if err != nil {
			return nil, err
		}
		history, err = s.store.ListTurns(sub.ConversationID)
		if err == nil {
			err = s.store.Append(sub.ConversationID, userTurn)
		}
		if err != nil {
			reservation.Release()
			return nil, err
		}
	}
	defer reservation.Release()

	ret.Turns = append(ret.Turns, userTurn)
	s.logTurn(ctx, ret.ConversationID, userTurn)

	emit := func(ctx context.Context, t turns.Turn) error {
		if err := s.store.Append(ret.ConversationID, t); err != nil {
			return err
		}
		ret.Turns = append(ret.Turns, t)
		s.logTurn(ctx, ret.ConversationID, t)
		return nil
	}

	if reply, learned, ok := s.teach(ctx, ret.ConversationID, sub.Prompt); ok {
		ret.Learned = learned
		if err := emit(ctx, turns.NewModelTextTurn(reply)); err != nil {
			return ret, err
		}
		s.save(ctx)
		return ret, nil
	}

	if s.rules != nil && sub.Prompt != "" {
		rule, ok, err := s.rules.Match(ctx, sub.Prompt)
		if err != nil {
			log.Warn().Err(err).Msg("rule matching failed, running the agent loop")
		} else if ok {
			log.Info().Int64("rule_id", rule.ID).Str("conversation_id", ret.ConversationID).Msg("answering from rule")
			ret.Rule = rule
			if err := emit(ctx, turns.NewModelTextTurn(rule.Action)); err != nil {
				return ret, err
			}
			s.save(ctx)
			return ret, nil
		}
	}

	run := toolloop.Run{
		ConversationID: ret.ConversationID,
		RunID:          helpers.NewRunID(),
		History:        history,
		UserTurn:       userTurn,
		Attachment:     sub.Attachment,
		Model:          model,
	}

	handle, err := reservation.StartInference(ctx, run, emit)
	if err != nil {
		return ret, err
	}
	out, err := handle.Wait()
	ret.Outcome = out
	if err != nil {
		s.save(ctx)
		return ret, err
	}
	return ret, nil
}

func (s *Service) logTurn(ctx context.Context, conversationID string, t turns.Turn) {
	if s.logger == nil || t.IsProgress() {
		return
	}
	if err := s.logger.LogTurn(ctx, conversationID, t); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("could not log turn")
	}
}

func (s *Service) save(ctx context.Context) {
	if s.saver == nil {
		return
	}
	if err := s.saver.Save(ctx); err != nil {
		log.Warn().Err(err).Msg("could not persist conversations")
	}
}
