package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/knowledge"
)

// RuleLearner stores a rule taught in conversation.
type RuleLearner interface {
	LearnRule(ctx context.Context, text string) (*knowledge.Rule, error)
}

// teachingScript is the exchange used to teach a rule in conversation: the
// trigger phrase is answered with ask, and the next message of the same
// conversation is learned as a rule.
type teachingScript struct {
	trigger   string
	ask       string
	learned   string
	badFormat string
	failed    string
}

var teachingScripts = []*teachingScript{
	{
		trigger:   "quero te ensinar uma regra",
		ask:       "Ótimo! Por favor, me diga a regra. Tente usar um formato como 'Se [condição], então [ação ou conclusão]'.",
		learned:   "Entendido. Regra aprendida: 'Se %s, então %s'.",
		badFormat: "Não consegui entender o formato da regra. Por favor, tente usar 'Se [condição], então [ação]'.",
		failed:    "Não consegui aprender a regra: %v",
	},
	{
		trigger:   "i want to teach you a rule",
		ask:       "Great! Please tell me the rule. Try a format like 'If [condition], then [action or conclusion]'.",
		learned:   "Understood. Rule learned: 'If %s, then %s'.",
		badFormat: "I could not understand the rule. Please try 'If [condition], then [action]'.",
		failed:    "I could not learn the rule: %v",
	},
}

func teachingTrigger(prompt string) *teachingScript {
	lower := strings.ToLower(prompt)
	for _, ts := range teachingScripts {
		if strings.Contains(lower, ts.trigger) {
			return ts
		}
	}
	return nil
}

// teach runs the conversational teaching exchange. It returns the reply and
// true when the prompt was consumed by it. The caller holds the session of
// conversationID.
func (s *Service) teach(ctx context.Context, conversationID, prompt string) (string, *knowledge.Rule, bool) {
	if s.learner == nil || strings.TrimSpace(prompt) == "" {
		return "", nil, false
	}

	s.teachingMu.Lock()
	script, awaiting := s.teaching[conversationID]
	if awaiting {
		delete(s.teaching, conversationID)
	}
	s.teachingMu.Unlock()

	if awaiting {
		rule, err := s.learner.LearnRule(ctx, prompt)
		switch {
		case errors.Is(err, knowledge.ErrRuleFormat):
			return script.badFormat, nil, true
		case err != nil:
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("could not learn rule")
			return fmt.Sprintf(script.failed, err), nil, true
		}
		log.Info().Int64("rule_id", rule.ID).Str("conversation_id", conversationID).Msg("learned rule in conversation")
		return fmt.Sprintf(script.learned, rule.Condition, rule.Action), rule, true
	}

	script = teachingTrigger(prompt)
	if script == nil {
		return "", nil, false
	}
	s.teachingMu.Lock()
	s.teaching[conversationID] = script
	s.teachingMu.Unlock()
	return script.ask, nil, true
}

// AwaitingRule reports whether the next message of conversationID will be
// learned as a rule.
func (s *Service) AwaitingRule(conversationID string) bool {
	s.teachingMu.Lock()
	defer s.teachingMu.Unlock()
	_, ok := s.teaching[conversationID]
	return ok
}

// Remove cancels the run of a deleted conversation and drops its teaching
// state.
func (s *Service) Remove(conversationID string) {
	s.sessions.Remove(conversationID)
	s.teachingMu.Lock()
	delete(s.teaching, conversationID)
	s.teachingMu.Unlock()
}
