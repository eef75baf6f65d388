package knowledge

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Match returns the action of the first active rule whose condition, a
// case-insensitive regular expression, matches prompt. Rules whose condition
// does not compile are skipped.
func (b *Base) Match(ctx context.Context, prompt string) (*Rule, bool, error) {
	rules, err := b.Rules(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range rules {
		re, err := regexp.Compile("(?i)" + rules[i].Condition)
		if err != nil {
			log.Warn().Err(err).Int64("rule_id", rules[i].ID).Msg("skipping rule with invalid condition")
			continue
		}
		if re.MatchString(prompt) {
			log.Debug().Int64("rule_id", rules[i].ID).Msg("rule matched")
			return &rules[i], true, nil
		}
	}
	return nil, false, nil
}

var (
	ruleWithComma    = regexp.MustCompile(`(?is)\b(?:if|se)\s+(.+),\s+(?:then|então)\s+(.+)`)
	ruleWithoutComma = regexp.MustCompile(`(?is)\b(?:if|se)\s+(.+)\s+(?:then|então)\s+(.+)`)
)

// ErrRuleFormat is returned when a taught rule is not of the form
// "If X, then Y".
var ErrRuleFormat = errors.New("could not understand the rule, use 'If [condition], then [action]'")

var (
	ErrInvalidCondition = errors.New("rule condition is not a valid pattern")
	ErrEmptyFact        = errors.New("empty fact")
)

// ParseRule extracts condition and action from "If X, then Y" or
// "Se X, então Y". The comma is optional.
func ParseRule(text string) (condition, action string, err error) {
	m := ruleWithComma.FindStringSubmatch(text)
	if m == nil {
		m = ruleWithoutComma.FindStringSubmatch(text)
	}
	if m == nil {
		return "", "", ErrRuleFormat
	}
	condition = strings.TrimSpace(m[1])
	action = strings.TrimSpace(m[2])
	if condition == "" || action == "" {
		return "", "", ErrRuleFormat
	}
	return condition, action, nil
}

// LearnRule parses and stores a taught rule with priority 0.
func (b *Base) LearnRule(ctx context.Context, text string) (*Rule, error) {
	condition, action, err := ParseRule(text)
	if err != nil {
		log.Warn().Str("text", text).Msg("rule with invalid format")
		return nil, err
	}
	if _, err := regexp.Compile("(?i)" + condition); err != nil {
		return nil, errors.Wrapf(ErrInvalidCondition, "%s", err)
	}
	return b.AddRule(ctx, condition, action, 0)
}

// LearnFact stores the whole statement under the general concept.
func (b *Base) LearnFact(ctx context.Context, text string) (*Fact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyFact
	}
	return b.AddFact(ctx, Fact{
		Fact:         text,
		Concept:      GeneralConcept,
		Relationship: "user statement",
		Source:       "user_teaching",
	})
}
