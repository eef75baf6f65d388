package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/turns"
)

const sqliteKnowledgeSchemaV1 = `
CREATE TABLE IF NOT EXISTS knowledge_base (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    fact TEXT NOT NULL,
    concept TEXT NOT NULL,
    relationship TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT 'user',
    confidence REAL NOT NULL DEFAULT 1.0,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS knowledge_base_concept ON knowledge_base(concept);

CREATE TABLE IF NOT EXISTS rule_set (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    rule_condition TEXT NOT NULL,
    rule_action TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS conversation_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    role TEXT NOT NULL,
    parts TEXT NOT NULL,
    created_at_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS conversation_history_conversation ON conversation_history(conversation_id, id);
`

// DefaultHistoryLimit is the number of turns History returns by default.
const DefaultHistoryLimit = 20

// GeneralConcept is the concept taught facts are stored under.
const GeneralConcept = "general"

type Rule struct {
	ID        int64  `json:"id" yaml:"id"`
	Condition string `json:"condition" yaml:"condition"`
	Action    string `json:"action" yaml:"action"`
	Priority  int    `json:"priority" yaml:"priority"`
	Active    bool   `json:"active" yaml:"active"`
}

type Fact struct {
	ID           int64          `json:"id" yaml:"id"`
	Fact         string         `json:"fact" yaml:"fact"`
	Concept      string         `json:"concept" yaml:"concept"`
	Relationship string         `json:"relationship" yaml:"relationship"`
	Source       string         `json:"source" yaml:"source"`
	Confidence   float64        `json:"confidence" yaml:"confidence"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt" yaml:"created_at"`
}

// HistoryEntry is one logged turn.
type HistoryEntry struct {
	Role  turns.Role   `json:"role"`
	Parts []turns.Part `json:"parts"`
}

// Base is the rule set, the fact base and the conversation history log.
type Base struct {
	db *sql.DB
}

func NewBase(db *sql.DB) (*Base, error) {
	if db == nil {
		return nil, errors.New("knowledge base: db is nil")
	}
	if _, err := db.Exec(sqliteKnowledgeSchemaV1); err != nil {
		return nil, errors.Wrap(err, "knowledge base: migrate")
	}
	return &Base{db: db}, nil
}

func (b *Base) AddRule(ctx context.Context, condition, action string, priority int) (*Rule, error) {
	if condition == "" || action == "" {
		return nil, errors.New("rule needs a condition and an action")
	}
	res, err := b.db.ExecContext(ctx,
		`INSERT INTO rule_set(rule_condition, rule_action, priority, is_active) VALUES(?, ?, ?, 1)`,
		condition, action, priority)
	if err != nil {
		return nil, errors.Wrap(err, "add rule")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "add rule")
	}
	log.Info().Int64("rule_id", id).Str("condition", condition).Str("action", action).Msg("rule added")
	return &Rule{ID: id, Condition: condition, Action: action, Priority: priority, Active: true}, nil
}

// Rules returns the active rules, highest priority first. Rules with equal
// priority keep insertion order.
func (b *Base) Rules(ctx context.Context) ([]Rule, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, rule_condition, rule_action, priority, is_active FROM rule_set WHERE is_active = 1 ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "list rules")
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.Condition, &r.Action, &r.Priority, &r.Active); err != nil {
			return nil, errors.Wrap(err, "scan rule")
		}
		ret = append(ret, r)
	}
	return ret, rows.Err()
}

func (b *Base) SetRuleActive(ctx context.Context, id int64, active bool) error {
	res, err := b.db.ExecContext(ctx, `UPDATE rule_set SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return errors.Wrapf(err, "update rule %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Errorf("unknown rule %d", id)
	}
	return nil
}

func (b *Base) AddFact(ctx context.Context, f Fact) (*Fact, error) {
	if f.Fact == "" {
		return nil, errors.New("empty fact")
	}
	if f.Concept == "" {
		f.Concept = GeneralConcept
	}
	if f.Source == "" {
		f.Source = "user"
	}
	if f.Confidence == 0 {
		f.Confidence = 1.0
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	metadata := "{}"
	if len(f.Metadata) > 0 {
		raw, err := json.Marshal(f.Metadata)
		if err != nil {
			return nil, errors.Wrap(err, "marshal fact metadata")
		}
		metadata = string(raw)
	}
	res, err := b.db.ExecContext(ctx, `
INSERT INTO knowledge_base(fact, concept, relationship, source, confidence, metadata, created_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?)`,
		f.Fact, f.Concept, f.Relationship, f.Source, f.Confidence, metadata, f.CreatedAt.UnixMilli())
	if err != nil {
		return nil, errors.Wrap(err, "add fact")
	}
	if f.ID, err = res.LastInsertId(); err != nil {
		return nil, errors.Wrap(err, "add fact")
	}
	log.Info().Int64("fact_id", f.ID).Str("concept", f.Concept).Msg("fact added")
	return &f, nil
}

func (b *Base) FactsByConcept(ctx context.Context, concept string) ([]Fact, error) {
	rows, err := b.db.QueryContext(ctx, `
SELECT id, fact, concept, relationship, source, confidence, metadata, created_at_ms
FROM knowledge_base WHERE concept = ? ORDER BY id ASC`, concept)
	if err != nil {
		return nil, errors.Wrap(err, "list facts")
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []Fact
	for rows.Next() {
		var (
			f         Fact
			metadata  string
			createdAt int64
		)
		if err := rows.Scan(&f.ID, &f.Fact, &f.Concept, &f.Relationship, &f.Source, &f.Confidence, &metadata, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan fact")
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &f.Metadata); err != nil {
				log.Warn().Err(err).Int64("fact_id", f.ID).Msg("fact metadata is corrupt")
			}
		}
		f.CreatedAt = time.UnixMilli(createdAt).UTC()
		ret = append(ret, f)
	}
	return ret, rows.Err()
}

// LogTurn appends a turn to the conversation history log.
func (b *Base) LogTurn(ctx context.Context, conversationID string, t turns.Turn) error {
	parts, err := json.Marshal(t.Parts)
	if err != nil {
		return errors.Wrap(err, "marshal parts")
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO conversation_history(conversation_id, role, parts, created_at_ms) VALUES(?, ?, ?, ?)`,
		conversationID, string(t.Role), string(parts), time.Now().UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "log turn of %s", conversationID)
	}
	return nil
}

// History returns the last limit logged turns of a conversation in
// chronological order. A limit <= 0 uses DefaultHistoryLimit.
func (b *Base) History(ctx context.Context, conversationID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := b.db.QueryContext(ctx, `
SELECT role, parts FROM conversation_history
WHERE conversation_id = ? ORDER BY id DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "read history")
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []HistoryEntry
	for rows.Next() {
		var role, parts string
		if err := rows.Scan(&role, &parts); err != nil {
			return nil, errors.Wrap(err, "scan history")
		}
		e := HistoryEntry{Role: turns.Role(role)}
		if err := json.Unmarshal([]byte(parts), &e.Parts); err != nil {
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("skipping corrupt history entry")
			continue
		}
		ret = append(ret, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(ret)-1; i < j; i, j = i+1, j-1 {
		ret[i], ret[j] = ret[j], ret[i]
	}
	return ret, nil
}
