package cmds

import (
	"testing"
	"time"

	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/jarvis/pkg/capabilities"
	"github.com/go-go-golems/jarvis/pkg/conversation"
	"github.com/go-go-golems/jarvis/pkg/knowledge"
)

func cell(t *testing.T, row types.Row, field string) any {
	t.Helper()
	v, ok := row.Get(field)
	require.True(t, ok, "missing field %s", field)
	return v
}

func TestCatalogRows(t *testing.T) {
	rows := catalogRows(capabilities.DefaultCatalog().Descriptors())
	require.Len(t, rows, 10)
	assert.Equal(t, "generateText", cell(t, rows[0], "name"))
	assert.Equal(t, false, cell(t, rows[0], "requires_attachment"))

	var editImage types.Row
	for _, r := range rows {
		if cell(t, r, "name") == "editImage" {
			editImage = r
		}
	}
	require.NotNil(t, editImage)
	assert.Equal(t, true, cell(t, editImage, "requires_attachment"))
	assert.Equal(t, "🤖 Editing the image...", cell(t, editImage, "progress_message"))
}

func TestConversationRows(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := conversationRows([]conversation.Summary{{ID: "c1", Title: "hello", Turns: 4, UpdatedAt: at}})
	require.Len(t, rows, 1)
	assert.Equal(t, "c1", cell(t, rows[0], "id"))
	assert.Equal(t, "hello", cell(t, rows[0], "title"))
	assert.Equal(t, 4, cell(t, rows[0], "turns"))
	assert.Equal(t, at, cell(t, rows[0], "updated_at"))
}

func TestRuleRowsActiveOnly(t *testing.T) {
	rules := []knowledge.Rule{
		{ID: 1, Condition: "hello", Action: "Hi", Priority: 2, Active: true},
		{ID: 2, Condition: "bye", Action: "Bye", Active: false},
	}
	assert.Len(t, ruleRows(rules, false), 2)

	rows := ruleRows(rules, true)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), cell(t, rows[0], "id"))
	assert.Equal(t, "hello", cell(t, rows[0], "condition"))
	assert.Equal(t, 2, cell(t, rows[0], "priority"))
}

func TestFactRows(t *testing.T) {
	rows := factRows([]knowledge.Fact{{ID: 7, Fact: "Paris is in France", Concept: knowledge.GeneralConcept, Confidence: 1}})
	require.Len(t, rows, 1)
	assert.Equal(t, "Paris is in France", cell(t, rows[0], "fact"))
	assert.Equal(t, knowledge.GeneralConcept, cell(t, rows[0], "concept"))
}

func TestGlazeCommandsBuild(t *testing.T) {
	for _, name := range []string{"catalog", "list", "rules", "facts"} {
		cmd := buildGlazeCommandByName(t, name)
		assert.Equal(t, name, cmd.Name())
		assert.NotNil(t, cmd.Flags().Lookup("output"), "%s has glazed output flags", name)
	}
	rules := buildGlazeCommandByName(t, "rules")
	assert.NotNil(t, rules.Flags().Lookup("active-only"))
	facts := buildGlazeCommandByName(t, "facts")
	f := facts.Flags().Lookup("concept")
	require.NotNil(t, f)
	assert.Equal(t, knowledge.GeneralConcept, f.DefValue)
}

func buildGlazeCommandByName(t *testing.T, name string) *cobra.Command {
	t.Helper()
	switch name {
	case "catalog":
		return buildGlazeCommand(NewCatalogCommand())
	case "list":
		return buildGlazeCommand(NewListConversationsCommand())
	case "rules":
		return buildGlazeCommand(NewListRulesCommand())
	case "facts":
		return buildGlazeCommand(NewListFactsCommand())
	}
	t.Fatalf("unknown command %s", name)
	return nil
}
