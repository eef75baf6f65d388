package cmds

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/jarvis/pkg/capabilities"
	"github.com/go-go-golems/jarvis/pkg/conversation"
	"github.com/go-go-golems/jarvis/pkg/knowledge"
)

func addRows(ctx context.Context, gp middlewares.Processor, rows []types.Row) error {
	for _, row := range rows {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func buildGlazeCommand(c cmds.GlazeCommand, err error) *cobra.Command {
	cobra.CheckErr(err)
	cmd, err := cli.BuildCobraCommandFromGlazeCommand(c)
	cobra.CheckErr(err)
	return cmd
}

type CatalogCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*CatalogCommand)(nil)

func NewCatalogCommand() (*CatalogCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &CatalogCommand{
		CommandDescription: cmds.NewCommandDescription(
			"catalog",
			cmds.WithShort("List the capabilities offered to the model"),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func catalogRows(ds []capabilities.Descriptor) []types.Row {
	rows := make([]types.Row, 0, len(ds))
	for _, d := range ds {
		rows = append(rows, types.NewRow(
			types.MRP("name", d.Name),
			types.MRP("requires_attachment", d.RequiresAttachment),
			types.MRP("progress_message", d.ProgressMessage),
			types.MRP("selection_guideline", d.SelectionGuideline),
		))
	}
	return rows
}

func (c *CatalogCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	_ *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return addRows(ctx, gp, catalogRows(a.catalog.Descriptors()))
}

type ListConversationsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ListConversationsCommand)(nil)

func NewListConversationsCommand() (*ListConversationsCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &ListConversationsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"list",
			cmds.WithShort("List conversations, most recent first"),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func conversationRows(ss []conversation.Summary) []types.Row {
	rows := make([]types.Row, 0, len(ss))
	for _, s := range ss {
		rows = append(rows, types.NewRow(
			types.MRP("id", s.ID),
			types.MRP("title", s.Title),
			types.MRP("turns", s.Turns),
			types.MRP("updated_at", s.UpdatedAt),
		))
	}
	return rows
}

func (c *ListConversationsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	_ *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return addRows(ctx, gp, conversationRows(a.conversations.List()))
}

type ListRulesCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ListRulesCommand)(nil)

func NewListRulesCommand() (*ListRulesCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &ListRulesCommand{
		CommandDescription: cmds.NewCommandDescription(
			"rules",
			cmds.WithShort("List the learned rules by priority"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"active-only",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Only list active rules"),
					parameters.WithDefault(false),
				),
			),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

type ListRulesSettings struct {
	ActiveOnly bool `glazed.parameter:"active-only"`
}

func ruleRows(rules []knowledge.Rule, activeOnly bool) []types.Row {
	rows := make([]types.Row, 0, len(rules))
	for _, r := range rules {
		if activeOnly && !r.Active {
			continue
		}
		rows = append(rows, types.NewRow(
			types.MRP("id", r.ID),
			types.MRP("priority", r.Priority),
			types.MRP("active", r.Active),
			types.MRP("condition", r.Condition),
			types.MRP("action", r.Action),
		))
	}
	return rows
}

func (c *ListRulesCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s := &ListRulesSettings{}
	if err := parsedLayers.InitializeStructFromLayer(layers.DefaultSlug, s); err != nil {
		return err
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	rules, err := a.knowledge.Rules(ctx)
	if err != nil {
		return err
	}
	return addRows(ctx, gp, ruleRows(rules, s.ActiveOnly))
}

type ListFactsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ListFactsCommand)(nil)

func NewListFactsCommand() (*ListFactsCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &ListFactsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"facts",
			cmds.WithShort("List the learned facts of a concept"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"concept",
					parameters.ParameterTypeString,
					parameters.WithHelp("Concept to list"),
					parameters.WithDefault(knowledge.GeneralConcept),
				),
			),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

type ListFactsSettings struct {
	Concept string `glazed.parameter:"concept"`
}

func factRows(fs []knowledge.Fact) []types.Row {
	rows := make([]types.Row, 0, len(fs))
	for _, f := range fs {
		rows = append(rows, types.NewRow(
			types.MRP("id", f.ID),
			types.MRP("concept", f.Concept),
			types.MRP("fact", f.Fact),
			types.MRP("relationship", f.Relationship),
			types.MRP("source", f.Source),
			types.MRP("confidence", f.Confidence),
			types.MRP("created_at", f.CreatedAt),
		))
	}
	return rows
}

func (c *ListFactsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s := &ListFactsSettings{}
	if err := parsedLayers.InitializeStructFromLayer(layers.DefaultSlug, s); err != nil {
		return err
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	fs, err := a.knowledge.FactsByConcept(ctx, s.Concept)
	if err != nil {
		return err
	}
	return addRows(ctx, gp, factRows(fs))
}
