package cmds

import (
	"fmt"
	"io"
	"strconv"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/jarvis/pkg/knowledge"
	"github.com/go-go-golems/jarvis/pkg/turns"
	"github.com/go-go-golems/jarvis/pkg/turns/serde"
	"github.com/go-go-golems/jarvis/pkg/version"
)

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func NewCatalogCobraCommand() *cobra.Command {
	return buildGlazeCommand(NewCatalogCommand())
}

func NewConversationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Inspect the stored conversations",
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the turns of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			c, err := a.conversations.Get(args[0])
			if err != nil {
				return err
			}
			withIDs, _ := cmd.Flags().GetBool("ids")
			maxLines, _ := cmd.Flags().GetInt("max-lines")
			w := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(w, "# %s\n\n", c.Title); err != nil {
				return err
			}
			turns.FprintTurns(w, c.Turns,
				turns.WithIDs(withIDs),
				turns.WithMaxTextLines(maxLines),
				turns.WithIndent(2),
			)
			return nil
		},
	}
	show.Flags().Bool("ids", false, "Print turn ids")
	show.Flags().Int("max-lines", 0, "Truncate long texts to this many lines")

	export := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a conversation as a YAML transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			c, err := a.conversations.Get(args[0])
			if err != nil {
				return err
			}
			t := serde.Transcript{ID: c.ID, Title: c.Title, Turns: c.Turns}
			var opt serde.Options
			opt.OmitMediaData, _ = cmd.Flags().GetBool("omit-media")
			opt.OmitProgress, _ = cmd.Flags().GetBool("omit-progress")

			if out, _ := cmd.Flags().GetString("out"); out != "" {
				return serde.SaveTranscriptYAML(out, t, opt)
			}
			b, err := serde.ToYAML(t, opt)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	export.Flags().String("out", "", "Write to this file instead of stdout")
	export.Flags().Bool("omit-media", false, "Drop inline media bytes")
	export.Flags().Bool("omit-progress", false, "Drop progress turns")

	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a YAML transcript as a new conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := serde.LoadTranscriptYAML(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			id, err := a.conversations.Create(t.Title, nil)
			if err != nil {
				return err
			}
			for _, turn := range t.Turns {
				if err := a.conversations.Append(id, turn); err != nil {
					return errors.Wrapf(err, "import turn %s", turn.ID)
				}
			}
			if err := a.sync.Save(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}

	history := &cobra.Command{
		Use:   "history <id>",
		Short: "Print the logged turns of a conversation, also after it was deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := a.knowledge.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			ts := make([]turns.Turn, 0, len(entries))
			for _, e := range entries {
				ts = append(ts, turns.Turn{Role: e.Role, Parts: e.Parts})
			}
			turns.FprintTurns(cmd.OutOrStdout(), ts, turns.WithIndent(2))
			return nil
		},
	}
	history.Flags().Int("limit", knowledge.DefaultHistoryLimit, "Number of turns")

	cmd.AddCommand(buildGlazeCommand(NewListConversationsCommand()), show, export, imp, history)
	return cmd
}

func NewTeachCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teach",
		Short: "Teach JARVIS rules and facts",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "rule <text>",
			Short: `Learn a rule, e.g. "If hello, then Hi there"`,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := openApp(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = a.Close() }()
				rule, err := a.knowledge.LearnRule(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), rule)
			},
		},
		&cobra.Command{
			Use:   "fact <text>",
			Short: "Learn a fact",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := openApp(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = a.Close() }()
				fact, err := a.knowledge.LearnFact(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), fact)
			},
		},
		buildGlazeCommand(NewListRulesCommand()),
		newRuleToggleCommand("enable", true),
		newRuleToggleCommand("disable", false),
		buildGlazeCommand(NewListFactsCommand()),
	)
	return cmd
}

func newRuleToggleCommand(name string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <rule-id>",
		Short: strcase.ToCamel(name) + " a learned rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid rule id %q", args[0])
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return a.knowledge.SetRuleActive(cmd.Context(), id, active)
		},
	}
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printYAML(cmd.OutOrStdout(), version.Get())
		},
	}
}
