package cmds

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/jarvis/pkg/agent"
	"github.com/go-go-golems/jarvis/pkg/events"
	"github.com/go-go-golems/jarvis/pkg/helpers"
	"github.com/go-go-golems/jarvis/pkg/inference"
	"github.com/go-go-golems/jarvis/pkg/inference/toolloop"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/types"
	"github.com/go-go-golems/jarvis/pkg/turns"
)

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Chat with JARVIS in the terminal",
		Long: "With a prompt argument, runs one submission and exits. Without, " +
			"starts an interactive session; type 'exit' to leave.",
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}
	cmd.Flags().String("conversation", "", "Continue this conversation")
	cmd.Flags().String("model", string(types.ModelFlash), "Orchestrator model (flash, pro)")
	cmd.Flags().String("file", "", "Attach this file to the first prompt")
	cmd.Flags().Bool("tool-detail", false, "Print capability calls and results")
	cmd.Flags().Bool("plain", false, "Do not render answers as markdown")
	return cmd
}

type chatter struct {
	app          *app
	conversation string
	model        types.ModelChoice
	attachment   *turns.Media
	out          io.Writer
	style        string
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	router, err := events.NewEventRouter(
		events.WithLogger(helpers.NewWatermill(log.Logger)),
		events.WithVerbose(viper.GetBool("verbose")),
	)
	if err != nil {
		return err
	}
	defer func() { _ = router.Close() }()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.initAgent(ctx, inference.NewWatermillSink(router.Publisher, events.DefaultTopic)); err != nil {
		return err
	}
	toolDetail, _ := cmd.Flags().GetBool("tool-detail")
	router.AddHandler("chat", events.DefaultTopic, events.StepPrinterFunc("", cmd.ErrOrStderr(), toolDetail))

	c := &chatter{app: a, out: cmd.OutOrStdout()}
	c.conversation, _ = cmd.Flags().GetString("conversation")
	model, _ := cmd.Flags().GetString("model")
	c.model = types.ModelChoice(model)
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		if c.attachment, err = readAttachment(path); err != nil {
			return err
		}
	}
	// the persisted themes are named like the glamour styles
	if plain, _ := cmd.Flags().GetBool("plain"); !plain && isatty.IsTerminal(os.Stdout.Fd()) {
		c.style = string(a.state.LoadTheme(ctx))
	}

	eg, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		select {
		case <-router.Running():
		case <-ctx.Done():
			return nil
		}
		if len(args) == 1 {
			return c.submit(ctx, args[0])
		}
		return c.loop(ctx)
	})
	return eg.Wait()
}

func (c *chatter) loop(ctx context.Context) error {
	ui := &input.UI{Writer: os.Stderr, Reader: os.Stdin}
	for {
		prompt, err := ui.Ask("\nyou", &input.Options{Required: true, Loop: true, HideOrder: true})
		if err != nil {
			if errors.Is(err, input.ErrInterrupted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		switch strings.TrimSpace(prompt) {
		case "exit", "quit":
			return nil
		}
		if err := c.submit(ctx, prompt); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// submit runs one prompt and prints the answer. Aborted runs print their
// error turn and keep the session going.
func (c *chatter) submit(ctx context.Context, prompt string) error {
	res, err := c.app.agent.SubmitTurn(ctx, agent.Submission{
		ConversationID: c.conversation,
		Prompt:         prompt,
		Attachment:     c.attachment,
		Model:          c.model,
	})
	if err != nil {
		var transport *toolloop.OrchestrationTransportError
		if res == nil || !errors.As(err, &transport) {
			return err
		}
	}
	c.attachment = nil
	if c.conversation == "" {
		c.conversation = res.ConversationID
		log.Info().Str("conversation_id", res.ConversationID).Msg("Started conversation")
	}
	if res.Rule != nil {
		log.Debug().Int64("rule", res.Rule.ID).Msg("Answered from rule")
	}
	return c.print(res)
}

func (c *chatter) print(res *agent.SubmitResult) error {
	text := res.FinalText()
	if text != "" {
		if c.style != "" {
			rendered, err := glamour.Render(text, c.style)
			if err == nil {
				text = rendered
			}
		}
		if _, err := fmt.Fprintln(c.out, strings.TrimRight(text, "\n")); err != nil {
			return err
		}
	}
	for _, t := range res.Turns[1:] {
		for _, part := range t.Parts {
			m, ok := part.Media()
			if !ok {
				continue
			}
			desc := fmt.Sprintf("%d bytes", len(m.Data))
			if m.URI != "" {
				desc = m.URI
			}
			if _, err := fmt.Fprintf(c.out, "[%s] %s\n", m.MIMEType, desc); err != nil {
				return err
			}
		}
		for i, s := range t.Sources {
			if _, err := fmt.Fprintf(c.out, "[%d] %s %s\n", i+1, s.Title, s.URI); err != nil {
				return err
			}
		}
	}
	return nil
}

func readAttachment(path string) (*turns.Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read attachment")
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return &turns.Media{MIMEType: mimeType, Data: data}, nil
}
