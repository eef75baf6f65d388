package cmds

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/jarvis/pkg/events"
	"github.com/go-go-golems/jarvis/pkg/helpers"
	"github.com/go-go-golems/jarvis/pkg/inference"
	"github.com/go-go-golems/jarvis/pkg/metrics"
	"github.com/go-go-golems/jarvis/pkg/server"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JARVIS HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", ":8080", "Address to listen on")
	cmd.Flags().Bool("print-raw-events", false, "Print the raw agent events on stdout")
	cmd.Flags().Int64("max-upload-bytes", 32<<20, "Maximum size of a chat attachment upload")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
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

	sink := inference.NewWatermillSink(router.Publisher, events.DefaultTopic)
	if err := a.initAgent(ctx, sink); err != nil {
		return err
	}

	m := metrics.New()
	router.AddHandler("metrics", events.DefaultTopic, m.HandleMessage)
	if printRaw, _ := cmd.Flags().GetBool("print-raw-events"); printRaw {
		router.AddHandler("raw-events", events.DefaultTopic, router.DumpRawEvents(cmd.OutOrStdout()))
	}

	addr, _ := cmd.Flags().GetString("addr")
	maxUpload, _ := cmd.Flags().GetInt64("max-upload-bytes")
	srv, err := server.New(server.Config{
		BindAddr:       addr,
		Agent:          a.agent,
		Conversations:  a.conversations,
		Catalog:        a.catalog,
		Saver:          a.sync,
		Sessions:       a.agent,
		Preferences:    a.state,
		Knowledge:      a.knowledge,
		Events:         router,
		EventsTopic:    events.DefaultTopic,
		Metrics:        m.Handler(),
		MaxUploadBytes: maxUpload,
	})
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		select {
		case <-router.Running():
		case <-ctx.Done():
			return ctx.Err()
		}
		return srv.Run(ctx)
	})
	err = eg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if err := a.sync.Save(context.Background()); err != nil {
		log.Warn().Err(err).Msg("could not persist conversations")
	}
	return nil
}
