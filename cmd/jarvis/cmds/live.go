package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/jarvis/pkg/events"
	"github.com/go-go-golems/jarvis/pkg/helpers"
	"github.com/go-go-golems/jarvis/pkg/inference"
	"github.com/go-go-golems/jarvis/pkg/live"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/gemini"
)

// micChunkBytes is 100ms of 16kHz 16-bit mono audio.
const micChunkBytes = 3200

func NewLiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Hold a live voice conversation",
		Long: "Streams raw 16kHz 16-bit mono PCM from --input (default stdin) to the " +
			"live model and writes its 24kHz PCM answer to --output. Transcripts " +
			"are printed on stderr. Interrupt to hang up.\n\n" +
			"  arecord -f S16_LE -r 16000 -c 1 -t raw | jarvis live | aplay -f S16_LE -r 24000 -c 1",
		Args: cobra.NoArgs,
		RunE: runLive,
	}
	cmd.Flags().String("input", "-", "Microphone PCM source, - for stdin")
	cmd.Flags().String("output", "-", "Model audio sink, - for stdout")
	cmd.Flags().String("voice", "", "Override the configured voice")
	cmd.Flags().String("instructions", "", "System instruction for the live model")
	return cmd
}

func runLive(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ss, err := loadSettings()
	if err != nil {
		return err
	}
	if err := ss.Validate(); err != nil {
		return err
	}
	client, err := gemini.NewClient(ctx, ss)
	if err != nil {
		return err
	}
	transport, err := gemini.NewLiveTransport(client, ss.Gemini)
	if err != nil {
		return err
	}
	cfg := transport.Config()
	if v, _ := cmd.Flags().GetString("voice"); v != "" {
		cfg.Voice = v
	}
	cfg.SystemInstruction, _ = cmd.Flags().GetString("instructions")

	in, closeIn, err := openInput(cmd)
	if err != nil {
		return err
	}
	defer closeIn()
	out, closeOut, err := openOutput(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	router, err := events.NewEventRouter(
		events.WithLogger(helpers.NewWatermill(log.Logger)),
		events.WithVerbose(viper.GetBool("verbose")),
	)
	if err != nil {
		return err
	}
	defer func() { _ = router.Close() }()
	if viper.GetBool("verbose") {
		router.AddHandler("raw-events", events.DefaultTopic, router.DumpRawEvents(cmd.ErrOrStderr()))
	}

	sess := live.NewSession(transport, cfg,
		live.WithEventSinks(inference.NewWatermillSink(router.Publisher, events.DefaultTopic)),
		live.WithStateHook(func(from, to live.State) {
			if to == live.StateStreaming {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "[connected, speak now]")
			}
		}),
	)

	eg, egCtx := errgroup.WithContext(ctx)
	routerCtx, cancelRouter := context.WithCancel(egCtx)
	defer cancelRouter()
	eg.Go(func() error {
		return router.Run(routerCtx)
	})
	<-router.Running()

	mic := make(chan []byte)
	if err := sess.Start(ctx, mic); err != nil {
		return err
	}
	// a blocked stdin read cannot be interrupted, so the reader is not
	// waited for
	micCtx, cancelMic := context.WithCancel(ctx)
	defer cancelMic()
	go func() {
		if err := readMic(micCtx, in, mic); err != nil {
			log.Warn().Err(err).Msg("microphone input ended")
		}
	}()
	eg.Go(func() error {
		for chunk := range sess.Audio() {
			if _, err := out.Write(chunk.Data); err != nil {
				return errors.Wrap(err, "write audio")
			}
		}
		return nil
	})
	eg.Go(func() error {
		printTranscripts(cmd.ErrOrStderr(), sess.Transcripts())
		return nil
	})

	var stopErr error
	select {
	case <-ctx.Done():
		stopErr = sess.Stop()
	case <-sess.Done():
		stopErr = sess.Stop()
	}
	cancelMic()
	cancelRouter()
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Msg("live session ended")
	}
	return stopErr
}

// readMic forwards fixed size chunks of r until EOF. Closing mic ends the
// upstream side of the session.
func readMic(ctx context.Context, r io.Reader, mic chan<- []byte) error {
	defer close(mic)
	for {
		buf := make([]byte, micChunkBytes)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			select {
			case mic <- buf[:n]:
			case <-ctx.Done():
				return nil
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read microphone")
		}
	}
}

// printTranscripts rewrites the current line while a speaker's turn grows
// and starts a new one when the speaker changes.
func printTranscripts(w io.Writer, ts <-chan live.Transcript) {
	var last live.Speaker
	for t := range ts {
		if last != "" && t.Speaker != last {
			_, _ = fmt.Fprintln(w)
		}
		last = t.Speaker
		_, _ = fmt.Fprintf(w, "\r%s: %s", t.Speaker, strings.TrimSpace(t.Text))
	}
	if last != "" {
		_, _ = fmt.Fprintln(w)
	}
}

func openInput(cmd *cobra.Command) (io.Reader, func(), error) {
	path, _ := cmd.Flags().GetString("input")
	if path == "" || path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open input")
	}
	return f, func() { _ = f.Close() }, nil
}

func openOutput(cmd *cobra.Command) (io.Writer, func(), error) {
	path, _ := cmd.Flags().GetString("output")
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create output")
	}
	return f, func() { _ = f.Close() }, nil
}
