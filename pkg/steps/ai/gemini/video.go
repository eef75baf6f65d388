package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/go-go-golems/jarvis/pkg/capabilities"
)

const (
	DefaultVideoPollInterval = 10 * time.Second
	DefaultVideoPollTimeout  = 10 * time.Minute
)

// videoPoller waits for a video operation at a fixed interval, bounded by
// an overall timeout and by ctx.
type videoPoller struct {
	operations operationsAPI
	interval   time.Duration
	timeout    time.Duration
}

func newVideoPoller(ops operationsAPI, interval, timeout time.Duration) *videoPoller {
	if interval <= 0 {
		interval = DefaultVideoPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultVideoPollTimeout
	}
	return &videoPoller{operations: ops, interval: interval, timeout: timeout}
}

func (vp *videoPoller) wait(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	if op == nil {
		return nil, errors.New("no video operation")
	}
	start := time.Now()
	deadline := time.NewTimer(vp.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(vp.interval)
	defer ticker.Stop()

	for polls := 0; !op.Done; polls++ {
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for video operation %s", op.Name)
		case <-deadline.C:
			log.Warn().Str("operation", op.Name).Int("polls", polls).Msg("video operation timed out")
			return nil, &capabilities.PollTimeoutError{Operation: op.Name, Waited: time.Since(start).Round(time.Millisecond)}
		case <-ticker.C:
		}

		next, err := vp.operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "poll video operation %s", op.Name)
		}
		if next != nil {
			op = next
		}
		log.Debug().Str("operation", op.Name).Bool("done", op.Done).Int("polls", polls+1).Msg("polled video operation")
	}

	if len(op.Error) > 0 {
		return nil, errors.Errorf("video generation failed: %v", operationErrorMessage(op.Error))
	}
	return op, nil
}

func operationErrorMessage(e map[string]any) string {
	if msg, ok := e["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprint(e)
}

func firstVideo(op *genai.GenerateVideosOperation) (*genai.GeneratedVideo, error) {
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		if op.Response != nil && len(op.Response.RAIMediaFilteredReasons) > 0 {
			return nil, errors.Errorf("video was filtered: %s", op.Response.RAIMediaFilteredReasons[0])
		}
		return nil, errors.New("video generation did not return a video")
	}
	v := op.Response.GeneratedVideos[0]
	if v == nil || v.Video == nil || (v.Video.URI == "" && len(v.Video.VideoBytes) == 0) {
		return nil, errors.New("video generation did not return a download link")
	}
	return v, nil
}
