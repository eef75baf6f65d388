package capabilities

import (
	"context"

	"github.com/go-go-golems/jarvis/pkg/turns"
)

// Attachment is the image the user sent along with a prompt.
type Attachment = turns.Media

// TextOutput is returned by the text capabilities.
type TextOutput struct {
	Text    string
	Sources []turns.Citation
}

// MediaOutput is returned by the media capabilities. Either Data or URI is
// set; Message is a short text shown to the model instead of the bytes.
type MediaOutput struct {
	MIMEType string
	Data     []byte
	URI      string
	Message  string
}

// Provider performs the remote calls behind each capability.
type Provider interface {
	GenerateText(ctx context.Context, prompt string) (*TextOutput, error)
	GenerateComplexText(ctx context.Context, prompt string) (*TextOutput, error)
	SearchGroundedText(ctx context.Context, prompt string) (*TextOutput, error)
	MapsGroundedText(ctx context.Context, prompt string) (*TextOutput, error)
	GenerateImage(ctx context.Context, prompt string, aspectRatio string) (*MediaOutput, error)
	AnalyzeImage(ctx context.Context, prompt string, image *Attachment) (*TextOutput, error)
	EditImage(ctx context.Context, prompt string, image *Attachment) (*MediaOutput, error)
	// GenerateVideo uses image as the first frame when it is not nil.
	GenerateVideo(ctx context.Context, prompt string, image *Attachment, aspectRatio string) (*MediaOutput, error)
	TextToSpeech(ctx context.Context, text string) (*MediaOutput, error)
}
