package capabilities

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// PromptArgs is taken by the text capabilities.
type PromptArgs struct {
	Prompt string `json:"prompt" jsonschema:"description=The user's text or question"`
}

type ImageArgs struct {
	Prompt      string `json:"prompt" jsonschema:"description=Description of the image to generate"`
	AspectRatio string `json:"aspectRatio,omitempty" jsonschema:"description=Aspect ratio of the image,enum=1:1,enum=16:9,enum=9:16,enum=4:3,enum=3:4"`
}

// AttachmentArgs is taken by the capabilities working on the attached image.
type AttachmentArgs struct {
	Prompt   string `json:"prompt" jsonschema:"description=The question about or the instruction for the attached image"`
	HasImage bool   `json:"hasImage" jsonschema:"description=Whether the user attached an image"`
}

type VideoArgs struct {
	Prompt      string `json:"prompt" jsonschema:"description=Description of the video to generate"`
	AspectRatio string `json:"aspectRatio,omitempty" jsonschema:"description=Aspect ratio of the video,enum=16:9,enum=9:16"`
}

type VideoFromImageArgs struct {
	Prompt      string `json:"prompt" jsonschema:"description=How to animate the attached image"`
	HasImage    bool   `json:"hasImage" jsonschema:"description=Whether the user attached an image"`
	AspectRatio string `json:"aspectRatio,omitempty" jsonschema:"description=Aspect ratio of the video,enum=16:9,enum=9:16"`
}

type SpeechArgs struct {
	Text string `json:"text" jsonschema:"description=The text to read aloud"`
}

const (
	DefaultImageAspectRatio = "1:1"
	DefaultVideoAspectRatio = "16:9"
)

func decodeArgs(args map[string]any, v interface{}) error {
	if args == nil {
		args = map[string]any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return errors.Wrap(err, "encode arguments")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrap(err, "decode arguments")
	}
	return nil
}
