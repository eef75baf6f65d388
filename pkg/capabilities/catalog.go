package capabilities

import (
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/mb0/glob"
	"github.com/pkg/errors"

	"github.com/go-go-golems/jarvis/pkg/helpers"
	"github.com/go-go-golems/jarvis/pkg/inference/engine"
)

// ID identifies a capability. The set is closed: every ID below has a
// catalog entry and a dispatch arm in Set.Execute.
type ID int

const (
	Unknown ID = iota
	GenerateText
	GenerateComplexText
	SearchGroundedText
	MapsGroundedText
	GenerateImage
	AnalyzeImage
	EditImage
	GenerateVideoFromText
	GenerateVideoFromImage
	TextToSpeech
)

// names are the function names the remote model uses. They must match exactly.
var names = [...]string{
	Unknown:                "unknown",
	GenerateText:           "generateText",
	GenerateComplexText:    "generateComplexText",
	SearchGroundedText:     "generateTextWithGoogleSearch",
	MapsGroundedText:       "generateTextWithGoogleMaps",
	GenerateImage:          "generateImage",
	AnalyzeImage:           "analyzeImage",
	EditImage:              "editImage",
	GenerateVideoFromText:  "generateVideoFromText",
	GenerateVideoFromImage: "generateVideoFromImage",
	TextToSpeech:           "textToSpeech",
}

func (id ID) String() string {
	if id < 0 || int(id) >= len(names) {
		return names[Unknown]
	}
	return names[id]
}

// ParseID maps a function name to its ID. Matching is exact and
// case-sensitive; anything else is Unknown.
func ParseID(name string) ID {
	for i := GenerateText; int(i) < len(names); i++ {
		if names[i] == name {
			return i
		}
	}
	return Unknown
}

// All returns every known capability in catalog order.
func All() []ID {
	ret := make([]ID, 0, len(names)-1)
	for i := GenerateText; int(i) < len(names); i++ {
		ret = append(ret, i)
	}
	return ret
}

// DefaultProgressMessage is shown for names missing from the catalog.
const DefaultProgressMessage = "🤖 Processing..."

// Descriptor is the static metadata of one capability.
type Descriptor struct {
	ID                 ID                 `json:"-" yaml:"-"`
	Name               string             `json:"name" yaml:"name"`
	SelectionGuideline string             `json:"selectionGuideline" yaml:"selection_guideline"`
	Parameters         *jsonschema.Schema `json:"parameters" yaml:"-"`
	ProgressMessage    string             `json:"progressMessage" yaml:"progress_message"`
	RequiresAttachment bool               `json:"requiresAttachment" yaml:"requires_attachment"`
}

func describe(id ID) Descriptor {
	d := Descriptor{ID: id, Name: id.String()}
	switch id {
	case GenerateText:
		d.SelectionGuideline = "Use this tool for general chat, simple questions, or whenever no other tool fits the user's request better."
		d.Parameters = helpers.SchemaFromStruct(&PromptArgs{})
		d.ProgressMessage = "🤖 Processing your message..."
	case GenerateComplexText:
		d.SelectionGuideline = "Use this tool for complex questions that need deep reasoning, detailed analysis or solving hard problems."
		d.Parameters = helpers.SchemaFromStruct(&PromptArgs{})
		d.ProgressMessage = "🤖 Thinking deeply about your question..."
	case SearchGroundedText:
		d.SelectionGuideline = "Use this tool when the user asks for real-time information, news, facts, or anything that needs up-to-date knowledge from the internet."
		d.Parameters = helpers.SchemaFromStruct(&PromptArgs{})
		d.ProgressMessage = "🤖 Searching the web..."
	case MapsGroundedText:
		d.SelectionGuideline = "Use this tool to find places, get directions, or answer geography questions such as 'where is' or 'restaurants near'."
		d.Parameters = helpers.SchemaFromStruct(&PromptArgs{})
		d.ProgressMessage = "🤖 Looking up the location..."
	case GenerateImage:
		d.SelectionGuideline = "Use this tool to create a brand new image from scratch, based on the user's text description."
		d.Parameters = helpers.SchemaFromStruct(&ImageArgs{})
		d.ProgressMessage = "🤖 Sure, generating the image for you..."
	case AnalyzeImage:
		d.SelectionGuideline = "Use this tool when the user attached an image and asks a question about it (e.g. 'what is this?', 'describe this scene', 'how many cars are in the photo?')."
		d.Parameters = helpers.SchemaFromStruct(&AttachmentArgs{})
		d.ProgressMessage = "🤖 Analyzing the image..."
		d.RequiresAttachment = true
	case EditImage:
		d.SelectionGuideline = "Use this tool when the user attached an image and explicitly asks to modify it (e.g. 'remove the background', 'make the sky red', 'put a hat on this person')."
		d.Parameters = helpers.SchemaFromStruct(&AttachmentArgs{})
		d.ProgressMessage = "🤖 Editing the image..."
		d.RequiresAttachment = true
	case GenerateVideoFromText:
		d.SelectionGuideline = "Use this tool to create a new video from a text description."
		d.Parameters = helpers.SchemaFromStruct(&VideoArgs{})
		d.ProgressMessage = "🤖 Starting video generation. This can take a few minutes..."
	case GenerateVideoFromImage:
		d.SelectionGuideline = "Use this tool when the user attached an image and asks to animate it or to use it as the base of a video."
		d.Parameters = helpers.SchemaFromStruct(&VideoFromImageArgs{})
		d.ProgressMessage = "🤖 Starting video generation from the image. This can take a few minutes..."
		d.RequiresAttachment = true
	case TextToSpeech:
		d.SelectionGuideline = "Use this tool when the user asks to 'read aloud' or to 'listen to' a text answer."
		d.Parameters = helpers.SchemaFromStruct(&SpeechArgs{})
		d.ProgressMessage = "🤖 Converting text to speech..."
	case Unknown:
		fallthrough
	default:
		panic(errors.Errorf("no catalog entry for capability %d", int(id)))
	}
	return d
}

var (
	descriptorsOnce sync.Once
	descriptors     []Descriptor
)

func allDescriptors() []Descriptor {
	descriptorsOnce.Do(func() {
		for _, id := range All() {
			descriptors = append(descriptors, describe(id))
		}
	})
	return descriptors
}

// Catalog is a read-only view over the descriptors offered to the model.
type Catalog struct {
	descriptors []Descriptor
	byName      map[string]Descriptor
}

// NewCatalog returns the catalog restricted to names matching one of the
// glob patterns. No pattern means every capability.
func NewCatalog(allowed ...string) (*Catalog, error) {
	c := &Catalog{byName: map[string]Descriptor{}}
	for _, d := range allDescriptors() {
		ok, err := matchesAny(allowed, d.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		c.descriptors = append(c.descriptors, d)
		c.byName[d.Name] = d
	}
	if len(c.descriptors) == 0 {
		return nil, errors.Errorf("no capability matches %v", allowed)
	}
	return c, nil
}

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
)

// DefaultCatalog is the full catalog.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := NewCatalog()
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

func matchesAny(patterns []string, name string) (bool, error) {
	if len(patterns) == 0 {
		return true, nil
	}
	for _, p := range patterns {
		ok, err := glob.Match(p, name)
		if err != nil {
			return false, errors.Wrapf(err, "invalid capability pattern %q", p)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (c *Catalog) Descriptors() []Descriptor {
	return append([]Descriptor(nil), c.descriptors...)
}

// Lookup finds a descriptor by exact function name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// ProgressMessage returns the status text for name, falling back to
// DefaultProgressMessage for names outside the catalog.
func (c *Catalog) ProgressMessage(name string) string {
	if d, ok := c.byName[name]; ok {
		return d.ProgressMessage
	}
	return DefaultProgressMessage
}

// ToolDefinitions renders the catalog as the tools of an inference request.
func (c *Catalog) ToolDefinitions() []engine.ToolDefinition {
	ret := make([]engine.ToolDefinition, 0, len(c.descriptors))
	for _, d := range c.descriptors {
		ret = append(ret, engine.ToolDefinition{
			Name:        d.Name,
			Description: d.SelectionGuideline,
			Parameters:  d.Parameters,
		})
	}
	return ret
}
