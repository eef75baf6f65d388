package turns

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Role is the author of a Turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Kind distinguishes regular messages from the intermediate turns the agent
// loop emits while a capability is running.
type Kind string

const (
	KindMessage  Kind = "message"
	KindProgress Kind = "progress"
	KindError    Kind = "error"
)

// CitationKind is the grounding source family of a Citation.
type CitationKind string

const (
	CitationWeb  CitationKind = "web"
	CitationMaps CitationKind = "maps"
)

// Citation is a source reference attached to a grounded answer.
type Citation struct {
	Kind  CitationKind `json:"kind" yaml:"kind"`
	URI   string       `json:"uri" yaml:"uri"`
	Title string       `json:"title" yaml:"title"`
}

// Media is a binary payload, either inline or addressed by URI.
type Media struct {
	MIMEType string
	Data     []byte
	URI      string
}

// Part is one content fragment within a Turn. A Part holds either text or
// media; the zero value holds neither and is rejected by Turn.Validate.
type Part struct {
	text  *string
	media *Media
}

func NewTextPart(text string) Part {
	return Part{text: &text}
}

func NewMediaPart(mimeType string, data []byte) Part {
	return Part{media: &Media{MIMEType: mimeType, Data: data}}
}

func NewMediaURIPart(mimeType string, uri string) Part {
	return Part{media: &Media{MIMEType: mimeType, URI: uri}}
}

func (p Part) IsText() bool  { return p.text != nil }
func (p Part) IsMedia() bool { return p.media != nil }

// Text returns the text of a text part, or "" for media parts.
func (p Part) Text() string {
	if p.text == nil {
		return ""
	}
	return *p.text
}

// Media returns the media payload of a media part.
func (p Part) Media() (Media, bool) {
	if p.media == nil {
		return Media{}, false
	}
	return *p.media, true
}

type partWire struct {
	Text       *string    `json:"text,omitempty" yaml:"text,omitempty"`
	InlineData *mediaWire `json:"inlineData,omitempty" yaml:"inlineData,omitempty"`
}

type mediaWire struct {
	MIMEType string `json:"mimeType" yaml:"mimeType"`
	Data     string `json:"data,omitempty" yaml:"data,omitempty"`
	URI      string `json:"uri,omitempty" yaml:"uri,omitempty"`
}

func (p Part) toWire() partWire {
	if p.media != nil {
		return partWire{InlineData: &mediaWire{
			MIMEType: p.media.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(p.media.Data),
			URI:      p.media.URI,
		}}
	}
	return partWire{Text: p.text}
}

func (w partWire) toPart() (Part, error) {
	switch {
	case w.Text != nil && w.InlineData != nil:
		return Part{}, errors.New("part carries both text and inlineData")
	case w.Text != nil:
		return NewTextPart(*w.Text), nil
	case w.InlineData != nil:
		var data []byte
		if w.InlineData.Data != "" {
			var err error
			data, err = base64.StdEncoding.DecodeString(w.InlineData.Data)
			if err != nil {
				return Part{}, errors.Wrap(err, "decode inlineData")
			}
		}
		return Part{media: &Media{MIMEType: w.InlineData.MIMEType, Data: data, URI: w.InlineData.URI}}, nil
	default:
		return Part{}, errors.New("part carries neither text nor inlineData")
	}
}

func (p Part) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.toWire())
}

func (p *Part) UnmarshalJSON(b []byte) error {
	var w partWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	part, err := w.toPart()
	if err != nil {
		return err
	}
	*p = part
	return nil
}

func (p Part) MarshalYAML() (interface{}, error) {
	return p.toWire(), nil
}

func (p *Part) UnmarshalYAML(value *yaml.Node) error {
	var w partWire
	if err := value.Decode(&w); err != nil {
		return err
	}
	part, err := w.toPart()
	if err != nil {
		return err
	}
	*p = part
	return nil
}

// Turn is one message in a conversation. Turns are immutable once appended.
type Turn struct {
	ID        string     `json:"id,omitempty" yaml:"id,omitempty"`
	Role      Role       `json:"role" yaml:"role"`
	Kind      Kind       `json:"kind,omitempty" yaml:"kind,omitempty"`
	Parts     []Part     `json:"parts" yaml:"parts"`
	Sources   []Citation `json:"sources,omitempty" yaml:"sources,omitempty"`
	CreatedAt time.Time  `json:"createdAt,omitempty" yaml:"created_at,omitempty"`
}

var (
	ErrEmptyParts  = errors.New("turn has no parts")
	ErrInvalidRole = errors.New("turn role must be user or model")
)

// Validate checks the invariants a committed turn must satisfy.
func (t Turn) Validate() error {
	if t.Role != RoleUser && t.Role != RoleModel {
		return errors.Wrapf(ErrInvalidRole, "got %q", t.Role)
	}
	if len(t.Parts) == 0 {
		return ErrEmptyParts
	}
	for i, p := range t.Parts {
		if !p.IsText() && !p.IsMedia() {
			return errors.Errorf("part %d is empty", i)
		}
	}
	return nil
}

// IsProgress reports whether t is an intermediate status turn.
func (t Turn) IsProgress() bool {
	return t.Kind == KindProgress
}

// Text joins all text parts of the turn.
func (t Turn) Text() string {
	var texts []string
	for _, p := range t.Parts {
		if p.IsText() {
			texts = append(texts, p.Text())
		}
	}
	return strings.Join(texts, "\n")
}

// MediaParts returns the media parts of the turn in order.
func (t Turn) MediaParts() []Media {
	var ret []Media
	for _, p := range t.Parts {
		if m, ok := p.Media(); ok {
			ret = append(ret, m)
		}
	}
	return ret
}

// Clone returns a copy whose slices can be modified without affecting t.
func (t Turn) Clone() Turn {
	out := t
	if t.Parts != nil {
		out.Parts = append([]Part(nil), t.Parts...)
	}
	if t.Sources != nil {
		out.Sources = append([]Citation(nil), t.Sources...)
	}
	return out
}

// CloneTurns copies a turn sequence.
func CloneTurns(ts []Turn) []Turn {
	if ts == nil {
		return nil
	}
	out := make([]Turn, len(ts))
	for i := range ts {
		out[i] = ts[i].Clone()
	}
	return out
}
