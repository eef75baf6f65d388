package serde

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/jarvis/pkg/turns"
)

// Options controls serialization behavior.
type Options struct {
	// OmitProgress drops intermediate status turns on write
	OmitProgress bool
	// OmitMediaData keeps media parts but drops their inline bytes
	OmitMediaData bool
}

// Transcript is the exported form of a conversation.
type Transcript struct {
	ID    string       `yaml:"id,omitempty" json:"id,omitempty"`
	Title string       `yaml:"title,omitempty" json:"title,omitempty"`
	Turns []turns.Turn `yaml:"turns" json:"turns"`
}

// NormalizeTranscript applies the write options without mutating the input.
func NormalizeTranscript(t Transcript, opt Options) Transcript {
	out := Transcript{ID: t.ID, Title: t.Title, Turns: make([]turns.Turn, 0, len(t.Turns))}
	for _, turn := range t.Turns {
		if opt.OmitProgress && turn.IsProgress() {
			continue
		}
		turn = turn.Clone()
		if opt.OmitMediaData {
			for i, p := range turn.Parts {
				if m, ok := p.Media(); ok && len(m.Data) > 0 {
					turn.Parts[i] = turns.NewMediaPart(m.MIMEType, nil)
				}
			}
		}
		out.Turns = append(out.Turns, turn)
	}
	return out
}

func ToYAML(t Transcript, opt Options) ([]byte, error) {
	return yaml.Marshal(NormalizeTranscript(t, opt))
}

func FromYAML(b []byte) (*Transcript, error) {
	var t Transcript
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	for i, turn := range t.Turns {
		if err := turn.Validate(); err != nil {
			return nil, errors.Wrapf(err, "turn %d", i)
		}
	}
	return &t, nil
}

func SaveTranscriptYAML(path string, t Transcript, opt Options) error {
	data, err := ToYAML(t, opt)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func LoadTranscriptYAML(path string) (*Transcript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(b)
}
