package turns

import (
	"time"

	"github.com/google/uuid"
)

// NewUserTurn builds the user turn for a submission. The attachment, if any,
// follows the prompt text.
func NewUserTurn(prompt string, attachment *Media) Turn {
	var parts []Part
	if prompt != "" {
		parts = append(parts, NewTextPart(prompt))
	}
	if attachment != nil {
		parts = append(parts, Part{media: &Media{
			MIMEType: attachment.MIMEType,
			Data:     attachment.Data,
			URI:      attachment.URI,
		}})
	}
	return newTurn(RoleUser, KindMessage, parts, nil)
}

// NewModelTurn builds a final model turn.
func NewModelTurn(parts []Part, sources []Citation) Turn {
	return newTurn(RoleModel, KindMessage, parts, sources)
}

func NewModelTextTurn(text string) Turn {
	return newTurn(RoleModel, KindMessage, []Part{NewTextPart(text)}, nil)
}

// NewProgressTurn builds the status turn shown while a capability runs.
func NewProgressTurn(text string) Turn {
	return newTurn(RoleModel, KindProgress, []Part{NewTextPart(text)}, nil)
}

func NewErrorTurn(text string) Turn {
	return newTurn(RoleModel, KindError, []Part{NewTextPart(text)}, nil)
}

func newTurn(role Role, kind Kind, parts []Part, sources []Citation) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Kind:      kind,
		Parts:     parts,
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	}
}
