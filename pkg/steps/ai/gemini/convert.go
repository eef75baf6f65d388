package gemini

import (
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"google.golang.org/genai"

	"github.com/go-go-golems/jarvis/pkg/events"
	"github.com/go-go-golems/jarvis/pkg/inference/engine"
	"github.com/go-go-golems/jarvis/pkg/turns"
)

// convertSchema maps an invopop schema onto the OpenAPI subset Gemini
// accepts. Property order is kept in PropertyOrdering.
func convertSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	gs := &genai.Schema{
		Description: s.Description,
		Required:    append([]string(nil), s.Required...),
	}
	for _, e := range s.Enum {
		gs.Enum = append(gs.Enum, fmt.Sprint(e))
	}

	switch s.Type {
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	case "array":
		gs.Type = genai.TypeArray
		gs.Items = convertSchema(s.Items)
	default:
		gs.Type = genai.TypeObject
		if s.Properties != nil {
			gs.Properties = map[string]*genai.Schema{}
			for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
				gs.Properties[pair.Key] = convertSchema(pair.Value)
				gs.PropertyOrdering = append(gs.PropertyOrdering, pair.Key)
			}
		}
	}
	return gs
}

func convertTools(defs []engine.ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, td := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        td.Name,
			Description: td.Description,
			Parameters:  convertSchema(td.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func roleToGeminiRole(r turns.Role) string {
	if r == turns.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func convertPart(p turns.Part) *genai.Part {
	if p.IsText() {
		return genai.NewPartFromText(p.Text())
	}
	m, _ := p.Media()
	if len(m.Data) > 0 {
		return genai.NewPartFromBytes(m.Data, m.MIMEType)
	}
	return genai.NewPartFromURI(m.URI, m.MIMEType)
}

// convertMessages turns the model-facing history into genai contents.
// Consecutive tool calls and results keep their own content entries.
func convertMessages(msgs []engine.Message) []*genai.Content {
	ret := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch {
		case m.ToolCall != nil:
			part := genai.NewPartFromFunctionCall(m.ToolCall.Name, m.ToolCall.Arguments)
			part.FunctionCall.ID = m.ToolCall.ID
			part.ThoughtSignature = m.ToolCall.ThoughtSignature
			ret = append(ret, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleModel))
		case m.ToolResult != nil:
			ret = append(ret, genai.NewContentFromFunctionResponse(m.ToolResult.Name, m.ToolResult.Response, genai.RoleUser))
		default:
			parts := make([]*genai.Part, 0, len(m.Parts))
			for _, p := range m.Parts {
				parts = append(parts, convertPart(p))
			}
			if len(parts) == 0 {
				continue
			}
			ret = append(ret, genai.NewContentFromParts(parts, genai.Role(roleToGeminiRole(m.Role))))
		}
	}
	return ret
}

// citationsFromGrounding extracts web and maps grounding chunks in order.
// Chunks without a URI are dropped.
func citationsFromGrounding(gm *genai.GroundingMetadata) []turns.Citation {
	if gm == nil {
		return nil
	}
	var ret []turns.Citation
	for _, chunk := range gm.GroundingChunks {
		if chunk == nil {
			continue
		}
		switch {
		case chunk.Web != nil && chunk.Web.URI != "":
			ret = append(ret, turns.Citation{Kind: turns.CitationWeb, URI: chunk.Web.URI, Title: chunk.Web.Title})
		case chunk.Maps != nil && chunk.Maps.URI != "":
			ret = append(ret, turns.Citation{Kind: turns.CitationMaps, URI: chunk.Maps.URI, Title: chunk.Maps.Title})
		}
	}
	return ret
}

func usageFromResponse(resp *genai.GenerateContentResponse) *events.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	u := resp.UsageMetadata
	return &events.Usage{
		InputTokens:  int(u.PromptTokenCount),
		OutputTokens: int(u.CandidatesTokenCount + u.ThoughtsTokenCount),
		CachedTokens: int(u.CachedContentTokenCount),
	}
}

// candidateOutput is the text, first function call and citations of the
// first candidate. Thought parts are skipped.
type candidateOutput struct {
	text       string
	call       *genai.FunctionCall
	signature  []byte
	media      []*genai.Blob
	citations  []turns.Citation
	stopReason string
}

func firstCandidate(resp *genai.GenerateContentResponse) candidateOutput {
	var out candidateOutput
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return out
	}
	cand := resp.Candidates[0]
	out.stopReason = string(cand.FinishReason)
	out.citations = citationsFromGrounding(cand.GroundingMetadata)
	if cand.Content == nil {
		return out
	}
	var texts []string
	for _, p := range cand.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		switch {
		case p.FunctionCall != nil:
			if out.call == nil {
				out.call = p.FunctionCall
				out.signature = p.ThoughtSignature
			}
		case p.InlineData != nil:
			out.media = append(out.media, p.InlineData)
		case p.Text != "":
			texts = append(texts, p.Text)
		}
	}
	out.text = strings.Join(texts, "")
	return out
}
