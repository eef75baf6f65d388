package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/agent"
	"github.com/go-go-golems/jarvis/pkg/inference/toolloop"
	"github.com/go-go-golems/jarvis/pkg/persistence"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/types"
	"github.com/go-go-golems/jarvis/pkg/turns"
)

type attachmentRequest struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// ChatRequest is the JSON body of POST /api/chat. Multipart requests carry
// the same fields as form values and the attachment as the "file" part.
type ChatRequest struct {
	ConversationID string             `json:"conversationId,omitempty"`
	Prompt         string             `json:"prompt"`
	Model          types.ModelChoice  `json:"model,omitempty"`
	Attachment     *attachmentRequest `json:"attachment,omitempty"`
}

type ChatResponse struct {
	*agent.SubmitResult
	Text string `json:"text"`
	// Error is set when the run aborted; its error turn is part of Turns
	Error string `json:"error,omitempty"`
}

type textRequest struct {
	Text string `json:"text"`
}

type themeBody struct {
	Theme persistence.Theme `json:"theme"`
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	return nil
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": ServiceName})
}

func (s *Server) readSubmission(w http.ResponseWriter, r *http.Request) (agent.Submission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req ChatRequest
		if err := decodeJSON(r, &req); err != nil {
			return agent.Submission{}, err
		}
		sub := agent.Submission{ConversationID: req.ConversationID, Prompt: req.Prompt, Model: req.Model}
		if a := req.Attachment; a != nil && (len(a.Data) > 0 || a.URI != "") {
			if a.MIMEType == "" {
				return agent.Submission{}, NewBadRequestError("attachment needs a mimeType", nil)
			}
			sub.Attachment = &turns.Media{MIMEType: a.MIMEType, Data: a.Data, URI: a.URI}
		}
		return sub, nil
	}

	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		return agent.Submission{}, NewBadRequestError("invalid multipart body", err)
	}
	sub := agent.Submission{
		ConversationID: r.FormValue("conversationId"),
		Prompt:         r.FormValue("prompt"),
		Model:          types.ModelChoice(r.FormValue("model")),
	}
	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return sub, nil
	case err != nil:
		return agent.Submission{}, NewBadRequestError("invalid attachment", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return agent.Submission{}, NewBadRequestError("could not read attachment", err)
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	sub.Attachment = &turns.Media{MIMEType: mimeType, Data: data}
	return sub, nil
}

// handleChat runs one submission. A run aborted by a transport error still
// answers 200: its error turn was appended and is returned with the result.
func (s *Server) handleChat(w ErrorResponseWriter, r *http.Request) {
	sub, err := s.readSubmission(w, r)
	if err != nil {
		w.RespondWithError(err)
		return
	}

	res, err := s.config.Agent.SubmitTurn(r.Context(), sub)
	if err != nil {
		var transport *toolloop.OrchestrationTransportError
		if res == nil || !errors.As(err, &transport) {
			w.RespondWithError(err)
			return
		}
		log.Warn().Err(err).Str("conversation_id", res.ConversationID).Msg("run aborted")
		RespondWithJSON(w, http.StatusOK, ChatResponse{SubmitResult: res, Text: res.FinalText(), Error: err.Error()})
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	RespondWithJSON(w, status, ChatResponse{SubmitResult: res, Text: res.FinalText()})
}

func (s *Server) handleListConversations(w ErrorResponseWriter, _ *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.config.Conversations.List())
}

func (s *Server) handleGetConversation(w ErrorResponseWriter, r *http.Request) {
	c, err := s.config.Conversations.Get(pathID(r))
	if err != nil {
		w.RespondWithError(err)
		return
	}
	RespondWithJSON(w, http.StatusOK, c)
}

func (s *Server) handleListTurns(w ErrorResponseWriter, r *http.Request) {
	ts, err := s.config.Conversations.ListTurns(pathID(r))
	if err != nil {
		w.RespondWithError(err)
		return
	}
	if ts == nil {
		ts = []turns.Turn{}
	}
	RespondWithJSON(w, http.StatusOK, ts)
}

func (s *Server) handleRenameConversation(w ErrorResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r, &body); err != nil {
		w.RespondWithError(err)
		return
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		w.RespondWithError(NewBadRequestError("title is empty", nil))
		return
	}
	id := pathID(r)
	if err := s.config.Conversations.Rename(id, title); err != nil {
		w.RespondWithError(err)
		return
	}
	s.save(r)
	c, err := s.config.Conversations.Get(id)
	if err != nil {
		w.RespondWithError(err)
		return
	}
	RespondWithJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteConversation(w ErrorResponseWriter, r *http.Request) {
	id := pathID(r)
	if err := s.config.Conversations.Delete(id); err != nil {
		w.RespondWithError(err)
		return
	}
	if s.config.Sessions != nil {
		s.config.Sessions.Remove(id)
	}
	s.save(r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) save(r *http.Request) {
	if s.config.Saver == nil {
		return
	}
	if err := s.config.Saver.Save(r.Context()); err != nil {
		log.Warn().Err(err).Msg("could not persist conversations")
	}
}

func (s *Server) handleCatalog(w ErrorResponseWriter, _ *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.config.Catalog.Descriptors())
}

func (s *Server) handleGetTheme(w ErrorResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, themeBody{Theme: s.config.Preferences.LoadTheme(r.Context())})
}

func (s *Server) handlePutTheme(w ErrorResponseWriter, r *http.Request) {
	var body themeBody
	if err := decodeJSON(r, &body); err != nil {
		w.RespondWithError(err)
		return
	}
	if err := s.config.Preferences.SaveTheme(r.Context(), body.Theme); err != nil {
		w.RespondWithError(err)
		return
	}
	RespondWithJSON(w, http.StatusOK, body)
}

func (s *Server) handleTeachRule(w ErrorResponseWriter, r *http.Request) {
	var body textRequest
	if err := decodeJSON(r, &body); err != nil {
		w.RespondWithError(err)
		return
	}
	rule, err := s.config.Knowledge.LearnRule(r.Context(), body.Text)
	if err != nil {
		w.RespondWithError(err)
		return
	}
	RespondWithJSON(w, http.StatusCreated, map[string]any{"status": "success", "rule": rule})
}

func (s *Server) handleTeachFact(w ErrorResponseWriter, r *http.Request) {
	var body textRequest
	if err := decodeJSON(r, &body); err != nil {
		w.RespondWithError(err)
		return
	}
	fact, err := s.config.Knowledge.LearnFact(r.Context(), body.Text)
	if err != nil {
		w.RespondWithError(err)
		return
	}
	RespondWithJSON(w, http.StatusCreated, map[string]any{"status": "success", "fact": fact})
}
