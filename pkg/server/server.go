package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/agent"
	"github.com/go-go-golems/jarvis/pkg/capabilities"
	"github.com/go-go-golems/jarvis/pkg/conversation"
	"github.com/go-go-golems/jarvis/pkg/events"
	"github.com/go-go-golems/jarvis/pkg/knowledge"
	"github.com/go-go-golems/jarvis/pkg/persistence"
)

const (
	APIPathHealth        = "/api/health"
	APIPathChat          = "/api/chat"
	APIPathConversations = "/api/conversations"
	APIPathTheme         = "/api/preferences/theme"
	APIPathCatalog       = "/api/catalog"
	APIPathTeachRule     = "/api/teach_rule"
	APIPathTeachFact     = "/api/teach_fact"
	APIPathMetrics       = "/metrics"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "JARVIS"

const shutdownTimeout = 5 * time.Second

// Submitter runs one user submission to completion.
type Submitter interface {
	SubmitTurn(ctx context.Context, sub agent.Submission) (*agent.SubmitResult, error)
}

// Learner stores taught rules and facts.
type Learner interface {
	LearnRule(ctx context.Context, text string) (*knowledge.Rule, error)
	LearnFact(ctx context.Context, text string) (*knowledge.Fact, error)
}

type Preferences interface {
	LoadTheme(ctx context.Context) persistence.Theme
	SaveTheme(ctx context.Context, theme persistence.Theme) error
}

// EventSubscriber opens a subscription on the agent event topic.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// SessionRemover cancels the run of a deleted conversation.
type SessionRemover interface {
	Remove(conversationID string)
}

// Config holds the dependencies of the HTTP server. Agent and Conversations
// are required. Routes of the optional dependencies are only mounted when
// they are set.
type Config struct {
	BindAddr      string
	Agent         Submitter
	Conversations conversation.Store
	Catalog       *capabilities.Catalog
	Saver         agent.Saver
	Sessions      SessionRemover
	Preferences   Preferences
	Knowledge     Learner
	Events        EventSubscriber
	EventsTopic   string
	Metrics       http.Handler
	// MaxUploadBytes bounds chat request bodies, JSON or multipart
	MaxUploadBytes int64
}

const defaultMaxUploadBytes = 32 << 20

type Server struct {
	config     Config
	router     *mux.Router
	httpServer *http.Server
}

func New(config Config) (*Server, error) {
	if config.Agent == nil {
		return nil, errors.New("server needs an agent")
	}
	if config.Conversations == nil {
		return nil, errors.New("server needs a conversation store")
	}
	if config.Catalog == nil {
		config.Catalog = capabilities.DefaultCatalog()
	}
	if config.EventsTopic == "" {
		config.EventsTopic = events.DefaultTopic
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{config: config, router: mux.NewRouter()}
	s.setupRoutes()
	return s, nil
}

// Handler returns the routed handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router
	r.HandleFunc(APIPathHealth, s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc(APIPathChat, adaptHandler(s.handleChat)).Methods(http.MethodPost)

	r.HandleFunc(APIPathConversations, adaptHandler(s.handleListConversations)).Methods(http.MethodGet)
	r.HandleFunc(APIPathConversations+"/{id}", adaptHandler(s.handleGetConversation)).Methods(http.MethodGet)
	r.HandleFunc(APIPathConversations+"/{id}", adaptHandler(s.handleRenameConversation)).Methods(http.MethodPatch)
	r.HandleFunc(APIPathConversations+"/{id}", adaptHandler(s.handleDeleteConversation)).Methods(http.MethodDelete)
	r.HandleFunc(APIPathConversations+"/{id}/turns", adaptHandler(s.handleListTurns)).Methods(http.MethodGet)
	r.HandleFunc(APIPathConversations+"/{id}/events", adaptHandler(s.handleEvents)).Methods(http.MethodGet)

	r.HandleFunc(APIPathCatalog, adaptHandler(s.handleCatalog)).Methods(http.MethodGet)

	if s.config.Preferences != nil {
		r.HandleFunc(APIPathTheme, adaptHandler(s.handleGetTheme)).Methods(http.MethodGet)
		r.HandleFunc(APIPathTheme, adaptHandler(s.handlePutTheme)).Methods(http.MethodPut)
	}
	if s.config.Knowledge != nil {
		r.HandleFunc(APIPathTeachRule, adaptHandler(s.handleTeachRule)).Methods(http.MethodPost)
		r.HandleFunc(APIPathTeachFact, adaptHandler(s.handleTeachFact)).Methods(http.MethodPost)
	}
	if s.config.Metrics != nil {
		r.Handle(APIPathMetrics, s.config.Metrics).Methods(http.MethodGet)
	}

	r.Use(errorHandlerMiddleware)
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.config.BindAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// event streams end when ctx is cancelled
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", s.config.BindAddr).Msg("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errors.Wrap(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	return nil
}
