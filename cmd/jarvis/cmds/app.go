package cmds

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/go-go-golems/jarvis/pkg/agent"
	"github.com/go-go-golems/jarvis/pkg/capabilities"
	"github.com/go-go-golems/jarvis/pkg/conversation"
	"github.com/go-go-golems/jarvis/pkg/events"
	"github.com/go-go-golems/jarvis/pkg/inference/engine/factory"
	"github.com/go-go-golems/jarvis/pkg/inference/middleware"
	"github.com/go-go-golems/jarvis/pkg/inference/session"
	"github.com/go-go-golems/jarvis/pkg/inference/toolloop"
	"github.com/go-go-golems/jarvis/pkg/inference/toolloop/enginebuilder"
	"github.com/go-go-golems/jarvis/pkg/knowledge"
	"github.com/go-go-golems/jarvis/pkg/persistence"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/gemini"
	"github.com/go-go-golems/jarvis/pkg/steps/ai/settings"
)

// app holds the stores shared by every command. The agent itself is only
// built by the commands that talk to a model, see initAgent.
type app struct {
	settings      *settings.StepSettings
	db            *sql.DB
	state         *persistence.State
	conversations *conversation.Manager
	sync          *persistence.SyncConversations
	knowledge     *knowledge.Base
	catalog       *capabilities.Catalog

	gemini   *gemini.Client
	sessions *session.Registry
	agent    *agent.Service
}

func loadSettings() (*settings.StepSettings, error) {
	ss, err := settings.NewStepSettings()
	if err != nil {
		return nil, err
	}
	if err := ss.UpdateFromViper(viper.GetViper()); err != nil {
		return nil, err
	}
	return ss, nil
}

func databasePath() (string, error) {
	if p := viper.GetString("db"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "locate home directory")
	}
	dir := filepath.Join(home, ".jarvis")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", dir)
	}
	return filepath.Join(dir, "jarvis.db"), nil
}

// openApp opens the database and restores the persisted conversations.
func openApp(ctx context.Context) (*app, error) {
	ss, err := loadSettings()
	if err != nil {
		return nil, err
	}
	path, err := databasePath()
	if err != nil {
		return nil, err
	}
	dsn, err := persistence.SQLiteDSNForFile(path)
	if err != nil {
		return nil, err
	}
	db, err := persistence.OpenSQLite(dsn)
	if err != nil {
		return nil, err
	}
	a := &app{settings: ss, db: db}
	if err := a.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug().Str("db", path).Int("conversations", len(a.conversations.List())).Msg("Opened store")
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	kv, err := persistence.NewSQLiteKV(a.db)
	if err != nil {
		return err
	}
	a.state = persistence.NewState(kv)
	a.conversations = conversation.NewManager()
	a.conversations.Restore(a.state.LoadConversations(ctx))
	a.sync = &persistence.SyncConversations{State: a.state, Manager: a.conversations}

	a.knowledge, err = knowledge.NewBase(a.db)
	if err != nil {
		return err
	}
	a.catalog, err = capabilities.NewCatalog(viper.GetStringSlice("capabilities")...)
	return err
}

// initAgent connects to Gemini and assembles the orchestration loop. Loop
// events go to sinks.
func (a *app) initAgent(ctx context.Context, sinks ...events.EventSink) error {
	ss := a.settings
	if err := ss.Validate(); err != nil {
		return err
	}
	client, err := gemini.NewClient(ctx, ss)
	if err != nil {
		return err
	}
	provider, err := gemini.NewProvider(client, ss.Gemini)
	if err != nil {
		return err
	}
	base, err := factory.NewStandardEngineFactory(client).CreateEngine(ctx, ss)
	if err != nil {
		return err
	}

	loopCfg := toolloop.DefaultLoopConfig()
	if ss.Chat.MaxIterations > 0 {
		loopCfg.MaxIterations = ss.Chat.MaxIterations
	}
	builder := enginebuilder.New(
		enginebuilder.WithBase(base),
		enginebuilder.WithMiddlewares(
			middleware.NewSystemPromptMiddleware(ss.Chat.SystemPrompt),
			middleware.NewLoggingMiddleware(log.Logger),
		),
		enginebuilder.WithExecutor(capabilities.NewSet(provider, a.catalog)),
		enginebuilder.WithLoopConfig(loopCfg),
		enginebuilder.WithEventSinks(sinks...),
		enginebuilder.WithPersister(a.sync),
	)

	a.gemini = client
	a.sessions = session.NewRegistry(builder)
	opts := []agent.Option{
		agent.WithTurnLogger(a.knowledge),
		agent.WithSaver(a.sync),
		agent.WithEngineFor(ss.Chat.EngineFor),
		agent.WithRuleLearner(a.knowledge),
	}
	if viper.GetBool("rules") {
		opts = append(opts, agent.WithRules(a.knowledge))
	}
	a.agent, err = agent.NewService(a.conversations, a.sessions, opts...)
	if err != nil {
		return err
	}
	log.Info().
		Fields(ss.GetMetadata()).
		Int("capabilities", len(a.catalog.Descriptors())).
		Int("max_iterations", loopCfg.MaxIterations).
		Msg("Agent ready")
	return nil
}

// Close cancels the active runs and closes the database.
func (a *app) Close() error {
	if a.sessions != nil {
		for _, id := range a.sessions.Running() {
			a.sessions.Remove(id)
		}
	}
	return a.db.Close()
}
