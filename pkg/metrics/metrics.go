package metrics

import (
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/iancoleman/strcase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jarvis/pkg/events"
	"github.com/go-go-golems/jarvis/pkg/version"
)

const namespace = "jarvis"

// Run outcomes used as the "outcome" label of jarvis_runs_total.
const (
	OutcomeAnswer         = "answer"
	OutcomeIterationLimit = "iteration_limit"
	OutcomeError          = "error"
)

// NewBuildInfoCollector exports the build metadata as labels with a
// constant value of 1.
func NewBuildInfoCollector() prometheus.Collector {
	v := version.Get()
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "jarvis build metadata exposed as labels with a constant value of 1.",
			ConstLabels: prometheus.Labels{
				"version":    v.Version,
				"git_commit": v.GitCommit,
				"build_date": v.BuildDate,
				"go_version": v.GoVersion,
				"platform":   v.Platform,
			},
		},
		func() float64 { return 1 },
	)
}

// Metrics counts agent loop activity from the event stream. It is an
// events.EventSink and can also consume the watermill topic directly.
type Metrics struct {
	registry *prometheus.Registry

	runs               *prometheus.CounterVec
	modelRequests      *prometheus.CounterVec
	tokens             *prometheus.CounterVec
	capabilityCalls    *prometheus.CounterVec
	capabilityDuration *prometheus.HistogramVec
	liveTransitions    *prometheus.CounterVec
}

var _ events.EventSink = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished agent loop runs by outcome.",
		}, []string{"outcome"}),
		modelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Orchestration model requests by model.",
		}, []string{"model"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_total",
			Help:      "Tokens reported by the orchestration model.",
		}, []string{"direction"}),
		capabilityCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_invocations_total",
			Help:      "Capability invocations by capability and result.",
		}, []string{"capability", "result"}),
		capabilityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_duration_seconds",
			Help:      "Capability execution time.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 180, 600},
		}, []string{"capability"}),
		liveTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_state_transitions_total",
			Help:      "Live voice session transitions by target state.",
		}, []string{"state"}),
	}
	m.registry.MustRegister(
		NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs, m.modelRequests, m.tokens,
		m.capabilityCalls, m.capabilityDuration, m.liveTransitions,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// label normalizes capability names and error kinds, so
// "generateTextWithGoogleSearch" becomes "generate_text_with_google_search".
func label(s string) string {
	if s == "" {
		return "unknown"
	}
	return strcase.ToSnake(s)
}

func (m *Metrics) PublishEvent(e events.Event) error {
	switch ev := e.(type) {
	case *events.EventInference:
		meta := ev.Metadata()
		model := meta.Model
		if model == "" {
			model = "unknown"
		}
		m.modelRequests.WithLabelValues(model).Inc()
		if meta.Usage != nil {
			m.tokens.WithLabelValues("input").Add(float64(meta.Usage.InputTokens))
			m.tokens.WithLabelValues("output").Add(float64(meta.Usage.OutputTokens))
			m.tokens.WithLabelValues("cached").Add(float64(meta.Usage.CachedTokens))
		}
	case *events.EventToolCallExecutionResult:
		result := "ok"
		if ev.ToolResult.ErrorKind != "" {
			result = label(ev.ToolResult.ErrorKind)
		}
		name := label(ev.ToolResult.Name)
		m.capabilityCalls.WithLabelValues(name, result).Inc()
		m.capabilityDuration.WithLabelValues(name).Observe((time.Duration(ev.DurationMs) * time.Millisecond).Seconds())
	case *events.EventFinal:
		m.runs.WithLabelValues(OutcomeAnswer).Inc()
	case *events.EventIterationLimit:
		m.runs.WithLabelValues(OutcomeIterationLimit).Inc()
	case *events.EventError:
		m.runs.WithLabelValues(OutcomeError).Inc()
	case *events.EventLiveState:
		m.liveTransitions.WithLabelValues(label(ev.To)).Inc()
	}
	return nil
}

// HandleMessage is a watermill handler feeding events published by a
// WatermillSink into the collectors. Undecodable messages are logged and
// acked.
func (m *Metrics) HandleMessage(msg *message.Message) error {
	defer msg.Ack()
	e, err := events.NewEventFromJson(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("message_id", msg.UUID).Msg("metrics: skipping undecodable event")
		return nil
	}
	return m.PublishEvent(e)
}
