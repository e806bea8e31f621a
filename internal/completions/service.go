package completions

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sciphi-chat/internal/chat"
	"sciphi-chat/pkg/api"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "sciphi-chat/internal/completions"

var ErrMissingAPIKey = errors.New("upstream api key is not configured")

// Service turns a completion request into an upstream call. It backs both the
// completions endpoint and, in process, the workspace controllers.
type Service struct {
	provider Provider
	recorder *Recorder

	tracer   trace.Tracer
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewService returns a service that fails every request with ErrMissingAPIKey
// when provider is nil. recorder may be nil.
func NewService(provider Provider, recorder *Recorder) *Service {
	meter := otel.Meter(instrumentationName)

	requests, err := meter.Int64Counter(
		"completions.requests",
		metric.WithDescription("Upstream completion requests by outcome"),
	)
	if err != nil {
		slog.Warn("failed to create counter", "name", "completions.requests", "error", err)
	}
	latency, err := meter.Float64Histogram(
		"completions.duration",
		metric.WithDescription("Upstream completion duration in milliseconds"),
	)
	if err != nil {
		slog.Warn("failed to create histogram", "name", "completions.duration", "error", err)
	}

	return &Service{
		provider: provider,
		recorder: recorder,
		tracer:   otel.Tracer(instrumentationName),
		requests: requests,
		latency:  latency,
	}
}

func (s *Service) Configured() bool {
	return s.provider != nil
}

// Turns maps the client dialogue onto upstream roles and appends the prompt as
// the final user turn.
func Turns(req api.CompletionRequest) []Turn {
	turns := make([]Turn, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		role := RoleUser
		if m.AI {
			role = RoleAssistant
		}
		turns = append(turns, Turn{Role: role, Content: m.Text})
	}
	return append(turns, Turn{Role: RoleUser, Content: req.Prompt})
}

func (s *Service) Complete(ctx context.Context, req api.CompletionRequest) (api.CompletionResponse, error) {
	if s.provider == nil {
		return api.CompletionResponse{}, ErrMissingAPIKey
	}

	model := req.GptVersion
	if model == "" {
		model = chat.DefaultModel
	}
	turns := Turns(req)

	ctx, span := s.tracer.Start(ctx, "upstream_completion", trace.WithAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.turns", len(turns)),
	))
	defer span.End()

	start := time.Now()
	reply, err := s.provider.Complete(ctx, model, turns)
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := metric.WithAttributes(attribute.String("llm.model", model), attribute.String("outcome", outcome))
	if s.requests != nil {
		s.requests.Add(ctx, 1, attrs)
	}
	if s.latency != nil {
		s.latency.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}

	if s.recorder != nil {
		ex := exchange{model: model, prompt: req.Prompt, turns: turns, reply: reply, err: err, latency: elapsed}
		if recErr := s.recorder.record(ctx, ex); recErr != nil {
			slog.Warn("unable to record completion", "error", recErr)
		}
	}

	if err != nil {
		slog.Error("upstream completion failed", "model", model, "error", err)
		return api.CompletionResponse{}, err
	}

	if reply.Context == nil {
		reply.Context = []api.ContextItem{}
	}

	slog.Info("upstream completion", "model", model, "turns", len(turns), "latency_ms", elapsed.Milliseconds())
	return api.CompletionResponse{Response: reply.Text, Context: reply.Context}, nil
}
