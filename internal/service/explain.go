package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/errmate/errmate/internal/explain"
	"github.com/errmate/errmate/internal/format"
	"github.com/errmate/errmate/internal/llm"
	"github.com/errmate/errmate/internal/metrics"
	"github.com/errmate/errmate/internal/model"
)

// ExplainConfig bounds explanation requests.
type ExplainConfig struct {
	MaxErrorTextLength   int
	MaxContextTextLength int
	// StructuredOutput requests a schema-constrained completion.
	StructuredOutput bool
}

// ExplainInput is an explanation request.
type ExplainInput struct {
	ErrorText   string
	ContextText string
	TechContext string
	IsAnonymous bool
}

// Explanation is a served explanation.
type Explanation struct {
	Explanation  string           `json:"explanation"`
	Resources    []model.Resource `json:"resources"`
	OutOfContext bool             `json:"outOfContext,omitempty"`
	Blocks       []format.Block   `json:"blocks"`
	Tabs         []format.Tab     `json:"tabs"`
}

// ExplainService turns error text into an explanation.
type ExplainService struct {
	usage     *UsageService
	queries   QueryStore
	completer Completer
	cfg       ExplainConfig
	logger    *slog.Logger
	metrics   metrics.Recorder
	now       func() time.Time
}

// NewExplainService creates a new ExplainService.
func NewExplainService(usage *UsageService, queries QueryStore, completer Completer, cfg ExplainConfig, logger *slog.Logger, recorder metrics.Recorder) *ExplainService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExplainService{
		usage:     usage,
		queries:   queries,
		completer: completer,
		cfg:       cfg,
		logger:    logger,
		metrics:   recorder,
		now:       time.Now,
	}
}

// Explain serves one explanation. user is nil for anonymous callers, who
// must set IsAnonymous. Signed-in free-tier callers consume one unit of
// daily quota, which is given back when no explanation is served.
func (s *ExplainService) Explain(ctx context.Context, user *model.User, in ExplainInput) (*Explanation, error) {
	if user == nil && !in.IsAnonymous {
		return nil, ErrUnauthorized
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}

	techContext := strings.TrimSpace(in.TechContext)
	if techContext == "" {
		techContext = model.DefaultTechContext
	}

	var reservation *Reservation
	if user != nil {
		r, err := s.usage.Reserve(ctx, user.ID)
		if err != nil {
			var limitErr *LimitError
			if errors.As(err, &limitErr) {
				s.metrics.IncExplanation(metrics.OutcomeLimited)
			}
			return nil, err
		}
		reservation = r
	}

	req := llm.Request{
		Prompt: explain.BuildPrompt(explain.PromptInput{
			ErrorText:   in.ErrorText,
			ContextText: in.ContextText,
			TechContext: techContext,
		}, s.cfg.StructuredOutput),
	}
	if s.cfg.StructuredOutput {
		req.ResponseFormat = explain.ResponseFormat()
	}

	start := time.Now()
	content, err := s.completer.Complete(ctx, req)
	s.metrics.ObserveCompletionDuration(time.Since(start))
	if err != nil {
		s.usage.Release(context.WithoutCancel(ctx), reservation)
		s.metrics.IncExplanation(metrics.OutcomeFailed)
		if errors.Is(err, llm.ErrEmptyCompletion) {
			return nil, ErrNoExplanation
		}
		s.logger.Error("completion failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}

	// The reservation is released even when the client has gone away.
	releaseCtx := context.WithoutCancel(ctx)

	parsed := explain.Parse(content)
	if parsed.OutOfContext {
		s.usage.Release(releaseCtx, reservation)
		s.metrics.IncExplanation(metrics.OutcomeOutOfContext)
		return &Explanation{
			Explanation:  parsed.Explanation,
			Resources:    []model.Resource{},
			OutOfContext: true,
			Blocks:       format.Format(parsed.Explanation),
			Tabs:         []format.Tab{},
		}, nil
	}
	// A reply that is only a resources block is served with an empty
	// explanation.
	if strings.TrimSpace(parsed.Explanation) == "" && len(parsed.Resources) == 0 {
		s.usage.Release(releaseCtx, reservation)
		s.metrics.IncExplanation(metrics.OutcomeFailed)
		return nil, ErrNoExplanation
	}

	if user != nil {
		s.persist(ctx, user.ID, in, techContext, parsed)
	}
	s.metrics.IncExplanation(metrics.OutcomeServed)

	return &Explanation{
		Explanation: parsed.Explanation,
		Resources:   parsed.Resources,
		Blocks:      format.Format(parsed.Explanation),
		Tabs:        format.Tabs(parsed.Resources),
	}, nil
}

func (s *ExplainService) validate(in ExplainInput) error {
	if strings.TrimSpace(in.ErrorText) == "" {
		return ErrErrorTextRequired
	}
	if s.cfg.MaxErrorTextLength > 0 && utf8.RuneCountInString(in.ErrorText) > s.cfg.MaxErrorTextLength {
		return ErrErrorTextTooLong
	}
	if s.cfg.MaxContextTextLength > 0 && utf8.RuneCountInString(in.ContextText) > s.cfg.MaxContextTextLength {
		return ErrContextTooLong
	}
	return nil
}

// persist stores the served explanation. Failures are logged only.
func (s *ExplainService) persist(ctx context.Context, userID string, in ExplainInput, techContext string, parsed explain.Result) {
	var contextText *string
	if c := strings.TrimSpace(in.ContextText); c != "" {
		contextText = &in.ContextText
	}

	q := &model.QueryResponse{
		ID:          ulid.Make().String(),
		UserID:      userID,
		ErrorText:   in.ErrorText,
		ContextText: contextText,
		TechContext: techContext,
		Explanation: parsed.Explanation,
		Resources:   parsed.Resources,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.queries.CreateQueryResponse(ctx, q); err != nil {
		s.logger.Error("failed to persist query response",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
