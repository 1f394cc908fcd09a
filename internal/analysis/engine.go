// Package analysis turns the aggregate record into a written financial
// analysis, through a generative model when one is configured and a
// deterministic summary otherwise.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/smartfi/internal/domain"
	"github.com/ashureev/smartfi/internal/store"
)

// ErrNoCredential means no AI service credential is configured.
var ErrNoCredential = errors.New("no AI service credential configured")

// ServiceError means the AI service could not produce an answer.
type ServiceError struct {
	Backend    string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("analysis service error [%s]: status %d", e.Backend, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("analysis service error [%s]: %v", e.Backend, e.Err)
	default:
		return fmt.Sprintf("analysis service error [%s]", e.Backend)
	}
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RecordSource provides the current aggregate record.
type RecordSource interface {
	Record() domain.Record
}

// Path names how a result was produced.
type Path string

const (
	PathAI       Path = "ai"
	PathFallback Path = "fallback"
)

// Result is one analysis answer.
type Result struct {
	Question string `json:"question"`
	Text     string `json:"text"`
	Path     Path   `json:"path"`
}

// Message roles in the history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Config holds the engine's collaborators. A nil Generator means no
// credential is configured; a nil History disables history.
type Config struct {
	Generator    Generator
	Records      RecordSource
	History      store.MessageStore
	SessionID    string
	Timeout      time.Duration
	HistoryLimit int
	Logger       *slog.Logger
}

// Engine answers analysis questions. It never fails: every error on the AI
// path falls back to the deterministic summary.
type Engine struct {
	gen          Generator
	records      RecordSource
	history      store.MessageStore
	sessionID    string
	timeout      time.Duration
	historyLimit int
	logger       *slog.Logger
	now          func() time.Time
}

// NewEngine creates an engine from cfg.
func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &Engine{
		gen:          cfg.Generator,
		records:      cfg.Records,
		history:      cfg.History,
		sessionID:    cfg.SessionID,
		timeout:      cfg.Timeout,
		historyLimit: cfg.HistoryLimit,
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

// Analyze answers question and returns non-empty text.
func (e *Engine) Analyze(ctx context.Context, question string) string {
	return e.AnalyzeDetailed(ctx, question).Text
}

// AnalyzeDetailed answers question and reports which path produced the text.
func (e *Engine) AnalyzeDetailed(ctx context.Context, question string) Result {
	question = strings.TrimSpace(question)
	if question == "" {
		question = DefaultQuestion
	}

	start := time.Now()
	rec := e.records.Record()
	res := Result{Question: question, Path: PathAI}

	text, err := e.generate(ctx, question, rec)
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			e.logger.Debug("No AI credential, using fallback analysis")
		} else {
			e.logger.Warn("AI analysis failed, using fallback", "error", err)
		}
		text = Fallback(rec)
		res.Path = PathFallback
	}
	res.Text = text

	e.logger.Info("Analysis completed",
		"path", res.Path,
		"sources", rec.Len(),
		"duration_ms", time.Since(start).Milliseconds())

	e.remember(ctx, res)
	return res
}

func (e *Engine) generate(ctx context.Context, question string, rec domain.Record) (string, error) {
	if e.gen == nil {
		return "", ErrNoCredential
	}

	prompt, err := BuildPrompt(question, rec)
	if err != nil {
		return "", err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	text, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", &ServiceError{Backend: "generator", Err: errMissingText}
	}
	return text, nil
}

// remember appends the exchange to the history. Failures are logged only.
func (e *Engine) remember(ctx context.Context, res Result) {
	if e.history == nil {
		return
	}
	now := e.now()
	msgs := []*domain.AnalysisMessage{
		{SessionID: e.sessionID, Role: RoleUser, Content: res.Question, CreatedAt: now},
		{SessionID: e.sessionID, Role: RoleAssistant, Content: res.Text, Source: string(res.Path), CreatedAt: now},
	}
	for _, m := range msgs {
		if err := e.history.AppendMessage(ctx, m); err != nil {
			e.logger.Warn("Failed to store analysis history", "role", m.Role, "error", err)
			return
		}
	}
}

// History returns the most recent analysis exchanges, oldest first.
func (e *Engine) History(ctx context.Context) ([]*domain.AnalysisMessage, error) {
	if e.history == nil {
		return nil, nil
	}
	msgs, err := e.history.ListMessages(ctx, e.sessionID, e.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list analysis history: %w", err)
	}
	return msgs, nil
}

// ClearHistory deletes the session's analysis history.
func (e *Engine) ClearHistory(ctx context.Context) (int64, error) {
	if e.history == nil {
		return 0, nil
	}
	n, err := e.history.DeleteMessages(ctx, e.sessionID)
	if err != nil {
		return 0, fmt.Errorf("clear analysis history: %w", err)
	}
	return n, nil
}
