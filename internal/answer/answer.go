// Package answer turns retrieved chunks and a question into a grounded
// answer with a single language-model call.
package answer

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dgallion1/corpusqa/internal/chunker"
	"github.com/dgallion1/corpusqa/internal/document"
	"github.com/dgallion1/corpusqa/internal/llm"
)

// Outcome classifies how a question was handled.
type Outcome string

const (
	OutcomeAnswered      Outcome = "answered"
	OutcomeNoInformation Outcome = "no_information"
	OutcomeProviderError Outcome = "provider_error"
)

// Result is what the user sees, plus the sources that backed it.
type Result struct {
	Text    string   `json:"answer"`
	Outcome Outcome  `json:"outcome"`
	Sources []string `json:"sources"`
}

type Options struct {
	SystemPrompt string
	// ErrorMessageMax bounds provider-error messages, in characters.
	ErrorMessageMax int
}

type Answerer struct {
	provider llm.Provider
	system   string
	errMax   int
	log      *slog.Logger
}

func New(provider llm.Provider, opts Options, log *slog.Logger) *Answerer {
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.ErrorMessageMax <= 0 {
		opts.ErrorMessageMax = 200
	}
	return &Answerer{provider: provider, system: opts.SystemPrompt, errMax: opts.ErrorMessageMax, log: log}
}

// Answer asks the model once. With no hits it answers NoInformationMessage
// without calling the model. Provider failures become a short, user-safe
// message; the raw error is only logged.
func (a *Answerer) Answer(ctx context.Context, hits []document.Hit, question string) Result {
	if len(hits) == 0 {
		return Result{Text: NoInformationMessage, Outcome: OutcomeNoInformation, Sources: []string{}}
	}

	user := BuildUserTurn(BuildContext(hits), question)
	sources := distinctSources(hits)

	start := time.Now()
	text, err := a.provider.Complete(ctx, a.system, user)
	if err != nil {
		a.log.Error("answer generation failed",
			"error", err,
			"hits", len(hits),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return Result{Text: ErrorMessage(err, a.errMax), Outcome: OutcomeProviderError, Sources: sources}
	}

	a.log.Info("answer generated",
		"hits", len(hits),
		"prompt_tokens_est", chunker.EstimateTokens(a.system)+chunker.EstimateTokens(user),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Result{Text: text, Outcome: OutcomeAnswered, Sources: sources}
}

func distinctSources(hits []document.Hit) []string {
	seen := make(map[string]bool, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		s := sourceOf(h)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

const errorPrefix = "Ошибка: "

const (
	msgTimeout     = "сервис ответов не ответил вовремя, попробуйте позже."
	msgRateLimited = "слишком много запросов, попробуйте чуть позже."
	msgUnavailable = "сервис ответов временно недоступен."
	msgGeneric     = "не удалось получить ответ, попробуйте переформулировать вопрос."
)

// ErrorMessage maps err to a user-facing message of at most max characters.
func ErrorMessage(err error, max int) string {
	msg := errorPrefix + category(err)
	r := []rune(msg)
	if max > 0 && len(r) > max {
		return string(r[:max])
	}
	return msg
}

func category(err error) string {
	var retry *llm.RetryableError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	case errors.As(err, &retry) && retry.StatusCode == http.StatusTooManyRequests:
		return msgRateLimited
	case errors.As(err, &retry):
		return msgUnavailable
	case errors.As(err, &netErr) && netErr.Timeout():
		return msgTimeout
	case errors.As(err, &netErr):
		return msgUnavailable
	default:
		return msgGeneric
	}
}
