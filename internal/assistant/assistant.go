// Package assistant answers one user question end to end.
package assistant

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/corpusqa/internal/answer"
	"github.com/dgallion1/corpusqa/internal/document"
)

// Searcher retrieves the chunks relevant to a question.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]document.Hit, error)
}

// Answerer writes a grounded answer from retrieved chunks.
type Answerer interface {
	Answer(ctx context.Context, hits []document.Hit, question string) answer.Result
}

// Assistant holds everything a question needs. It is built once at startup
// and shared by all requests.
type Assistant struct {
	searcher Searcher
	answerer Answerer
	k        int
	errMax   int
	log      *slog.Logger
}

type Options struct {
	K               int
	ErrorMessageMax int
}

func New(searcher Searcher, answerer Answerer, opts Options, log *slog.Logger) *Assistant {
	if opts.K <= 0 {
		opts.K = 10
	}
	if opts.ErrorMessageMax <= 0 {
		opts.ErrorMessageMax = 200
	}
	return &Assistant{searcher: searcher, answerer: answerer, k: opts.K, errMax: opts.ErrorMessageMax, log: log}
}

// HandleQuestion retrieves context for text and answers it. A retrieval
// failure is reported to the user the same way as a model failure.
func (a *Assistant) HandleQuestion(ctx context.Context, text string) answer.Result {
	start := time.Now()
	question := strings.TrimSpace(text)

	hits, err := a.searcher.Search(ctx, question, a.k)
	if err != nil {
		a.log.Error("retrieval failed", "error", err)
		return answer.Result{
			Text:    answer.ErrorMessage(err, a.errMax),
			Outcome: answer.OutcomeProviderError,
			Sources: []string{},
		}
	}

	res := a.answerer.Answer(ctx, hits, question)
	a.log.Info("question handled",
		"outcome", res.Outcome,
		"hits", len(hits),
		"sources", len(res.Sources),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}
