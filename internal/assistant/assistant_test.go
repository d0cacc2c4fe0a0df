package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/corpusqa/internal/answer"
	"github.com/dgallion1/corpusqa/internal/document"
)

type fakeSearcher struct {
	hits  []document.Hit
	err   error
	query string
	k     int
}

func (f *fakeSearcher) Search(_ context.Context, query string, k int) ([]document.Hit, error) {
	f.query, f.k = query, k
	return f.hits, f.err
}

type fakeProvider struct {
	reply string
	calls int
}

func (f *fakeProvider) Complete(context.Context, string, string) (string, error) {
	f.calls++
	return f.reply, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleQuestion_Answered(t *testing.T) {
	s := &fakeSearcher{hits: []document.Hit{{Chunk: document.Chunk{Text: "Срок обучения четыре года.", Source: "data1/program.docx"}, Rank: 1}}}
	p := &fakeProvider{reply: "Четыре года."}
	a := New(s, answer.New(p, answer.Options{}, discardLogger()), Options{K: 7}, discardLogger())

	res := a.HandleQuestion(context.Background(), "  Сколько длится обучение?  ")

	assert.Equal(t, answer.OutcomeAnswered, res.Outcome)
	assert.Equal(t, "Четыре года.", res.Text)
	assert.Equal(t, []string{"data1/program.docx"}, res.Sources)
	assert.Equal(t, "Сколько длится обучение?", s.query)
	assert.Equal(t, 7, s.k)
}

func TestHandleQuestion_NothingRetrieved(t *testing.T) {
	p := &fakeProvider{}
	a := New(&fakeSearcher{}, answer.New(p, answer.Options{}, discardLogger()), Options{}, discardLogger())

	res := a.HandleQuestion(context.Background(), "Вопрос вне корпуса")

	assert.Equal(t, answer.OutcomeNoInformation, res.Outcome)
	assert.Equal(t, answer.NoInformationMessage, res.Text)
	assert.Zero(t, p.calls)
}

func TestHandleQuestion_RetrievalFailureIsProviderError(t *testing.T) {
	p := &fakeProvider{}
	s := &fakeSearcher{err: errors.New("embed query: dial tcp 127.0.0.1:11434: connect: connection refused")}
	a := New(s, answer.New(p, answer.Options{}, discardLogger()), Options{}, discardLogger())

	res := a.HandleQuestion(context.Background(), "Вопрос")

	require.Equal(t, answer.OutcomeProviderError, res.Outcome)
	assert.True(t, strings.HasPrefix(res.Text, "Ошибка: "))
	assert.NotContains(t, res.Text, "127.0.0.1")
	assert.Zero(t, p.calls)
}
