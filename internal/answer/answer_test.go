package answer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/corpusqa/internal/document"
	"github.com/dgallion1/corpusqa/internal/llm"
)

type fakeProvider struct {
	reply  string
	err    error
	calls  int
	system string
	user   string
}

func (f *fakeProvider) Complete(_ context.Context, system, user string) (string, error) {
	f.calls++
	f.system, f.user = system, user
	return f.reply, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hit(source, text string, rank int) document.Hit {
	return document.Hit{Chunk: document.Chunk{Text: text, Source: source}, Rank: rank}
}

func TestAnswer_NoHitsSkipsProvider(t *testing.T) {
	p := &fakeProvider{reply: "should not be used"}
	a := New(p, Options{}, discardLogger())

	res := a.Answer(context.Background(), nil, "Когда начинается приём?")

	assert.Equal(t, NoInformationMessage, res.Text)
	assert.Equal(t, OutcomeNoInformation, res.Outcome)
	assert.Empty(t, res.Sources)
	assert.Zero(t, p.calls)
}

func TestAnswer_BuildsGroundedPrompt(t *testing.T) {
	p := &fakeProvider{reply: "Приём начинается 20 июня [data1/rules.pdf]."}
	a := New(p, Options{SystemPrompt: "Отвечай по контексту."}, discardLogger())
	hits := []document.Hit{
		hit("data1/rules.pdf", "  Приём документов начинается 20 июня.  ", 1),
		hit("https://example.org/admission/", "Сроки приёма публикуются на сайте.", 2),
		hit("data1/rules.pdf", "Документы подаются лично.", 3),
	}

	res := a.Answer(context.Background(), hits, "Когда начинается приём?")

	require.Equal(t, 1, p.calls)
	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, p.reply, res.Text)
	assert.Equal(t, []string{"data1/rules.pdf", "https://example.org/admission/"}, res.Sources)
	assert.Equal(t, "Отвечай по контексту.", p.system)

	want := "КОНТЕКСТ:\n" +
		"--- data1/rules.pdf ---\nПриём документов начинается 20 июня.\n\n" +
		"--- https://example.org/admission/ ---\nСроки приёма публикуются на сайте.\n\n" +
		"--- data1/rules.pdf ---\nДокументы подаются лично." +
		"\n\nВОПРОС: Когда начинается приём?"
	assert.Equal(t, want, p.user)
}

func TestAnswer_DefaultSystemPrompt(t *testing.T) {
	p := &fakeProvider{reply: "ok"}
	New(p, Options{}, discardLogger()).Answer(context.Background(), []document.Hit{hit("", "текст", 1)}, "q")

	assert.Equal(t, DefaultSystemPrompt, p.system)
	assert.Contains(t, p.user, "--- документ ---", "missing source gets a placeholder")
}

func TestAnswer_ProviderErrorIsBoundedAndSanitised(t *testing.T) {
	secret := "dial tcp 10.0.0.7:443: token=hf_SECRET " + strings.Repeat("x", 500)
	p := &fakeProvider{err: errors.New(secret)}
	a := New(p, Options{ErrorMessageMax: 200}, discardLogger())

	res := a.Answer(context.Background(), []document.Hit{hit("a", "текст", 1)}, "q")

	assert.Equal(t, OutcomeProviderError, res.Outcome)
	assert.True(t, strings.HasPrefix(res.Text, "Ошибка: "))
	assert.LessOrEqual(t, utf8.RuneCountInString(res.Text), 200)
	assert.NotContains(t, res.Text, "hf_SECRET")
	assert.NotContains(t, res.Text, "10.0.0.7")
}

func TestErrorMessage_Categories(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), msgTimeout},
		{"rate limited", &llm.RetryableError{StatusCode: 429}, msgRateLimited},
		{"server error", fmt.Errorf("wrapped: %w", &llm.RetryableError{StatusCode: 503}), msgUnavailable},
		{"connection refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, msgUnavailable},
		{"other", errors.New("decode response: unexpected EOF"), msgGeneric},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, "Ошибка: "+tc.want, ErrorMessage(tc.err, 200))
		})
	}
}

func TestErrorMessage_Truncates(t *testing.T) {
	got := ErrorMessage(errors.New("x"), 10)
	assert.Equal(t, 10, utf8.RuneCountInString(got))
	assert.True(t, strings.HasPrefix(got, "Ошибка: "))
}
