package answer

import (
	"strings"

	"github.com/dgallion1/corpusqa/internal/document"
)

// DefaultSystemPrompt is the persona used when no prompt is configured.
const DefaultSystemPrompt = `Ты — официальный методист-юрист Сретенской духовной академии.
Отвечай только по контексту. Ссылайся на источники.
Если в контексте нет ответа на вопрос, прямо скажи об этом и не додумывай.`

// NoInformationMessage is returned without calling the model when nothing
// relevant was retrieved.
const NoInformationMessage = "В документах нет информации по этому вопросу."

// unnamedSource labels chunks that carry no source identifier.
const unnamedSource = "документ"

// BuildContext renders hits as "--- source ---" headed blocks separated by
// blank lines, in rank order.
func BuildContext(hits []document.Hit) string {
	var sb strings.Builder
	for i, h := range hits {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("--- ")
		sb.WriteString(sourceOf(h))
		sb.WriteString(" ---\n")
		sb.WriteString(strings.TrimSpace(h.Chunk.Text))
	}
	return sb.String()
}

// BuildUserTurn combines the context block with the question.
func BuildUserTurn(context, question string) string {
	var sb strings.Builder
	sb.WriteString("КОНТЕКСТ:\n")
	sb.WriteString(context)
	sb.WriteString("\n\nВОПРОС: ")
	sb.WriteString(question)
	return sb.String()
}

func sourceOf(h document.Hit) string {
	if s := strings.TrimSpace(h.Chunk.Source); s != "" {
		return s
	}
	return unnamedSource
}
