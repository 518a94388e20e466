package service

import (
	"fmt"
	"strings"

	"cvrag/internal/domain"
)

const fallbackSource = "CV Section"

const instructions = `You are a helpful assistant answering questions about %s's CV on their behalf.
Answer only from the CV context below and the conversation so far.
If the context does not contain the answer, say so instead of guessing.
Keep answers concise and professional.`

// BuildPrompt assembles the turns sent to the model: instructions with the
// retrieved context, then the history, then the new message.
func BuildPrompt(owner string, results []domain.SearchResult, history []domain.Turn, message string) []domain.Turn {
	if owner == "" {
		owner = "the candidate"
	}
	var b strings.Builder
	fmt.Fprintf(&b, instructions, owner)
	b.WriteString("\n\nCV context:\n")
	if len(results) == 0 {
		b.WriteString("(no relevant CV content found)\n")
	}
	for _, r := range results {
		fmt.Fprintf(&b, "\n[%s]\n%s\n", sectionLabel(r.Chunk.Section), strings.TrimSpace(r.Chunk.Text))
	}
	turns := make([]domain.Turn, 0, len(history)+2)
	turns = append(turns, domain.Turn{Role: domain.RoleSystem, Content: b.String()})
	turns = append(turns, history...)
	turns = append(turns, domain.Turn{Role: domain.RoleUser, Content: message})
	return turns
}

// Sources lists the section labels of results, deduplicated in rank order.
func Sources(results []domain.SearchResult) []string {
	seen := make(map[string]struct{}, len(results))
	out := make([]string, 0, len(results))
	for _, r := range results {
		label := sectionLabel(r.Chunk.Section)
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}

func sectionLabel(s string) string {
	if strings.TrimSpace(s) == "" {
		return fallbackSource
	}
	return s
}
