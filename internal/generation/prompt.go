// Package generation produces grounded answers from an assembled context
// using OpenAI or Gemini chat models.
package generation

import (
	"strings"

	"github.com/bull/rag-server/internal/domain"
)

// systemInstruction constrains the model to the supplied sources and fixes
// the JSON reply shape parsed by ParseCompletion.
const systemInstruction = `You are a helpful assistant that answers questions based ONLY on the provided context sources.

RULES:
1. Answer ONLY using information from the context section below.
2. The context is a list of facts taken from verified sources.
3. After answering, cite the sources that helped you answer. Cite each source at most once.
4. If the answer requires information not in the sources, say "I don't have enough information to answer that question."
5. Do not use external knowledge or make assumptions beyond the sources.
6. Keep answers concise and to the point.

RESPONSE FORMAT:
Respond with valid JSON in exactly this structure:
{
  "answer": "Your complete answer",
  "sources_used": [1, 2],
  "confidence": "high"
}

Where:
- answer: your response
- sources_used: the source ids you cited
- confidence: "high", "medium" or "low" depending on how well the sources answer the question`

// SystemInstruction returns the fixed system prompt.
func SystemInstruction() string {
	return systemInstruction
}

// BuildUserPrompt renders the context, prior conversation and question.
func BuildUserPrompt(p domain.Prompt) string {
	var b strings.Builder

	b.WriteString("CONTEXT SOURCES:\n")
	b.WriteString("**START OF CONTEXT SECTION**\n\n")
	if strings.TrimSpace(p.Context) == "" {
		b.WriteString("No context available.\n\n")
	} else {
		b.WriteString(p.Context)
	}
	b.WriteString("**END OF CONTEXT SECTION**\n\n")

	if len(p.History) > 0 {
		b.WriteString("Previous Conversation:\n")
		for _, m := range p.History {
			b.WriteString(roleLabel(m.Role))
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("USER QUESTION:\n")
	b.WriteString(p.Query)
	b.WriteString("\n\nProvide your JSON response now:")
	return b.String()
}

func roleLabel(role string) string {
	if role == "" {
		return "User"
	}
	return strings.ToUpper(role[:1]) + strings.ToLower(role[1:])
}
