package generation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bull/rag-server/internal/domain"
)

// reply is the JSON object the model is asked to return.
type reply struct {
	Answer      string        `json:"answer"`
	SourcesUsed []flexibleInt `json:"sources_used"`
	Confidence  string        `json:"confidence"`
}

// flexibleInt accepts 3, "3" and "source_id: 3".
type flexibleInt int

func (f *flexibleInt) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexibleInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if i := strings.LastIndexAny(s, ": "); i >= 0 {
		s = s[i+1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("source id %q is not a number", s)
	}
	*f = flexibleInt(n)
	return nil
}

// ParseCompletion decodes a model reply. Markdown code fences are stripped;
// a reply that is not JSON is returned as plain answer text with no sources.
func ParseCompletion(raw string) (*domain.Completion, error) {
	text := stripFences(strings.TrimSpace(raw))
	if text == "" {
		return nil, fmt.Errorf("empty model response")
	}

	var r reply
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return &domain.Completion{Text: text}, nil
	}
	if strings.TrimSpace(r.Answer) == "" {
		return nil, fmt.Errorf("model response has no answer")
	}

	c := &domain.Completion{
		Text:       r.Answer,
		Confidence: normalizeConfidence(r.Confidence),
	}
	seen := make(map[int]bool, len(r.SourcesUsed))
	for _, id := range r.SourcesUsed {
		if !seen[int(id)] {
			seen[int(id)] = true
			c.CitedSources = append(c.CitedSources, int(id))
		}
	}
	return c, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// normalizeConfidence maps unknown values to "medium"; empty stays empty.
func normalizeConfidence(c string) string {
	switch strings.ToLower(strings.TrimSpace(c)) {
	case "":
		return ""
	case "high":
		return "high"
	case "low":
		return "low"
	default:
		return "medium"
	}
}
