package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-server/internal/domain"
)

func TestBuildUserPrompt(t *testing.T) {
	p := domain.Prompt{
		Query:   "What is the refund window?",
		Context: "[source_id: 1]\n[source_content_start]\n30 days\n[source_content_end]\n\n",
		History: []domain.Message{
			{Role: "user", Content: "hi"},
			{Role: "ASSISTANT", Content: "hello"},
		},
	}
	got := BuildUserPrompt(p)

	assert.Contains(t, got, "**START OF CONTEXT SECTION**\n\n[source_id: 1]")
	assert.Contains(t, got, "[source_content_end]\n\n**END OF CONTEXT SECTION**")
	assert.Contains(t, got, "Previous Conversation:\nUser: hi\nAssistant: hello\n")
	assert.True(t, strings.HasSuffix(got, "USER QUESTION:\nWhat is the refund window?\n\nProvide your JSON response now:"))

	ctxEnd := strings.Index(got, "**END OF CONTEXT SECTION**")
	histStart := strings.Index(got, "Previous Conversation:")
	assert.Less(t, ctxEnd, histStart)
}

func TestBuildUserPrompt_NoContextNoHistory(t *testing.T) {
	got := BuildUserPrompt(domain.Prompt{Query: "q"})
	assert.Contains(t, got, "No context available.")
	assert.NotContains(t, got, "Previous Conversation")
}

func TestParseCompletion(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantText string
		wantIDs  []int
		wantConf string
		wantErr  bool
	}{
		{
			name:     "plain json",
			raw:      `{"answer":"Thirty days.","sources_used":[2,1,2],"confidence":"HIGH"}`,
			wantText: "Thirty days.",
			wantIDs:  []int{2, 1},
			wantConf: "high",
		},
		{
			name:     "fenced json with string ids",
			raw:      "```json\n{\"answer\":\"Yes\",\"sources_used\":[\"3\",\"source_id: 4\"],\"confidence\":\"sure\"}\n```",
			wantText: "Yes",
			wantIDs:  []int{3, 4},
			wantConf: "medium",
		},
		{
			name:     "not json",
			raw:      "Just some prose.",
			wantText: "Just some prose.",
		},
		{
			name:    "empty",
			raw:     "   ",
			wantErr: true,
		},
		{
			name:    "json without answer",
			raw:     `{"sources_used":[1]}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseCompletion(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, c.Text)
			assert.Equal(t, tt.wantIDs, c.CitedSources)
			assert.Equal(t, tt.wantConf, c.Confidence)
		})
	}
}

func TestSystemInstruction_DescribesReplyShape(t *testing.T) {
	s := SystemInstruction()
	for _, key := range []string{`"answer"`, `"sources_used"`, `"confidence"`} {
		if !strings.Contains(s, key) {
			t.Errorf("system instruction missing %s", key)
		}
	}
}
