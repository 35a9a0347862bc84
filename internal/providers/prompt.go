package providers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Prompt construction and response decoding shared by the chat-based
// providers. Segments are wrapped in numbered markers so the response
// can be mapped back positionally even when the model merges or drops
// paragraphs.

const systemPromptTemplate = `You are a literary translator. Translate the numbered segments from %s into %s.

Rules:
- Translate each segment independently but keep the surrounding context coherent.
- Preserve the tone, register, and paragraph boundaries of the original.
- Output ONLY the translations, one per segment, each introduced by its marker on its own line: <<<N>>>
- Do not add commentary, notes, or extra segments.`

// BuildPrompt renders the system and user messages for a batch request.
func BuildPrompt(req *BatchRequest) (system string, user string) {
	src := req.SourceLang
	if src == "" {
		src = "the source language"
	}
	dst := req.TargetLang
	if dst == "" {
		dst = "English"
	}
	system = fmt.Sprintf(systemPromptTemplate, src, dst)

	var b strings.Builder
	if req.DocumentTitle != "" {
		fmt.Fprintf(&b, "Document: %s\n\n", req.DocumentTitle)
	}
	if req.PrevContext != "" {
		fmt.Fprintf(&b, "[preceding context, do not translate]\n%s\n\n", req.PrevContext)
	}
	for i, seg := range req.Segments {
		fmt.Fprintf(&b, "<<<%d>>>\n%s\n", i+1, seg.Text)
	}
	if req.NextContext != "" {
		fmt.Fprintf(&b, "\n[following context, do not translate]\n%s\n", req.NextContext)
	}
	return system, b.String()
}

var segmentMarker = regexp.MustCompile(`(?m)^\s*<{2,3}(\d+)>{2,3}\s*$`)

// ParseTranslations decodes a numbered response into a positional slice
// of length count. Positions the model skipped stay empty; entries
// beyond count are dropped. Callers treat empty positions as failures.
func ParseTranslations(content string, count int) []string {
	out := make([]string, count)

	locs := segmentMarker.FindAllStringSubmatchIndex(content, -1)
	for i, loc := range locs {
		n, err := strconv.Atoi(content[loc[2]:loc[3]])
		if err != nil || n < 1 || n > count {
			continue
		}
		start := loc[1]
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out[n-1] = strings.TrimSpace(content[start:end])
	}
	return out
}
