package llm

import (
	"fmt"
	"strings"

	"github.com/billie-coop/margin/internal/changes"
)

// SystemPrompt asks the service for line comments in the comments schema.
const SystemPrompt = `You are a careful reviewer leaving short margin notes on a document.
Only comment on lines that deserve it; prefer the recently changed lines.
Respond with JSON only, in exactly this shape:
{"comments": [{"line_number": <1-based line>, "comment": "<one or two sentences>"}]}
If nothing deserves a comment, respond with {"comments": []}.`

// Prompt is the request payload for one annotation cycle.
type Prompt struct {
	System string
	User   string
}

// Messages renders the prompt as a chat exchange.
func (p Prompt) Messages() []Message {
	msgs := make([]Message, 0, 2)
	if p.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: p.System})
	}
	msgs = append(msgs, Message{Role: "user", Content: p.User})
	return msgs
}

// BuildPrompt numbers every line of snap (1-based) and lists the changed
// lines so the service can focus on them.
func BuildPrompt(snap changes.Snapshot, changed changes.ChangeSet) Prompt {
	var b strings.Builder

	b.WriteString("Document:\n")
	width := len(fmt.Sprint(len(snap.Lines)))
	for i, line := range snap.Lines {
		fmt.Fprintf(&b, "%*d| %s\n", width, i+1, line)
	}

	if !changed.Empty() {
		b.WriteString("\nChanged lines: ")
		for i, idx := range changed {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprint(&b, idx+1)
		}
		b.WriteString("\n")
	}

	return Prompt{System: SystemPrompt, User: b.String()}
}
