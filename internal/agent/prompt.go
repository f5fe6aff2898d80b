package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/local/picobot/internal/skills"
)

// buildSystemPrompt assembles base + skills + UTC timestamp + optional
// user location into the final system prompt for one turn.
func buildSystemPrompt(basePrompt string, skillRegistry *skills.Registry, location string, now time.Time) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if skillRegistry != nil {
		if rendered := skillRegistry.Render(); rendered != "" {
			b.WriteString("\n\n")
			b.WriteString(rendered)
		}
	}

	fmt.Fprintf(&b, "\n\nCurrent time: %s", now.UTC().Format("2006-01-02 15:04:05 UTC"))

	if location != "" {
		fmt.Fprintf(&b, "\nUser location: %s", location)
	}

	return b.String()
}
