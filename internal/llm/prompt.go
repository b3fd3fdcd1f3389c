package llm

import (
	"fmt"
	"strings"
)

const systemPrompt = "You convert natural language questions into a single Microsoft SQL Server (T-SQL) query. " +
	"Return ONLY SQL. No markdown, no explanation."

func userPrompt(req Request) string {
	schema := strings.TrimSpace(req.Schema)
	if schema == "" {
		schema = "(no schema loaded)"
	}
	return fmt.Sprintf(
		"Schema (schema.table(columns)):\n%s\n\nQuestion:\n%s\n\nRules:\n"+
			"- Use only the listed tables and columns.\n"+
			"- Prefer explicit columns over SELECT *.\n"+
			"- Use TOP 200 unless the question asks otherwise.\n"+
			"- Output a single SQL statement only.",
		schema,
		strings.TrimSpace(req.Question),
	)
}

// StripMarkdownSQL removes a surrounding ``` or ```sql fence.
func StripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```SQL")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
