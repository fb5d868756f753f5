package prompt

import "fmt"

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior application security analyst reviewing one scan result collected from a network probe. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use lowercase severity values: critical, high, medium, low, info.
- counts.total must equal counts.critical + counts.high + counts.medium + counts.low.
- findings is an array of objects; include at least a title, severity, and summary. Keep items concise.
- Base findings only on the scan content provided; do not invent hosts, ports, or services.

Schema (example with empty values):
{
  "counts": {"critical": 0, "high": 0, "medium": 0, "low": 0, "total": 0},
  "findings": [
    {
      "title": "<string>",
      "severity": "<critical|high|medium|low|info>",
      "summary": "<string>",
      "recommendation": "<string>"
    }
  ],
  "advice": "<string>"
}`
}

// GetUserPrompt builds a compact user message around one scan payload.
func GetUserPrompt(payload string) string {
	return fmt.Sprintf("Analyze this scan result and respond with the JSON per schema. Scan content: %s", payload)
}
