package openai

import "fmt"

const extractionPromptTemplate = `You are an archival metadata extraction assistant. Extract exactly one field from the document excerpt the user provides.

Output ONLY valid JSON. Do not include any preamble, explanation, greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing brace }.

Answer with one of these two shapes:

  {"value": <the extracted value>, "confidence": <number between 0 and 1>}
  {"absent": true}

The extracted value must conform to this JSON Schema fragment:

%s

Rules:
- Use only information literally supported by the excerpt.
- If the field is not present in this excerpt, or you are unsure, answer {"absent": true}. Never guess and never fabricate.
- Dates use ISO 8601 (YYYY-MM-DD) whenever possible.
- "confidence" is optional; omit it rather than invent a number.`

// buildExtractionPrompt renders the system prompt for one sub-schema.
func buildExtractionPrompt(subSchema []byte) string {
	return fmt.Sprintf(extractionPromptTemplate, string(subSchema))
}
