package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

const systemPrompt = "You are a financial transaction parser. You MUST respond with ONLY a valid JSON object. " +
	"Do not include any explanatory text or markdown formatting."

// maxBodyChars bounds the email text sent to the model.
const maxBodyChars = 6000

func buildPrompt(body string, today time.Time) string {
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}

	var sb strings.Builder
	sb.WriteString("Extract the transaction described in the following email.\n\n")
	sb.WriteString("Email body:\n")
	sb.WriteString(body)
	sb.WriteString("\n\nReturn ONLY a JSON object with this exact structure:\n")
	fmt.Fprintf(&sb, `{
  "type": "%s",
  "channel": "%s",
  "amount": <positive number>,
  "currency": "USD",
  "merchant": "<merchant or counterparty name>",
  "date": "<ISO 8601 date or date-time>",
  "cardLast4": "<optional 4 digits>",
  "referenceNumber": "<optional reference>",
  "description": "<optional brief description>"
}`, joinKinds(model.Kinds()), joinChannels(model.Channels()))
	sb.WriteString("\n\nRules:\n")
	sb.WriteString("- Use \"USD\" as currency for Panama unless another currency is explicit\n")
	sb.WriteString("- Extract the merchant name as it appears in the email\n")
	fmt.Fprintf(&sb, "- Use %s as the date if the email has none\n", today.Format(model.CivilDateLayout))
	sb.WriteString("- Only include cardLast4 if explicitly mentioned\n")
	sb.WriteString("- If the email does not describe a transaction, return {}\n")
	return sb.String()
}

func joinKinds(kinds []model.Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, "|")
}

func joinChannels(channels []model.Channel) string {
	parts := make([]string, len(channels))
	for i, c := range channels {
		parts[i] = string(c)
	}
	return strings.Join(parts, "|")
}
