package intent

import "strings"

const extractionSchema = `{
  "type": "object",
  "required": ["action", "amount"],
  "properties": {
    "action": {"type": "string"},
    "amount": {"type": "number", "minimum": 0},
    "fromCurrency": {"type": "string", "maxLength": 8},
    "toCurrency": {"type": "string", "maxLength": 8},
    "recipientName": {"type": "string", "maxLength": 128},
    "recipientLocation": {"type": "string", "maxLength": 128},
    "relationship": {"type": "string"},
    "urgency": {"type": "string"},
    "purpose": {"type": "string"}
  }
}`

const promptTemplate = `You extract money transfer requests from chat messages.

Reply with a single JSON object and nothing else, using exactly these keys:
  "action": "send" if the user wants to send or transfer money, otherwise "unknown"
  "amount": the numeric amount without symbols or commas, 0 if none is given
  "fromCurrency": ISO code of the amount's currency ("USD", "INR", "EUR"); "USD" if unstated
  "toCurrency": ISO code the recipient should receive; "INR" for recipients in India, otherwise "USD"
  "recipientName": the recipient's name exactly as written, "" if none
  "recipientLocation": the recipient's country or city, "" if none
  "relationship": one of "family", "friend", "business", "unknown"
  "urgency": "high" or "normal"
  "purpose": one of "family_support", "business", "personal", "unknown"

Message:
{{message}}`

func buildPrompt(message string) string {
	return strings.Replace(promptTemplate, "{{message}}", message, 1)
}
