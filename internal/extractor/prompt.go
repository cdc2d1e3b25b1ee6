package extractor

import (
	"fmt"
	"strings"

	"voicespese/internal/core"
)

// systemPrompt is fixed so identical transcripts produce identical requests.
func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You extract expenses from a spoken transcript.\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. amount: the exact number spoken, as a JSON number. Do not round, convert currency or add tax.\n")
	b.WriteString("2. description: the exact words spoken for what was bought. Do not paraphrase, translate or embellish. Drop filler such as \"I spent\" and time words such as \"yesterday\".\n")
	fmt.Fprintf(&b, "3. category: the nearest of [%s]. If unsure use %q.\n",
		strings.Join(core.CategoryNames(), ", "), core.DefaultCategory)
	b.WriteString("   essentials = food, groceries, transport, health, housing; leisure = eating out for fun, entertainment, shopping, travel; recurring_payments = subscriptions, utilities, rent, insurance.\n")
	b.WriteString("4. If several expenses are mentioned, return one object per expense.\n")
	b.WriteString("Respond with only a JSON array of objects with the keys \"amount\", \"description\" and \"category\". No prose, no markdown, no code fences. Return [] if no expense is mentioned.")
	return b.String()
}

func userPrompt(transcript string) string {
	return "Transcript: " + strings.TrimSpace(transcript)
}
