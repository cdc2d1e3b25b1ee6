package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"voicespese/internal/core"
)

// rawExpense is the untrusted model output. Pointers distinguish missing
// keys from zero values.
type rawExpense struct {
	Amount      json.RawMessage `json:"amount" validate:"required"`
	Description *string         `json:"description" validate:"required"`
	Category    *string         `json:"category" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if first == "" || !strings.ContainsAny(first, "{[") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseResponse decodes a JSON object, an array of objects, or an object
// wrapping an "expenses" array.
func parseResponse(content string) ([]core.ExtractedExpense, error) {
	body := []byte(stripFences(content))
	if len(body) == 0 {
		return nil, core.New(core.KindMalformedExtraction, "empty model response")
	}

	var raws []rawExpense
	switch body[0] {
	case '[':
		if err := decode(body, &raws); err != nil {
			return nil, malformed("decode array", err)
		}
	case '{':
		var wrapper struct {
			Expenses *[]rawExpense `json:"expenses"`
		}
		if err := decode(body, &wrapper); err == nil && wrapper.Expenses != nil {
			raws = *wrapper.Expenses
			break
		}
		var one rawExpense
		if err := decode(body, &one); err != nil {
			return nil, malformed("decode object", err)
		}
		raws = []rawExpense{one}
	default:
		return nil, core.Newf(core.KindMalformedExtraction, "model response is not JSON: %.40q", content)
	}

	out := make([]core.ExtractedExpense, 0, len(raws))
	for i, r := range raws {
		e, err := r.toExpense()
		if err != nil {
			return nil, malformed(fmt.Sprintf("expense %d", i), err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r rawExpense) toExpense() (core.ExtractedExpense, error) {
	if err := validate.Struct(r); err != nil {
		return core.ExtractedExpense{}, fmt.Errorf("missing required field: %w", err)
	}
	cents, err := parseAmount(r.Amount)
	if err != nil {
		return core.ExtractedExpense{}, err
	}
	e := core.ExtractedExpense{
		Amount:      core.Money{Cents: cents},
		Category:    core.NormalizeCategory(*r.Category),
		Description: strings.TrimSpace(*r.Description),
	}
	if err := e.Validate(); err != nil {
		return core.ExtractedExpense{}, err
	}
	return e, nil
}

// parseAmount accepts a JSON number or a numeric string, optionally with a
// currency symbol.
func parseAmount(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("amount: %w", core.ErrInvalidAmount)
	}
	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("amount: %w", err)
		}
		text = strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "$€£"))
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, fmt.Errorf("amount: %w", err)
		}
		text = n.String()
	}
	cents, err := core.ParseDecimalToCents(text)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", text, err)
	}
	return cents, nil
}

func decode(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

func malformed(what string, err error) error {
	return core.Wrap(core.KindMalformedExtraction, "malformed extraction: "+what, err)
}

// descriptions is used in log lines.
func descriptions(es []core.ExtractedExpense) []string {
	return lo.Map(es, func(e core.ExtractedExpense, _ int) string { return e.Description })
}
