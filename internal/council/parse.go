package council

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// --- Parsing of unreliable agent output ---
//
// Agent responses are free text pretending to be numbers or JSON. Parsing
// never fails: every entry point returns a best-effort value plus an
// Outcome recording how far down the fallback chain it had to go.

// Outcome records which layer of the parse chain produced a value.
type Outcome string

const (
	// OutcomePrimary: the strict parse succeeded.
	OutcomePrimary Outcome = "primary"
	// OutcomeRepaired: a fenced-block or control-character repair pass succeeded.
	OutcomeRepaired Outcome = "repaired"
	// OutcomeFallback: per-field extraction or range substitution was applied.
	OutcomeFallback Outcome = "fallback"
	// OutcomeDefault: nothing usable was found; the documented default applies.
	OutcomeDefault Outcome = "default"
)

// Token bid bounds and defaults. A bid below the floor or above the
// ceiling is replaced, not rejected — non-responders are handled by the
// bidding stage, not the parser.
const (
	MinTokenBid      = 50
	MaxTokenBid      = 16000
	LowTokenDefault  = 500
	HighTokenDefault = 8000
	NoTokenDefault   = 1500
)

var (
	digitRunRe = regexp.MustCompile(`\d+`)
	numberRe   = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	fencedRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
)

// ParseTokenCount extracts a token bid from free text: strip unit words
// and separators, take the first digit run, bound it to
// [MinTokenBid, MaxTokenBid].
func ParseTokenCount(raw string) (int, Outcome) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return NoTokenDefault, OutcomeDefault
	}

	text = strings.NewReplacer(",", "", "tokens", "", "token", "").Replace(text)

	m := digitRunRe.FindString(text)
	if m == "" {
		return NoTokenDefault, OutcomeDefault
	}

	n, err := strconv.Atoi(m)
	if err != nil {
		// Digit run too long for an int: treat as above the ceiling.
		return HighTokenDefault, OutcomeFallback
	}

	switch {
	case n < MinTokenBid:
		return LowTokenDefault, OutcomeFallback
	case n > MaxTokenBid:
		return HighTokenDefault, OutcomeFallback
	}
	return n, OutcomePrimary
}

// ParseScore extracts the first number found in free text. The ok result
// is false when no number is present.
func ParseScore(raw string) (float64, bool) {
	m := numberRe.FindString(raw)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FieldSpec names the fields expected in a structured agent response:
// at most one free-text field and any number of numeric fields.
type FieldSpec struct {
	TextField    string
	NumberFields []string
}

// Object is a parsed structured response. Numbers always contains an
// entry for every requested field (0 when absent).
type Object struct {
	Text    string
	Numbers map[string]float64
	Outcome Outcome
}

// ParseObject extracts a structured object from free text via a layered
// chain: strict JSON decode, decode of a fenced block, a control-character
// repair of the text field's quoted span, then per-field regexp
// extraction. It never returns an error.
func ParseObject(raw string, spec FieldSpec) Object {
	if obj, ok := decodeObject(raw, spec); ok {
		obj.Outcome = OutcomePrimary
		return obj
	}

	body := raw
	if m := fencedRe.FindStringSubmatch(raw); m != nil {
		body = m[1]
		if obj, ok := decodeObject(body, spec); ok {
			obj.Outcome = OutcomeRepaired
			return obj
		}
	}

	if repaired, changed := repairControlChars(body, spec.TextField); changed {
		if obj, ok := decodeObject(repaired, spec); ok {
			obj.Outcome = OutcomeRepaired
			return obj
		}
	}

	return extractFields(raw, spec)
}

// decodeObject attempts a strict JSON decode and field extraction.
func decodeObject(text string, spec FieldSpec) (Object, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &m); err != nil {
		return Object{}, false
	}

	obj := Object{Numbers: make(map[string]float64, len(spec.NumberFields))}
	if spec.TextField != "" {
		if s, ok := m[spec.TextField].(string); ok {
			obj.Text = s
		}
	}
	for _, f := range spec.NumberFields {
		obj.Numbers[f] = toFloat(m[f])
	}
	return obj, true
}

// toFloat coerces JSON number representations (including numbers an agent
// quoted as strings) to float64; anything else is 0.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// repairControlChars locates the text field's quoted span and escapes raw
// control characters inside it, producing JSON a strict decoder accepts.
// Agents routinely emit literal newlines inside the answer string.
func repairControlChars(s, textField string) (string, bool) {
	if textField == "" {
		return s, false
	}

	key := `"` + textField + `"`
	ki := strings.Index(s, key)
	if ki < 0 {
		return s, false
	}
	rest := s[ki+len(key):]
	ci := strings.Index(rest, ":")
	if ci < 0 {
		return s, false
	}

	// Skip whitespace to the opening quote of the value.
	j := ki + len(key) + ci + 1
	for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
		j++
	}
	if j >= len(s) || s[j] != '"' {
		return s, false
	}

	var b strings.Builder
	b.WriteString(s[:j+1])

	changed := false
	i := j + 1
	for i < len(s) {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i += 2
			continue
		}
		if c == '"' {
			break
		}
		switch c {
		case '\n':
			b.WriteString(`\n`)
			changed = true
		case '\r':
			b.WriteString(`\r`)
			changed = true
		case '\t':
			b.WriteString(`\t`)
			changed = true
		default:
			if c < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, c)
				changed = true
			} else {
				b.WriteByte(c)
			}
		}
		i++
	}
	if i >= len(s) {
		// Unterminated string; nothing the repair pass can do.
		return s, false
	}

	b.WriteString(s[i:])
	return b.String(), changed
}

// extractFields is the last layer: pull each numeric field out with a
// regexp (default 0) and degrade the text field to the raw response.
func extractFields(raw string, spec FieldSpec) Object {
	obj := Object{
		Numbers: make(map[string]float64, len(spec.NumberFields)),
		Outcome: OutcomeFallback,
	}

	found := false
	for _, f := range spec.NumberFields {
		re := regexp.MustCompile(`"` + regexp.QuoteMeta(f) + `"\s*:\s*"?(-?\d+(?:\.\d+)?)`)
		if m := re.FindStringSubmatch(raw); m != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			if err == nil {
				obj.Numbers[f] = v
				found = true
				continue
			}
		}
		obj.Numbers[f] = 0
	}

	if spec.TextField != "" {
		obj.Text = raw
	} else if !found {
		obj.Outcome = OutcomeDefault
	}
	return obj
}
