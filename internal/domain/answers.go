package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Answer is an explicit three-way yes/no answer. The zero value is
// Unanswered, which is never the same thing as No.
type Answer int8

const (
	Unanswered Answer = iota
	Yes
	No
)

// AnswerOf converts a plain bool into an answered Answer.
func AnswerOf(b bool) Answer {
	if b {
		return Yes
	}
	return No
}

// IsYes reports whether the question was explicitly answered yes.
func (a Answer) IsYes() bool { return a == Yes }

// IsNo reports whether the question was explicitly answered no.
func (a Answer) IsNo() bool { return a == No }

// IsAnswered reports whether the question has any answer.
func (a Answer) IsAnswered() bool { return a == Yes || a == No }

// String returns the string representation of the answer.
func (a Answer) String() string {
	switch a {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unanswered"
	}
}

// MarshalJSON encodes Yes/No as true/false and Unanswered as null.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a {
	case Yes:
		return []byte("true"), nil
	case No:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts true/false/null. Anything else decodes as Unanswered.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*a = Unanswered
		return nil
	}
	*a = parseAnswer(raw)
	return nil
}

// parseAnswer accepts booleans and yes/no strings.
func parseAnswer(raw any) Answer {
	switch v := raw.(type) {
	case Answer:
		return v
	case bool:
		return AnswerOf(v)
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y":
			return Yes
		case "false", "no", "n":
			return No
		}
	}
	return Unanswered
}

// FieldKind identifies the value shape a questionnaire field holds.
type FieldKind string

const (
	KindAnswer FieldKind = "answer"
	KindText   FieldKind = "text"
	KindNumber FieldKind = "number"
	KindDate   FieldKind = "date"
	KindList   FieldKind = "list"
)

// Value is one questionnaire answer. Numbers and dates are kept as the raw
// strings the form store sent and parsed on read.
type Value struct {
	Kind   FieldKind
	Answer Answer
	Text   string
	List   []string
}

// Zero returns the unanswered value for a field kind.
func Zero(kind FieldKind) Value {
	return Value{Kind: kind}
}

// IsAnswered reports whether the value carries an explicit answer.
// Numbers and dates count only when they parse.
func (v Value) IsAnswered() bool {
	switch v.Kind {
	case KindAnswer:
		return v.Answer.IsAnswered()
	case KindList:
		return len(v.List) > 0
	case KindNumber:
		_, ok := parseNumber(v.Text)
		return ok
	case KindDate:
		_, ok := parseDate(v.Text)
		return ok
	default:
		return strings.TrimSpace(v.Text) != ""
	}
}

// raw returns the value in its wire form (nil, bool, string or []string).
func (v Value) raw() any {
	switch v.Kind {
	case KindAnswer:
		switch v.Answer {
		case Yes:
			return true
		case No:
			return false
		}
		return nil
	case KindList:
		if v.List == nil {
			return []string{}
		}
		return v.List
	default:
		return v.Text
	}
}

// coerceValue converts a decoded wire value into a Value of the given kind.
// Malformed input degrades to the unanswered value of that kind.
func coerceValue(kind FieldKind, raw any) Value {
	v := Zero(kind)
	switch kind {
	case KindAnswer:
		v.Answer = parseAnswer(raw)
	case KindList:
		v.List = coerceList(raw)
	default:
		v.Text = coerceText(raw)
	}
	return v
}

// inferKind guesses the kind of a field missing from the catalog.
func inferKind(raw any) FieldKind {
	switch raw.(type) {
	case bool:
		return KindAnswer
	case []any, []string:
		return KindList
	case float64, float32, int, int64, json.Number:
		return KindNumber
	default:
		return KindText
	}
}

func coerceText(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(DateLayout)
	default:
		return fmt.Sprint(v)
	}
}

func coerceList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(coerceText(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	}
	return []string{}
}

// DateLayout is the calendar-date format used by the wizard's date pickers.
const DateLayout = "2006-01-02"

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
