package labelmatch

import "encoding/json"

// QuestionType is the kind of form control a question was discovered on.
type QuestionType string

const (
	TypeText     QuestionType = "text"
	TypeEmail    QuestionType = "email"
	TypeTel      QuestionType = "tel"
	TypePassword QuestionType = "password"
	TypeNumber   QuestionType = "number"
	TypeDate     QuestionType = "date"
	TypeTextarea QuestionType = "textarea"
	TypeSelect   QuestionType = "select"
	TypeDropdown QuestionType = "dropdown"
	TypeRadio    QuestionType = "radio"
	TypeCheckbox QuestionType = "checkbox"
	TypeFile     QuestionType = "file"
)

// Question is a single form question discovered on a page.
type Question struct {
	Type      QuestionType `json:"type"`
	LabelText string       `json:"label"`
}

// MatchResult pairs a concept group with the score that selected it.
type MatchResult struct {
	GroupKey        string  `json:"key"`
	SimilarityScore float64 `json:"similarityScore"`
}

// MatchOptions tunes a single Match call.
type MatchOptions struct {
	// EarlyExit returns the first semantic hit above threshold instead of ranking every group.
	EarlyExit bool `json:"earlyExit" mapstructure:"earlyExit"`
	// Debug logs every exact and semantic hit.
	Debug bool `json:"debug" mapstructure:"debug"`
}

// Selection restricts which concept groups a Match call may return.
type Selection struct {
	all  bool
	keys []string
}

// SelectAll considers every group in catalog order.
func SelectAll() Selection {
	return Selection{all: true}
}

// SelectNone considers no group; Match returns immediately.
func SelectNone() Selection {
	return Selection{}
}

// SelectKeys considers the given groups in the given order.
func SelectKeys(keys ...string) Selection {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return Selection{keys: out}
}

// IsAll reports whether every group is selected.
func (s Selection) IsAll() bool { return s.all }

// IsNone reports whether the selection is empty.
func (s Selection) IsNone() bool { return !s.all && len(s.keys) == 0 }

// Keys returns the explicit keys, or nil for All.
func (s Selection) Keys() []string {
	if s.all {
		return nil
	}
	return cloneStrings(s.keys)
}

// MarshalJSON encodes All as "all", None as null and explicit keys as an array.
func (s Selection) MarshalJSON() ([]byte, error) {
	if s.all {
		return json.Marshal("all")
	}
	if len(s.keys) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(s.keys)
}

// UnmarshalJSON accepts "all", null or an array of keys.
func (s *Selection) UnmarshalJSON(data []byte) error {
	var word string
	if err := json.Unmarshal(data, &word); err == nil {
		if word == "all" {
			*s = SelectAll()
			return nil
		}
		if word == "" || word == "none" {
			*s = SelectNone()
			return nil
		}
		*s = SelectKeys(word)
		return nil
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*s = SelectKeys(keys...)
	return nil
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
