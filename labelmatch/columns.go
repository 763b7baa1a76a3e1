package labelmatch

import "sync"

// ColumnCandidates defines possible header names for auto-detecting question file columns.
type ColumnCandidates struct {
	Type  []string `json:"type" mapstructure:"type"`
	Label []string `json:"label" mapstructure:"label"`
	Key   []string `json:"key" mapstructure:"key"`
}

var (
	columnCandidatesMu  sync.RWMutex
	activeColumnOptions = defaultColumnCandidates()
)

func defaultColumnCandidates() ColumnCandidates {
	return ColumnCandidates{
		Type:  []string{"type", "fieldType", "inputType", "field_type", "input_type"},
		Label: []string{"label", "labelText", "question", "text", "label_text"},
		Key:   []string{"expected", "key", "groupKey", "group"},
	}
}

// DefaultColumnCandidates returns the built-in column detection candidates.
func DefaultColumnCandidates() ColumnCandidates {
	return defaultColumnCandidates().clone()
}

// SetColumnCandidates updates the column detection candidates used during auto-detection.
// Fields left nil fall back to the built-in defaults.
func SetColumnCandidates(candidates ColumnCandidates) {
	columnCandidatesMu.Lock()
	defer columnCandidatesMu.Unlock()
	activeColumnOptions = candidates.withDefaults()
}

func getColumnCandidates() ColumnCandidates {
	columnCandidatesMu.RLock()
	defer columnCandidatesMu.RUnlock()
	return activeColumnOptions.clone()
}

func (c ColumnCandidates) withDefaults() ColumnCandidates {
	defaults := defaultColumnCandidates()
	return ColumnCandidates{
		Type:  pickStrings(c.Type, defaults.Type),
		Label: pickStrings(c.Label, defaults.Label),
		Key:   pickStrings(c.Key, defaults.Key),
	}
}

func (c ColumnCandidates) clone() ColumnCandidates {
	return ColumnCandidates{
		Type:  cloneStrings(c.Type),
		Label: cloneStrings(c.Label),
		Key:   cloneStrings(c.Key),
	}
}

func pickStrings(custom, fallback []string) []string {
	if custom == nil {
		return cloneStrings(fallback)
	}
	return cloneStrings(custom)
}
