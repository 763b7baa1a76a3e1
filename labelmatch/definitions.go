package labelmatch

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/labels.yaml
var defaultDefinitionsYAML []byte

// Definitions are the human-authored label groups a catalog is generated from.
type Definitions struct {
	Version int               `yaml:"version"`
	Model   string            `yaml:"model"`
	Groups  []GroupDefinition `yaml:"groups"`
}

// GroupDefinition lists the phrasings of one concept.
type GroupDefinition struct {
	Key    string            `yaml:"key"`
	Types  []QuestionType    `yaml:"type"`
	Labels []LabelDefinition `yaml:"labels"`
}

// LabelDefinition is one phrasing with an optional initial threshold.
// Thresholds above 1 are percentages.
type LabelDefinition struct {
	Text      string  `yaml:"text"`
	Threshold float64 `yaml:"threshold,omitempty"`
}

// UnmarshalYAML accepts a plain string, a [text, threshold] pair or a mapping.
func (l *LabelDefinition) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		l.Text = node.Value
		l.Threshold = 0
		return nil
	case yaml.SequenceNode:
		if len(node.Content) == 0 || len(node.Content) > 2 {
			return fmt.Errorf("line %d: label pair must be [text] or [text, threshold]", node.Line)
		}
		l.Text = node.Content[0].Value
		l.Threshold = 0
		if len(node.Content) == 2 {
			v, err := strconv.ParseFloat(node.Content[1].Value, 64)
			if err != nil {
				return fmt.Errorf("line %d: threshold: %w", node.Line, err)
			}
			l.Threshold = v
		}
		return nil
	case yaml.MappingNode:
		type plain LabelDefinition
		var raw plain
		if err := node.Decode(&raw); err != nil {
			return err
		}
		*l = LabelDefinition(raw)
		return nil
	}
	return fmt.Errorf("line %d: unsupported label node", node.Line)
}

// InitialThreshold converts the authored threshold to a fraction.
func (l LabelDefinition) InitialThreshold() float64 {
	switch {
	case l.Threshold <= 0:
		return DefaultLabelThreshold
	case l.Threshold > 1:
		return l.Threshold / 100
	default:
		return l.Threshold
	}
}

// Validate checks keys are unique and every group has usable labels.
func (d *Definitions) Validate() error {
	if len(d.Groups) == 0 {
		return errors.New("definitions contain no groups")
	}
	seen := make(map[string]struct{}, len(d.Groups))
	for _, g := range d.Groups {
		if strings.TrimSpace(g.Key) == "" {
			return errors.New("group with empty key")
		}
		if _, dup := seen[g.Key]; dup {
			return fmt.Errorf("duplicate group %s", g.Key)
		}
		seen[g.Key] = struct{}{}
		if len(g.Labels) == 0 {
			return fmt.Errorf("group %s has no labels", g.Key)
		}
		for i, l := range g.Labels {
			if strings.TrimSpace(l.Text) == "" {
				return fmt.Errorf("group %s label %d has no text", g.Key, i)
			}
			if l.Threshold < 0 || l.Threshold > 100 {
				return fmt.Errorf("group %s label %q: threshold %v out of range", g.Key, l.Text, l.Threshold)
			}
		}
	}
	return nil
}

// ParseDefinitions decodes and validates YAML definitions.
func ParseDefinitions(r io.Reader) (*Definitions, error) {
	var defs Definitions
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&defs); err != nil {
		return nil, fmt.Errorf("decode definitions: %w", err)
	}
	if defs.Version == 0 {
		defs.Version = 1
	}
	if err := defs.Validate(); err != nil {
		return nil, err
	}
	return &defs, nil
}

// LoadDefinitionsFile reads definitions from disk.
func LoadDefinitionsFile(path string) (*Definitions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open definitions: %w", err)
	}
	defer f.Close()
	defs, err := ParseDefinitions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return defs, nil
}

// DefaultDefinitions returns the built-in job-application label groups.
func DefaultDefinitions() *Definitions {
	defs, err := ParseDefinitions(bytes.NewReader(defaultDefinitionsYAML))
	if err != nil {
		panic(fmt.Sprintf("labelmatch: built-in definitions: %v", err))
	}
	return defs
}
