package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"yashubustudio/labelmatch/labelmatch"
)

var matchOpts struct {
	catalog   string
	label     string
	qtype     string
	keys      []string
	none      bool
	earlyExit bool
	input     string
	workers   int
	inputOpts labelmatch.QuestionParseOptions
}

type matchLine struct {
	Label    string                   `json:"label"`
	Type     labelmatch.QuestionType  `json:"type"`
	Expected string                   `json:"expected,omitempty"`
	Matches  []labelmatch.MatchResult `json:"matches"`
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Resolve discovered form labels to concept groups",
	Long: `Resolve one label (--label) or every question of a CSV/TSV/text file (--input)
against the catalog. Prints one JSON line per question with its ranked matches.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if matchOpts.label == "" && matchOpts.input == "" {
			return errors.New("either --label or --input is required")
		}
		ctx := cmd.Context()
		cat, err := loadCatalog(matchOpts.catalog)
		if err != nil {
			return err
		}
		provider := newProvider(cfg.Embedder, logger)
		defer provider.Close()
		if err := provider.Verify(ctx, cat); err != nil {
			return fmt.Errorf("verify provider: %w", err)
		}
		matcher, err := labelmatch.NewMatcher(cat, provider, logger)
		if err != nil {
			return err
		}

		opts := cfg.Match
		if cmd.Flags().Changed("early-exit") {
			opts.EarlyExit = matchOpts.earlyExit
		}
		sel := selectionFromFlags()

		var records []labelmatch.QuestionRecord
		if matchOpts.input != "" {
			if cfg.Debug() {
				if meta, err := labelmatch.ReadQuestionFileMetadata(matchOpts.input); err == nil && len(meta.Columns) > 0 {
					logger.Printf("columns %v: type=%q label=%q expected=%q", meta.Columns,
						meta.Suggested.TypeColumn, meta.Suggested.LabelColumn, meta.Suggested.KeyColumn)
				}
			}
			records, err = labelmatch.ParseQuestionFile(matchOpts.input, matchOpts.inputOpts)
			if err != nil {
				return fmt.Errorf("read questions: %w", err)
			}
		} else {
			records = []labelmatch.QuestionRecord{{Question: labelmatch.Question{
				Type:      labelmatch.QuestionType(matchOpts.qtype),
				LabelText: matchOpts.label,
			}}}
		}
		questions := make([]labelmatch.Question, len(records))
		for i, r := range records {
			questions[i] = r.Question
		}
		results := matcher.MatchAll(ctx, questions, sel, opts, matchOpts.workers)
		if err := writeMatches(cmd.OutOrStdout(), records, results); err != nil {
			return err
		}
		if summary, ok := accuracy(records, results); ok {
			fmt.Fprintln(cmd.ErrOrStderr(), summary)
		}
		return nil
	},
}

func init() {
	matchCmd.Flags().StringVar(&matchOpts.catalog, "catalog", "", "catalog path (default: config catalogPath)")
	matchCmd.Flags().StringVarP(&matchOpts.label, "label", "l", "", "label text discovered on the form")
	matchCmd.Flags().StringVarP(&matchOpts.qtype, "type", "t", string(labelmatch.TypeText), "question type of --label")
	matchCmd.Flags().StringSliceVar(&matchOpts.keys, "keys", nil, "only consider these groups, in this order")
	matchCmd.Flags().BoolVar(&matchOpts.none, "none", false, "consider no group (always returns no match)")
	matchCmd.Flags().BoolVar(&matchOpts.earlyExit, "early-exit", false, "return the first semantic hit instead of ranking")
	matchCmd.Flags().StringVarP(&matchOpts.input, "input", "i", "", "CSV/TSV/text file of questions")
	matchCmd.Flags().IntVar(&matchOpts.workers, "workers", 4, "concurrent matches for --input")
	matchCmd.Flags().StringVar(&matchOpts.inputOpts.TypeColumn, "type-column", "", "column name or #index holding the question type")
	matchCmd.Flags().StringVar(&matchOpts.inputOpts.LabelColumn, "label-column", "", "column name or #index holding the label")
	matchCmd.Flags().StringVar(&matchOpts.inputOpts.KeyColumn, "expected-column", "", "column name or #index holding the expected group")
	matchCmd.MarkFlagsMutuallyExclusive("keys", "none")
	matchCmd.MarkFlagsMutuallyExclusive("label", "input")
}

func selectionFromFlags() labelmatch.Selection {
	switch {
	case matchOpts.none:
		return labelmatch.SelectNone()
	case len(matchOpts.keys) > 0:
		return labelmatch.SelectKeys(matchOpts.keys...)
	}
	return labelmatch.SelectAll()
}

func writeMatches(w io.Writer, records []labelmatch.QuestionRecord, results [][]labelmatch.MatchResult) error {
	enc := json.NewEncoder(w)
	for i, rec := range records {
		matches := results[i]
		if matches == nil {
			matches = []labelmatch.MatchResult{}
		}
		line := matchLine{
			Label:    rec.LabelText,
			Type:     rec.Type,
			Expected: rec.Expected,
			Matches:  matches,
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write result %d: %w", i, err)
		}
	}
	return nil
}

// accuracy summarizes top-1 hits for records that name an expected group.
func accuracy(records []labelmatch.QuestionRecord, results [][]labelmatch.MatchResult) (string, bool) {
	total, hits := 0, 0
	for i, rec := range records {
		if rec.Expected == "" {
			continue
		}
		total++
		if len(results[i]) > 0 && results[i][0].GroupKey == rec.Expected {
			hits++
		}
	}
	if total == 0 {
		return "", false
	}
	return fmt.Sprintf("top-1 accuracy: %d/%d (%.1f%%)", hits, total, 100*float64(hits)/float64(total)), true
}
