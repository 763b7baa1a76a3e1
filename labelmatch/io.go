package labelmatch

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// QuestionParseOptions allows callers to choose which columns map to question fields.
type QuestionParseOptions struct {
	TypeColumn  string
	LabelColumn string
	KeyColumn   string
	// DefaultType applies to rows without a type column or with an empty type cell.
	DefaultType QuestionType
}

// QuestionRecord is a question read from a batch file, optionally with the group it should match.
type QuestionRecord struct {
	Question
	Expected string `json:"expected,omitempty"`
}

// QuestionFileMetadata provides header information and automatic column suggestions.
type QuestionFileMetadata struct {
	Columns   []string
	Suggested QuestionParseOptions
}

// ParseQuestionFile reads a CSV, TSV or plain text file of questions.
func ParseQuestionFile(path string, opts QuestionParseOptions) ([]QuestionRecord, error) {
	if opts.DefaultType == "" {
		opts.DefaultType = TypeText
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return parseDelimitedQuestions(path, ',', opts)
	case ".tsv":
		return parseDelimitedQuestions(path, '\t', opts)
	default:
		return parsePlainQuestions(path, opts.DefaultType)
	}
}

func parsePlainQuestions(path string, defaultType QuestionType) ([]QuestionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open text file: %w", err)
	}
	defer f.Close()
	var out []QuestionRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := cleanCell(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, QuestionRecord{Question: Question{Type: defaultType, LabelText: line}})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan text file: %w", err)
	}
	return out, nil
}

func parseDelimitedQuestions(path string, comma rune, opts QuestionParseOptions) ([]QuestionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(rows) == 0 {
		return nil, errors.New("empty file")
	}
	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = cleanCell(cell)
	}
	resolved, skipHeader, err := resolveQuestionColumns(header, opts)
	if err != nil {
		return nil, err
	}
	start := 0
	if skipHeader {
		start = 1
	}
	records := make([]QuestionRecord, 0, len(rows)-start)
	for _, row := range rows[start:] {
		label := cellAt(row, resolved.Label.Index)
		if label == "" {
			continue
		}
		rec := QuestionRecord{Question: Question{Type: opts.DefaultType, LabelText: label}}
		if t := cellAt(row, resolved.Type.Index); t != "" {
			rec.Type = QuestionType(strings.ToLower(t))
		}
		rec.Expected = cellAt(row, resolved.Key.Index)
		records = append(records, rec)
	}
	return records, nil
}

// ReadQuestionFileMetadata returns header information and automatic suggestions for structured files.
func ReadQuestionFileMetadata(path string) (QuestionFileMetadata, error) {
	meta := QuestionFileMetadata{}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".tsv" {
		return meta, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return meta, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	if ext == ".tsv" {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1
	row, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return meta, nil
		}
		return meta, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	header := make([]string, len(row))
	for i, cell := range row {
		header[i] = cleanCell(cell)
	}
	meta.Columns = header
	resolved, _, err := resolveQuestionColumns(header, QuestionParseOptions{})
	if err == nil {
		meta.Suggested = QuestionParseOptions{
			TypeColumn:  resolved.Type.HeaderName,
			LabelColumn: resolved.Label.HeaderName,
			KeyColumn:   resolved.Key.HeaderName,
		}
	}
	return meta, nil
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "\ufeff")
	return v
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return cleanCell(row[idx])
}

func findColumn(header []string, candidates []string) int {
	for i, col := range header {
		for _, cand := range candidates {
			if strings.EqualFold(col, cand) {
				return i
			}
		}
	}
	return -1
}

type columnResult struct {
	Index      int
	FromHeader bool
	HeaderName string
}

type resolvedColumns struct {
	Type  columnResult
	Label columnResult
	Key   columnResult
}

func resolveQuestionColumns(header []string, opts QuestionParseOptions) (resolvedColumns, bool, error) {
	res := resolvedColumns{
		Type:  columnResult{Index: -1},
		Label: columnResult{Index: -1},
		Key:   columnResult{Index: -1},
	}
	var err error
	candidates := getColumnCandidates()
	if res.Type, err = pickColumn(header, opts.TypeColumn, candidates.Type); err != nil {
		return res, false, err
	}
	if res.Label, err = pickColumn(header, opts.LabelColumn, candidates.Label); err != nil {
		return res, false, err
	}
	if res.Key, err = pickColumn(header, opts.KeyColumn, candidates.Key); err != nil {
		return res, false, err
	}
	skipHeader := res.Type.FromHeader || res.Label.FromHeader || res.Key.FromHeader
	if res.Label.Index < 0 && len(header) > 0 {
		if skipHeader {
			return res, false, errors.New("no label column found")
		}
		res.Label.Index = len(header) - 1
	}
	res.Type.HeaderName = headerNameForIndex(header, res.Type.Index, res.Type.FromHeader)
	res.Label.HeaderName = headerNameForIndex(header, res.Label.Index, res.Label.FromHeader)
	res.Key.HeaderName = headerNameForIndex(header, res.Key.Index, res.Key.FromHeader)
	return res, skipHeader, nil
}

func pickColumn(header []string, explicit string, candidates []string) (columnResult, error) {
	res := columnResult{Index: -1}
	if strings.TrimSpace(explicit) != "" {
		idx, fromHeader, err := matchExplicitColumn(header, explicit)
		if err != nil {
			return res, err
		}
		res.Index = idx
		res.FromHeader = fromHeader
		return res, nil
	}
	idx := findColumn(header, candidates)
	if idx >= 0 {
		res.Index = idx
		res.FromHeader = true
	}
	return res, nil
}

func matchExplicitColumn(header []string, explicit string) (int, bool, error) {
	trimmed := strings.TrimSpace(explicit)
	if trimmed == "" {
		return -1, false, nil
	}
	for i, col := range header {
		if strings.EqualFold(col, trimmed) {
			return i, true, nil
		}
	}
	if strings.HasPrefix(trimmed, "#") {
		idx, err := parseColumnIndex(trimmed)
		if err != nil {
			return -1, false, err
		}
		if idx >= len(header) {
			return -1, false, fmt.Errorf("column index %s is out of range", trimmed)
		}
		return idx, false, nil
	}
	return -1, false, fmt.Errorf("column %q not found", explicit)
}

func parseColumnIndex(token string) (int, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(token, "#"))
	if trimmed == "" {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	idx, err := strconv.Atoi(trimmed)
	if err != nil {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	if idx <= 0 {
		return -1, fmt.Errorf("column indices are 1-based: %q", token)
	}
	return idx - 1, nil
}

func headerNameForIndex(header []string, idx int, fromHeader bool) string {
	if idx < 0 {
		return ""
	}
	if fromHeader && idx < len(header) {
		if name := header[idx]; name != "" {
			return name
		}
	}
	return fmt.Sprintf("#%d", idx+1)
}
