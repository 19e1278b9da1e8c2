package csvreader

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/vitebski/csv-table-loader/pkg/models"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Options controls how a CSV file is parsed
type Options struct {
	// Delimiter separates fields; zero means ','.
	Delimiter rune
	// Encoding is the file charset: utf-8 (default), latin-1 or windows-1252.
	Encoding string
	// NullValues lists cell contents that are loaded as NULL.
	NullValues []string
	// SampleSize limits the first inference pass to N rows; zero scans every row.
	// A later value the sampled type rejects widens the column.
	SampleSize int
	// Rules overrides DefaultRules.
	Rules []Rule
}

// ReadCSV parses the file at path into rows and an inferred table structure
func ReadCSV(path string, opts Options) (*models.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.NewParseError("file %s not found", path)
		}
		return nil, models.NewParseError("open %s: %w", path, err)
	}
	defer f.Close()

	dataset, err := Read(f, opts)
	if err != nil {
		return nil, models.NewParseError("error reading the file %s: %w", path, unwrapLoadError(err))
	}
	dataset.Path = path
	return dataset, nil
}

// Read parses CSV content from r
func Read(r io.Reader, opts Options) (*models.Dataset, error) {
	decoder, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	if decoder != nil {
		r = decoder.NewDecoder().Reader(r)
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}

	header, err := reader.Read()
	if err == io.EOF {
		return nil, models.NewParseError("file is empty, a header row is required")
	}
	if err != nil {
		return nil, models.NewParseError("malformed header: %w", err)
	}

	names, err := columnNames(header)
	if err != nil {
		return nil, err
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) && errors.Is(parseErr.Err, csv.ErrFieldCount) {
				return nil, models.NewParseError("ragged row on line %d: expected %d fields, got %d", parseErr.StartLine, len(names), len(record))
			}
			return nil, models.NewParseError("malformed CSV: %w", err)
		}
		for i, field := range record {
			if !utf8.ValidString(field) {
				line, _ := reader.FieldPos(i)
				return nil, models.NewParseError("invalid %s text on line %d, column %q", encodingName(opts.Encoding), line, names[i])
			}
		}
		records = append(records, record)
	}

	rules := opts.Rules
	if len(rules) == 0 {
		rules = DefaultRules
	}

	nulls := make(map[string]bool, len(opts.NullValues))
	for _, v := range opts.NullValues {
		nulls[v] = true
	}

	sampled := len(records)
	if opts.SampleSize > 0 && opts.SampleSize < sampled {
		sampled = opts.SampleSize
	}

	structure := make(models.TableStructure, len(names))
	columnRules := make([]Rule, len(names))
	for c, name := range names {
		values := make([]*string, len(records))
		for r := range records {
			if !nulls[records[r][c]] {
				values[r] = &records[r][c]
			}
		}
		columnRules[c] = InferType(rules, values[:sampled])

		// A value past the sample that the rule rejects widens the column
		for _, v := range values[sampled:] {
			if v != nil && !columnRules[c].Match(*v) {
				columnRules[c] = InferType(rules, values)
				break
			}
		}
		structure[c] = models.Column{Name: name, Type: columnRules[c].Type}
	}

	rows := make([]models.Row, len(records))
	for r, record := range records {
		row := make(models.Row, len(record))
		for c, field := range record {
			if nulls[field] {
				continue
			}
			value, err := columnRules[c].Convert(field)
			if err != nil {
				return nil, models.NewParseError("data row %d, column %q: value %q is not %s", r+1, names[c], field, structure[c].Type)
			}
			row[c] = value
		}
		rows[r] = row
	}

	return &models.Dataset{Structure: structure, Rows: rows}, nil
}

// columnNames validates the header row
func columnNames(header []string) ([]string, error) {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if !utf8.ValidString(h) {
			return nil, models.NewParseError("header column %d is not valid text", i+1)
		}
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, models.NewParseError("header column %d has no name", i+1)
		}
		key := strings.ToLower(name)
		if prev, ok := seen[key]; ok {
			return nil, models.NewParseError("duplicate column name %q in header (columns %d and %d)", name, prev+1, i+1)
		}
		seen[key] = i
		names[i] = name
	}
	return names, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "latin-1", "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	default:
		return nil, models.NewParseError("unsupported encoding %q", name)
	}
}

func encodingName(name string) string {
	if name == "" {
		return "utf-8"
	}
	return name
}

// unwrapLoadError strips the stage prefix so the path can be added without repeating it
func unwrapLoadError(err error) error {
	var loadErr *models.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Err
	}
	return err
}
