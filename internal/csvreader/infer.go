package csvreader

import (
	"regexp"
	"strconv"

	"github.com/vitebski/csv-table-loader/pkg/models"
)

// Rule maps a column type to a predicate over cell values and a converter
type Rule struct {
	Type    models.ColumnType
	Match   func(string) bool
	Convert func(string) (any, error)
}

var (
	integerPattern = regexp.MustCompile(`^[+-]?[0-9]+$`)
	floatPattern   = regexp.MustCompile(`^[+-]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][+-]?[0-9]+)?$`)
)

// DefaultRules is the inference order: integer, then float, then text.
// Text accepts everything, so it must stay last.
var DefaultRules = []Rule{
	{
		Type: models.TypeInteger,
		Match: func(s string) bool {
			if !integerPattern.MatchString(s) {
				return false
			}
			_, err := strconv.ParseInt(s, 10, 64)
			return err == nil
		},
		Convert: func(s string) (any, error) {
			return strconv.ParseInt(s, 10, 64)
		},
	},
	{
		Type: models.TypeFloat,
		Match: func(s string) bool {
			if !floatPattern.MatchString(s) {
				return false
			}
			_, err := strconv.ParseFloat(s, 64)
			return err == nil
		},
		Convert: func(s string) (any, error) {
			return strconv.ParseFloat(s, 64)
		},
	},
	{
		Type:    models.TypeText,
		Match:   func(string) bool { return true },
		Convert: func(s string) (any, error) { return s, nil },
	},
}

// InferType returns the first rule that accepts every value.
// NULL cells are passed as nil and ignored; a column without values is text.
func InferType(rules []Rule, values []*string) Rule {
	text := rules[len(rules)-1]

	seen := false
	for _, v := range values {
		if v != nil {
			seen = true
			break
		}
	}
	if !seen {
		return text
	}

	for _, rule := range rules {
		matched := true
		for _, v := range values {
			if v != nil && !rule.Match(*v) {
				matched = false
				break
			}
		}
		if matched {
			return rule
		}
	}
	return text
}
