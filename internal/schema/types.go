package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vitebski/csv-table-loader/pkg/models"
)

// SQLType maps an inferred column type to the native column type of a driver
func SQLType(driver string, columnType models.ColumnType) string {
	switch columnType {
	case models.TypeInteger:
		return "BIGINT"
	case models.TypeFloat:
		if driver == models.DriverMySQL {
			return "DOUBLE"
		}
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

type typeFamily int

const (
	familyOther typeFamily = iota
	familyInteger
	familyFloat
	familyText
)

var families = map[string]typeFamily{
	"smallint":          familyInteger,
	"integer":           familyInteger,
	"int":               familyInteger,
	"bigint":            familyInteger,
	"tinyint":           familyInteger,
	"mediumint":         familyInteger,
	"real":              familyFloat,
	"double precision":  familyFloat,
	"double":            familyFloat,
	"float":             familyFloat,
	"numeric":           familyFloat,
	"decimal":           familyFloat,
	"text":              familyText,
	"character varying": familyText,
	"varchar":           familyText,
	"character":         familyText,
	"char":              familyText,
	"tinytext":          familyText,
	"mediumtext":        familyText,
	"longtext":          familyText,
}

// accepts lists which existing column families can store each inferred type.
// Numbers are bound as int64/float64 parameters, which postgres will not encode into text columns.
var accepts = map[models.ColumnType][]typeFamily{
	models.TypeInteger: {familyInteger, familyFloat},
	models.TypeFloat:   {familyFloat},
	models.TypeText:    {familyText},
}

// Accepts reports whether an existing column of dataType can store values of columnType
func Accepts(dataType string, columnType models.ColumnType) bool {
	family := families[strings.ToLower(strings.TrimSpace(dataType))]
	for _, f := range accepts[columnType] {
		if f == family {
			return true
		}
	}
	return false
}

// CheckCompatible verifies that every column of the structure exists in the table
// with a type able to store it. Extra table columns are allowed.
// Names match ignoring case, an exact match winning; the returned structure carries
// the table's own spelling so inserts name the real columns.
func CheckCompatible(existing []ExistingColumn, structure models.TableStructure) (models.TableStructure, error) {
	target := make(models.TableStructure, len(structure))
	var problems []string
	for i, col := range structure {
		found := matchColumn(existing, col.Name)
		if found == nil {
			problems = append(problems, fmt.Sprintf("column %q is missing", col.Name))
			continue
		}
		if !Accepts(found.DataType, col.Type) {
			problems = append(problems, fmt.Sprintf("column %q is %s, cannot store %s values", col.Name, found.DataType, col.Type))
		}
		target[i] = models.Column{Name: found.Name, Type: col.Type}
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	return target, nil
}

func matchColumn(existing []ExistingColumn, name string) *ExistingColumn {
	var folded *ExistingColumn
	for i := range existing {
		if existing[i].Name == name {
			return &existing[i]
		}
		if folded == nil && strings.EqualFold(existing[i].Name, name) {
			folded = &existing[i]
		}
	}
	return folded
}
