package keyset

import (
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// Order defines the sort order of a single column.
type Order string

const (
	OrderASC  Order = "ASC"
	OrderDESC Order = "DESC"
)

func (o Order) Valid() bool {
	return o == OrderASC || o == OrderDESC
}

// Invert flips ASC to DESC and vice versa. Used when a prev traversal turns
// the query around to fetch the rows nearest to the cursor first.
func (o Order) Invert() Order {
	switch o {
	case OrderASC:
		return OrderDESC
	case OrderDESC:
		return OrderASC
	default:
		panic(fmt.Errorf("cannot invert order '%s'", o))
	}
}

// ForOperator maps the column order and the traversal direction to the
// strict comparison selecting rows beyond the cursor position:
//
//	ASC  + next → ">"    DESC + next → "<"
//	ASC  + prev → "<"    DESC + prev → ">"
func (o Order) ForOperator(d Direction) Operator {
	switch o {
	case OrderASC:
		return lo.Ternary(d == DirectionPrev, OperatorLT, OperatorGT)
	case OrderDESC:
		return lo.Ternary(d == DirectionPrev, OperatorGT, OperatorLT)
	default:
		panic(fmt.Errorf("cannot map order '%s' to operator", o))
	}
}

type (
	Orderings []OrderBy
	OrderBy   struct {
		Column string
		Order  Order
		// Nullable marks a column that may hold NULL. The engine then pins
		// NULL placement explicitly (first under ASC, last under DESC)
		// instead of trusting the engine default, which differs between
		// MySQL and Postgres and would silently break keyset stability.
		Nullable bool
	}

	ColumnAlias = string

	// ColumnMapping maps external column aliases to fully qualified column names.
	// Use it when bare column names could cause an "ambiguous column name" error.
	// Key is an external alias, value is an internal column name.
	ColumnMapping = map[ColumnAlias]string
)

var _availableColumnNameSymbols = append([]rune("_.'`\""), lo.AlphanumericCharset...)

func (o OrderBy) validate() error {
	if !o.Order.Valid() {
		return fmt.Errorf("invalid ordering order '%s'", o.Order)
	}

	// Guard against SQL injection by restricting allowed characters in column names.
	if !lo.Every(_availableColumnNameSymbols, []rune(o.Column)) {
		return fmt.Errorf("ordering column name contains forbidden symbols '%s'", o.Column)
	}

	return nil
}

// nullsModifier returns the explicit NULL placement for a nullable column:
// NULLS FIRST under ASC, NULLS LAST under DESC. Empty for non-nullable
// columns.
func (o OrderBy) nullsModifier() string {
	if !o.Nullable {
		return ""
	}

	return lo.Ternary(o.Order == OrderASC, "NULLS FIRST", "NULLS LAST")
}

// Invert flips every entry's order. The Nullable flag travels with the
// column, so NULL placement stays the mirror image of the natural order.
func (o Orderings) Invert() Orderings {
	return lo.Map(o, func(item OrderBy, _ int) OrderBy {
		item.Order = item.Order.Invert()
		return item
	})
}

// ToSQLSlice converts Orderings to a slice of strings in the form
// "<order_column> <order>" suitable for SQL query builders.
//
// Example: for Orderings: [{"a", "ASC"}, {"b", "DESC"}] returns ["a ASC", "b DESC"].
func (o Orderings) ToSQLSlice() []string {
	return o.toSQLSlice("")
}

func (o Orderings) toSQLSlice(dialect string) []string {
	ret := make([]string, 0, len(o))
	for _, ordering := range o {
		clause := fmt.Sprintf("%s %s", ordering.Column, ordering.Order)

		// MySQL and SQLite already place NULLs first under ASC and last
		// under DESC; only Postgres needs to be told.
		if modifier := ordering.nullsModifier(); modifier != "" && dialect == dialectPostgres {
			clause += " " + modifier
		}

		ret = append(ret, clause)
	}

	return ret
}

// ToSQL converts Orderings to a single string
// "<order_column_1> <order_1>, <order_column_2> <order_2>"
// suitable for embedding into an SQL query.
// Example: for [{"a", "ASC"}, {"b", "DESC"}] returns "a ASC, b DESC".
func (o Orderings) ToSQL() string {
	return strings.Join(o.ToSQLSlice(), ", ")
}

func (o Orderings) toSQLDialect(dialect string) string {
	return strings.Join(o.toSQLSlice(dialect), ", ")
}

// Apply applies the ordering to a gorm query, with dialect-aware NULL
// placement for nullable columns.
func (o Orderings) Apply(db *gorm.DB) *gorm.DB {
	return db.Order(o.toSQLDialect(db.Name()))
}

func (o Orderings) validate() error {
	if len(o) == 0 {
		return fmt.Errorf("empty ordering list")
	}

	var err error
	for _, ordering := range o {
		err = ordering.validate()
		if err != nil {
			return err
		}
	}

	return nil
}

// columns returns the column names in configured order.
func (o Orderings) columns() []string {
	return lo.Map(o, func(item OrderBy, _ int) string { return item.Column })
}

// ParseSort builds Orderings from a list of strings in the format
// "column asc|desc". Column aliases are resolved via ColumnMapping.
// Returns an error if an alias is not found in the mapping.
func ParseSort(stringsOrderings []string, columnMapping ColumnMapping) (Orderings, error) {
	ret := make([]OrderBy, 0, len(stringsOrderings))
	aliases := lo.Keys(columnMapping)

	for _, stringOrdering := range stringsOrderings {
		cutStringOrdering := strings.Split(strings.TrimSpace(stringOrdering), " ")
		if len(cutStringOrdering) != 2 {
			return nil, fmt.Errorf("invalid ordering string format '%s'", stringOrdering)
		}

		columnAlias := cutStringOrdering[0]
		order := Order(strings.ToUpper(cutStringOrdering[1]))
		columnName := columnMapping[columnAlias]
		if columnName == "" {
			return nil, fmt.Errorf("invalid column alias. closest: '%s'", closestAlias(columnAlias, aliases))
		}

		ret = append(ret, OrderBy{
			Column: columnName,
			Order:  order,
		})
	}

	return ret, nil
}

func closestAlias(input ColumnAlias, dataSet []ColumnAlias) ColumnAlias {
	minDist := math.MaxInt
	closest := ""

	for _, dataSetAlias := range dataSet {
		dist := levenshtein([]rune(dataSetAlias), []rune(input))
		if dist < minDist {
			minDist = dist
			closest = dataSetAlias
		}
	}

	return closest
}

const dialectPostgres = "postgres"
