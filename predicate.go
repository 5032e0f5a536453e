package keyset

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm/clause"
)

type (
	// tConjunct is a single comparison of the form "Column Operator Value".
	// Operators that take no operand (IS NULL, IS NOT NULL) ignore Value.
	// OrNull widens the comparison to "(Column Operator ? OR Column IS NULL)"
	// for nullable columns whose NULL rows sort below every concrete value.
	tConjunct struct {
		Column   string
		Value    any
		Operator Operator
		OrNull   bool
	}

	tDisjunct []tConjunct

	// tDNF represents the disjunctive normal form (DNF) of a logical expression.
	// Each disjunct is joined by OR, and each disjunct consists of a list of
	// conjuncts which are joined by AND.
	//
	// Thus:
	//
	//	DNF = X1 OR X2 ... OR Xn, where Xi = Ai1 AND Ai2 ... AND Aim.
	//	DNF = (A11 AND A12 AND A13) OR (A21 AND A22 AND A23), for n=2, m=3.
	tDNF []tDisjunct
)

// toSQLClause renders a conjunct as an SQL condition with "?" placeholders.
// Returns the SQL string and the values for the placeholders, if any.
//
// Example:
//
//	tConjunct{Column: "id", Operator: ">", Value: 123}
//
// Result:
//
//	("id > ?", [123])
func (c tConjunct) toSQLClause() (string, []driver.Value) {
	if !c.Operator.takesOperand() {
		return fmt.Sprintf("%s %s", c.Column, c.Operator), nil
	}

	if c.OrNull {
		return fmt.Sprintf("(%s %s ? OR %s IS NULL)", c.Column, c.Operator, c.Column),
			[]driver.Value{parseAnyValue(c.Value)}
	}

	return fmt.Sprintf("%s %s ?", c.Column, c.Operator), []driver.Value{parseAnyValue(c.Value)}
}

// toGORMExpression renders a conjunct as a clause.Expression with bound vars.
func (c tConjunct) toGORMExpression() clause.Expression {
	sqlClause, args := c.toSQLClause()

	return clause.Expr{
		SQL:  sqlClause,
		Vars: lo.ToAnySlice(args),
	}
}

func parseAnyValue(v any) any {
	// Try parsing a value as time.Time. If it succeeds, return time.Time.
	// Otherwise return the original value. Cursor payloads travel as JSON,
	// so timestamps arrive back as RFC 3339 strings and must become
	// time.Time again before the driver binds them.
	fnParseBytesToTimeOrValue := func(vBytes []byte) any {
		dst := time.Time{}
		err := dst.UnmarshalText(vBytes)
		if err == nil {
			return dst
		}

		return v
	}

	switch vt := v.(type) {
	case string:
		return fnParseBytesToTimeOrValue([]byte(vt))
	case []byte:
		return fnParseBytesToTimeOrValue(vt)
	default:
		return v
	}
}

// toGORMExpression converts a disjunct (K1, K2, K3) into a gorm expression
// "K1 AND K2 AND K3" where each Ki is expanded via tConjunct.toGORMExpression.
func (d tDisjunct) toGORMExpression() clause.Expression {
	andExpressions := make([]clause.Expression, 0, len(d))
	for _, conjunct := range d {
		andExpressions = append(andExpressions, conjunct.toGORMExpression())
	}

	if len(andExpressions) == 1 {
		return andExpressions[0]
	} else if len(andExpressions) > 1 {
		return clause.And(andExpressions...)
	}

	return nil
}

// toSQLClause converts a disjunct (K1, K2, K3) into an SQL condition
// "(K1 AND K2 AND K3)" with corresponding values.
//
// Example:
//
//	tDisjunct{
//		{Column: "id", Operator: ">", Value: 5},
//		{Column: "name", Operator: "<", Value: "abc"},
//	}
//
// Result:
//
//	("(id > ? AND name < ?)", [5, "abc"])
func (d tDisjunct) toSQLClause() (string, []driver.Value) {
	andClauses := make([]string, 0, len(d))
	andValues := make([]driver.Value, 0, len(d))

	for _, conjunct := range d {
		andClause, conjunctValues := conjunct.toSQLClause()
		andClauses = append(andClauses, andClause)
		andValues = append(andValues, conjunctValues...)
	}

	if len(andClauses) >= 1 {
		return fmt.Sprintf("(%s)", strings.Join(andClauses, " AND ")), andValues
	}

	return "", nil
}

// toGORMExpression converts a DNF into a clause.Expression, joining
// disjuncts with OR.
func (d tDNF) toGORMExpression() clause.Expression {
	orExpressions := make([]clause.Expression, 0, len(d))

	for _, disjunct := range d {
		andExpressions := disjunct.toGORMExpression()
		if andExpressions == nil {
			continue
		}

		orExpressions = append(orExpressions, andExpressions)
	}

	if len(orExpressions) == 1 {
		return orExpressions[0]
	} else if len(orExpressions) > 1 {
		return clause.Or(orExpressions...)
	}

	return nil
}

// toSQLClause converts a DNF into an SQL condition, joining disjuncts with
// OR. An empty DNF renders as "TRUE": a predicate built from a cursor always
// keeps at least the tie-break disjunct, so emptiness only means "no filter".
//
// Example:
//
//	tDNF{
//		{{Column: "id", Operator: "<", Value: 10}},
//		{{Column: "id", Operator: "=", Value: 10}, {Column: "name", Operator: "<", Value: "abc"}},
//	}
//
// Result:
//
//	("((id < ?) OR (id = ? AND name < ?))", [10, 10, "abc"])
func (d tDNF) toSQLClause() (string, []driver.Value) {
	orClauses := make([]string, 0, len(d))
	values := make([]driver.Value, 0, len(d))

	for _, disjunct := range d {
		orClause, orValues := disjunct.toSQLClause()
		if orClause == "" {
			continue
		}

		orClauses = append(orClauses, orClause)
		values = append(values, orValues...)
	}

	if len(orClauses) >= 1 {
		return fmt.Sprintf("(%s)", strings.Join(orClauses, " OR ")), values
	}

	return "TRUE", nil
}

// buildKeysetPredicate expands a cursor position into the row-filter DNF for
// one page fetch.
//
// For orderings (C1...Cn) and the cursor's values (V1...Vn), disjunct i pins
// columns C1..Ci-1 to their cursor values and bounds Ci strictly past Vi in
// traversal order:
//
//	(C1 o1 V1) OR (C1 = V1 AND C2 o2 V2) OR ...
//
// A cursor names the last row of the page on its "before" side, so paging
// forward keeps every bound strict while paging backward relaxes the final
// tie-break bound to include the named row itself. A nil payload means "no
// cursor" and produces a nil DNF.
func buildKeysetPredicate(payload *Payload, orderings Orderings, direction Direction) (tDNF, error) {
	if payload == nil {
		return nil, nil
	}

	if err := payload.validateFields(orderings); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	dnf := make(tDNF, 0, len(orderings))

	for i, bound := range orderings {
		operator := bound.Order.ForOperator(direction)
		if direction == DirectionPrev && i == len(orderings)-1 {
			operator = operator.inclusive()
		}

		boundValue, _ := payload.Field(bound.Column)
		boundConjuncts, possible := compareConjuncts(bound.Column, boundValue, operator, bound.Nullable)
		if !possible {
			// No row can sit past this bound, e.g. nothing sorts after a
			// NULL that already occupies the edge. Drop the disjunct.
			continue
		}

		prefix := lo.Map(orderings[:i], func(prior OrderBy, _ int) tConjunct {
			value, _ := payload.Field(prior.Column)

			return equalityConjunct(prior.Column, value)
		})

		disjunct := make(tDisjunct, 0, len(prefix)+len(boundConjuncts))
		disjunct = append(disjunct, prefix...)
		disjunct = append(disjunct, boundConjuncts...)

		if len(disjunct) == 0 {
			// Vacuous bound with no prefix: every row qualifies.
			return nil, nil
		}

		dnf = append(dnf, disjunct)
	}

	return dnf, nil
}

func equalityConjunct(column string, value any) tConjunct {
	if value == nil {
		return tConjunct{Column: column, Operator: operatorIsNull}
	}

	return tConjunct{Column: column, Value: value, Operator: operatorEq}
}

// compareConjuncts renders one boundary comparison under the "NULL sorts
// below everything" policy. The bool result is false when the comparison is
// unsatisfiable.
func compareConjuncts(column string, value any, operator Operator, nullable bool) ([]tConjunct, bool) {
	if value == nil {
		switch operator {
		case OperatorGT:
			// Past the smallest possible value: every concrete value.
			return []tConjunct{{Column: column, Operator: operatorIsNotNull}}, true
		case OperatorGTE:
			// At or past the smallest possible value: everything.
			return nil, true
		case OperatorLT:
			// Nothing sorts below NULL.
			return nil, false
		case OperatorLTE:
			return []tConjunct{{Column: column, Operator: operatorIsNull}}, true
		}

		return nil, false
	}

	// SQL comparison drops NULL rows, but NULL sorts below every concrete
	// value, so "below V" on a nullable column must pull them back in.
	orNull := nullable && (operator == OperatorLT || operator == OperatorLTE)

	return []tConjunct{{Column: column, Value: value, Operator: operator, OrNull: orNull}}, true
}
