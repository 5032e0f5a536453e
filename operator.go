package keyset

// Operator defines a comparison operator for filtering by column.
// Used in keyset filtering conditions.
type Operator string

const (
	OperatorGT  Operator = ">"
	OperatorLT  Operator = "<"
	OperatorGTE Operator = ">="
	OperatorLTE Operator = "<="

	// operatorEq is the equality operator. It is private because we use it
	// ONLY while building filtering conditions.
	operatorEq Operator = "="

	// NULL-test operators carry no operand. They are private for the same
	// reason: they exist only as building blocks of the keyset predicate,
	// where comparisons against NULL cursor values must be explicit.
	operatorIsNull    Operator = "IS NULL"
	operatorIsNotNull Operator = "IS NOT NULL"
)

func (o Operator) Valid() bool {
	switch o {
	case OperatorGT, OperatorLT, OperatorGTE, OperatorLTE:
		return true
	default:
		return false
	}
}

// inclusive returns the non-strict counterpart of a strict comparison and
// leaves every other operator unchanged.
func (o Operator) inclusive() Operator {
	switch o {
	case OperatorGT:
		return OperatorGTE
	case OperatorLT:
		return OperatorLTE
	default:
		return o
	}
}

// takesOperand reports whether the operator compares against a value, i.e.
// whether it renders with a bind placeholder.
func (o Operator) takesOperand() bool {
	return o != operatorIsNull && o != operatorIsNotNull
}
