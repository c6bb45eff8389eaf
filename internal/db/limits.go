package db

import (
	"math"

	"github.com/jackc/pgerrcode"
	"github.com/shopspring/decimal"
)

// MaxInteger is the largest value an INTEGER column holds.
const MaxInteger = math.MaxInt32

// MaxAmount is the exclusive upper bound of a NUMERIC(12,2) column.
var MaxAmount = decimal.New(1, 10)

// AmountFits reports whether d, rounded to cents, fits a NUMERIC(12,2) column.
func AmountFits(d decimal.Decimal) bool {
	return d.Round(2).Abs().LessThan(MaxAmount)
}

// IsOutOfRange reports whether the database rejected a value as too large for
// its column.
func IsOutOfRange(err error) bool {
	_, ok := ConstraintViolation(err, pgerrcode.NumericValueOutOfRange)
	return ok
}
