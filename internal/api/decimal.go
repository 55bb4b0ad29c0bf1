package api

import (
	"math/big"

	"github.com/jackc/pgtype"

	"github.com/raffleprotocol/raffle-indexer/internal/store"
)

// Decimal wraps an arbitrary-precision integer so it is always marshaled as
// a JSON string, never a JSON number, preserving full precision for token
// amounts and randomness values over the wire (spec.md §6: "All numeric
// token amounts are serialized as decimal strings").
type Decimal struct {
	v *big.Int
}

// NewDecimal wraps v. A nil v marshals as JSON null.
func NewDecimal(v *big.Int) Decimal {
	return Decimal{v: v}
}

// DecimalFromNumeric wraps a pgtype.Numeric column value, treating an
// absent column as a nil Decimal.
func DecimalFromNumeric(n pgtype.Numeric) (Decimal, error) {
	if n.Status != pgtype.Present {
		return Decimal{}, nil
	}
	v, err := store.BigIntFromNumeric(n)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{v: v}, nil
}

// MarshalJSON renders the wrapped integer as a quoted base-10 string.
func (d Decimal) MarshalJSON() ([]byte, error) {
	if d.v == nil {
		return []byte(`null`), nil
	}
	return []byte(`"` + d.v.String() + `"`), nil
}
