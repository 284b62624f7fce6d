package protocol

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// String decodes a JSON string. Any other JSON value decodes to "".
type String string

func (s *String) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		*s = ""
		return nil
	}
	*s = String(v)
	return nil
}

// Number decodes a JSON number or a numeric string. Anything else leaves it
// invalid.
type Number struct {
	Value float64
	Valid bool
}

// Num returns a valid Number.
func Num(f float64) Number {
	return Number{Value: f, Valid: true}
}

// Float returns the value, or NaN when the number is invalid.
func (n Number) Float() float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Value
}

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	if strings.TrimSpace(string(b)) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = Number{Value: f, Valid: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			*n = Number{Value: f, Valid: true}
		}
	}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid || math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Bool decodes a JSON boolean. Any other JSON value decodes to false.
type Bool bool

func (v *Bool) UnmarshalJSON(b []byte) error {
	var x bool
	if err := json.Unmarshal(b, &x); err != nil {
		*v = false
		return nil
	}
	*v = Bool(x)
	return nil
}

// Int decodes a JSON number truncated toward zero. Any other value decodes to 0.
type Int int

func (v *Int) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil || f > math.MaxInt32 || f < math.MinInt32 {
		*v = 0
		return nil
	}
	*v = Int(int(f))
	return nil
}
