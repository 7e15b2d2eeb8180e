package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"

	gmath "github.com/ethereum/go-ethereum/common/math"
)

// Quantity is a signed integer that decodes from a JSON number or from a
// decimal or 0x-prefixed hex string. JSON null leaves it unchanged.
type Quantity int64

func (q *Quantity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] != '"' {
		v, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return fmt.Errorf("quantity %s: %w", b, err)
		}
		*q = Quantity(v)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if len(s) > 0 && s[0] == '-' {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("quantity %q: %w", s, err)
		}
		*q = Quantity(v)
		return nil
	}
	v, ok := gmath.ParseUint64(s)
	if !ok || v > math.MaxInt64 {
		return fmt.Errorf("quantity %q: invalid", s)
	}
	*q = Quantity(v)
	return nil
}

func (q Quantity) Int64() int64 { return int64(q) }

// Wei is an integer amount in the smallest denomination. The zero value is 0.
type Wei struct {
	v *big.Int
}

// NewWei wraps v. A nil v is treated as zero.
func NewWei(v *big.Int) Wei {
	return Wei{v: v}
}

// Big returns the amount as a big.Int. It never returns nil.
func (w Wei) Big() *big.Int {
	if w.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(w.v)
}

func (w Wei) String() string {
	if w.v == nil {
		return "0"
	}
	return w.v.String()
}

func (w *Wei) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, ok := gmath.ParseBig256(s)
	if !ok {
		return fmt.Errorf("wei %q: invalid", s)
	}
	w.v = v
	return nil
}

func (w Wei) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}
