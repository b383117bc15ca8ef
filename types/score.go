package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ScoreKind defines which variant a problem scores with
type ScoreKind int

// Score kinds
const (
	KindInvalid ScoreKind = iota
	KindBoolean
	KindReal
)

var kindToString = []string{
	"invalid",
	"boolean",
	"real",
}

func (k ScoreKind) String() string {
	ki := int(k)
	if ki < 0 || ki >= len(kindToString) {
		return kindToString[0]
	}
	return kindToString[ki]
}

// ParseScoreKind converts the configuration name to ScoreKind
func ParseScoreKind(s string) (ScoreKind, error) {
	for i, v := range kindToString[1:] {
		if v == s {
			return ScoreKind(i + 1), nil
		}
	}
	return KindInvalid, fmt.Errorf("invalid score kind: %q", s)
}

// Score is either Boolean or Real. The zero value is an absent score.
type Score struct {
	kind ScoreKind
	b    bool
	r    float64
}

// Boolean creates a boolean score
func Boolean(v bool) Score {
	return Score{kind: KindBoolean, b: v}
}

// Real creates a real score
func Real(v float64) Score {
	return Score{kind: KindReal, r: v}
}

// MinScore returns the failing value of the kind
func MinScore(kind ScoreKind) Score {
	if kind == KindBoolean {
		return Boolean(false)
	}
	return Real(0)
}

// MaxScore returns the full value of the kind
func MaxScore(kind ScoreKind) Score {
	if kind == KindBoolean {
		return Boolean(true)
	}
	return Real(1)
}

// Kind returns the variant of the score
func (s Score) Kind() ScoreKind {
	return s.kind
}

// IsZero reports whether the score is absent
func (s Score) IsZero() bool {
	return s.kind == KindInvalid
}

// Bool returns the boolean value and whether the score is Boolean
func (s Score) Bool() (bool, bool) {
	return s.b, s.kind == KindBoolean
}

// Float returns the real value and whether the score is Real
func (s Score) Float() (float64, bool) {
	return s.r, s.kind == KindReal
}

// Value returns bool or float64 for encoders, nil for the absent score
func (s Score) Value() any {
	switch s.kind {
	case KindBoolean:
		return s.b
	case KindReal:
		return s.r
	}
	return nil
}

// ScoreFromValue is the inverse of Value. Values of other types are rejected,
// integers are not coerced into Real.
func ScoreFromValue(v any) (Score, error) {
	switch v := v.(type) {
	case nil:
		return Score{}, nil
	case bool:
		return Boolean(v), nil
	case float64:
		return Real(v), nil
	}
	return Score{}, fmt.Errorf("invalid score value of type %T", v)
}

func (s Score) String() string {
	switch s.kind {
	case KindBoolean:
		return strconv.FormatBool(s.b)
	case KindReal:
		return strconv.FormatFloat(s.r, 'g', -1, 64)
	}
	return "<none>"
}

// MarshalJSON encodes the score as a JSON boolean or number
func (s Score) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Value())
}

// UnmarshalJSON decodes a JSON boolean or number
func (s *Score) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	sc, err := ScoreFromValue(v)
	if err != nil {
		return err
	}
	*s = sc
	return nil
}
