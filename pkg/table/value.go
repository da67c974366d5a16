package table

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04:05"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindDate
	KindClock
	KindTriBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindClock:
		return "clock"
	case KindTriBool:
		return "tribool"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// TriBool is a boolean that can also be Unknown. The zero value is Unknown.
type TriBool uint8

const (
	Unknown TriBool = iota
	True
	False
)

func TriBoolOf(b bool) TriBool {
	if b {
		return True
	}
	return False
}

// Bool reports the boolean value and whether it is known.
func (t TriBool) Bool() (value bool, known bool) {
	switch t {
	case True:
		return true, true
	case False:
		return false, true
	default:
		return false, false
	}
}

func (t TriBool) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// Value is a single cell. The zero Value is the absent marker.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	t    time.Time
	tb   TriBool
}

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, s: s} }

func Int(i int64) Value { return Value{kind: KindInt, i: i} }

func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.i = 1
	}
	return v
}

// Date keeps only the calendar day of t, in UTC.
func Date(t time.Time) Value {
	y, m, d := t.Date()
	return Value{kind: KindDate, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func Clock(hour, min, sec int) Value {
	return Value{kind: KindClock, t: time.Date(0, time.January, 1, hour, min, sec, 0, time.UTC)}
}

func Tri(t TriBool) Value { return Value{kind: KindTriBool, tb: t} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

func (v Value) Int64() (int64, bool) { return v.i, v.kind == KindInt }

func (v Value) Float64() (float64, bool) { return v.f, v.kind == KindFloat }

func (v Value) Bool() (bool, bool) { return v.i == 1, v.kind == KindBool }

// Time returns the stored instant for date and clock values.
func (v Value) Time() (time.Time, bool) {
	return v.t, v.kind == KindDate || v.kind == KindClock
}

func (v Value) TriBool() (TriBool, bool) { return v.tb, v.kind == KindTriBool }

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == o.s
	case KindInt, KindBool:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindDate, KindClock:
		return v.t.Equal(o.t)
	case KindTriBool:
		return v.tb == o.tb
	}
	return false
}

// String renders the value as text. Absent values and unknown booleans render empty.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.i == 1)
	case KindDate:
		return v.t.Format(DateLayout)
	case KindClock:
		return v.t.Format(ClockLayout)
	case KindTriBool:
		if b, ok := v.tb.Bool(); ok {
			return strconv.FormatBool(b)
		}
		return ""
	default:
		return ""
	}
}

// Interface converts the value to a plain Go value for encoders and drivers.
// Dates become time.Time, clocks become "HH:MM:SS", unknown booleans become nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.i == 1
	case KindDate:
		return v.t
	case KindClock:
		return v.t.Format(ClockLayout)
	case KindTriBool:
		if b, ok := v.tb.Bool(); ok {
			return b
		}
		return nil
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindDate {
		return json.Marshal(v.t.Format(DateLayout))
	}
	if v.kind == KindFloat && (math.IsNaN(v.f) || math.IsInf(v.f, 0)) {
		return []byte("null"), nil
	}
	return json.Marshal(v.Interface())
}
