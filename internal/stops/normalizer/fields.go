package normalizer

import (
	"math"
	"strconv"
	"strings"
	"time"

	"checkpost/pkg/table"

	"github.com/araddon/dateparse"
	"golang.org/x/text/cases"
)

var clockLayouts = []string{
	"15:04:05",
	"15:04",
	"15:04:05.999999999",
	"3:04 PM",
	"3:04:05 PM",
	"3:04PM",
	"3:04:05PM",
}

var (
	trueTokens  = map[string]struct{}{"True": {}, "true": {}, "1": {}}
	falseTokens = map[string]struct{}{"False": {}, "false": {}, "0": {}}
)

func parseDate(v table.Value) table.Value {
	switch v.Kind() {
	case table.KindDate:
		return v
	case table.KindString:
		s, _ := v.Str()
		s = strings.TrimSpace(s)
		if s == "" {
			return table.Null()
		}
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return table.Null()
		}
		return table.Date(t)
	default:
		return table.Null()
	}
}

func parseClock(v table.Value) table.Value {
	switch v.Kind() {
	case table.KindClock:
		return v
	case table.KindString:
		s, _ := v.Str()
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			return table.Null()
		}
		for _, layout := range clockLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return table.Clock(t.Clock())
			}
		}
		// full timestamps keep only their time of day
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return table.Null()
		}
		return table.Clock(t.Clock())
	default:
		return table.Null()
	}
}

func parseAge(v table.Value) table.Value {
	switch v.Kind() {
	case table.KindInt:
		if i, _ := v.Int64(); i >= 0 {
			return v
		}
	case table.KindFloat:
		f, _ := v.Float64()
		return ageFromFloat(f)
	case table.KindString:
		s, _ := v.Str()
		s = strings.TrimSpace(s)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			if i >= 0 {
				return table.Int(i)
			}
			return table.Null()
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return ageFromFloat(f)
		}
	}
	return table.Null()
}

func ageFromFloat(f float64) table.Value {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return table.Null()
	}
	return table.Int(int64(f))
}

func coerceBool(v table.Value) table.TriBool {
	switch v.Kind() {
	case table.KindTriBool:
		tb, _ := v.TriBool()
		return tb
	case table.KindBool:
		b, _ := v.Bool()
		return table.TriBoolOf(b)
	case table.KindInt:
		switch i, _ := v.Int64(); i {
		case 1:
			return table.True
		case 0:
			return table.False
		}
	case table.KindFloat:
		switch f, _ := v.Float64(); f {
		case 1:
			return table.True
		case 0:
			return table.False
		}
	case table.KindString:
		s, _ := v.Str()
		if _, ok := trueTokens[s]; ok {
			return table.True
		}
		if _, ok := falseTokens[s]; ok {
			return table.False
		}
	}
	return table.Unknown
}

// classifyViolation maps free text to a violation category. The first
// matching keyword wins, so "DUI speeding stop" is Speeding.
func classifyViolation(v table.Value, title cases.Caser) table.Value {
	if v.IsNull() {
		return table.Null()
	}
	raw := v.String()
	lowered := strings.ToLower(raw)

	switch {
	case strings.Contains(lowered, "speed"):
		return table.String("Speeding")
	case strings.Contains(lowered, "dui"), strings.Contains(lowered, "drunk"):
		return table.String("DUI")
	case strings.Contains(lowered, "seat"):
		return table.String("Seatbelt")
	case strings.Contains(lowered, "equipment"):
		return table.String("Equipment")
	}
	return table.String(title.String(strings.TrimSpace(raw)))
}
