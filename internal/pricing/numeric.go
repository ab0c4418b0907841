package pricing

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Numeric coerces loosely typed price data into a decimal. Anything that is not a finite
// number (nil, NaN, garbage strings, unexpected types) becomes zero.
func Numeric(value any) decimal.Decimal {
	switch v := value.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return v
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero
		}
		return *v
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	case uint:
		return decimal.NewFromUint64(uint64(v))
	case uint64:
		return decimal.NewFromUint64(v)
	case float32:
		return fromFloat(float64(v))
	case float64:
		return fromFloat(v)
	case json.Number:
		return fromString(v.String())
	case string:
		return fromString(v)
	case *string:
		if v == nil {
			return decimal.Zero
		}
		return fromString(*v)
	default:
		return decimal.Zero
	}
}

// NonNegative clamps negative amounts to zero.
func NonNegative(value decimal.Decimal) decimal.Decimal {
	if value.IsNegative() {
		return decimal.Zero
	}
	return value
}

func fromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func fromString(raw string) decimal.Decimal {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero
	}
	return parsed
}
