package worker

import (
	"fmt"
	"regexp"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/GPTx-global/gora/x/gora/types"
)

// Expression prefixes understood in value_expr and timestamp_expr.
const (
	PrefixJSONPath = "jsonpath:"
	PrefixRegex    = "regex:"
)

var (
	bracketIndex = regexp.MustCompile(`\[(\d+)\]`)
	bracketKey   = regexp.MustCompile(`\[['"]([^'"\]]+)['"]\]`)
)

// Extract evaluates expr against body. A jsonpath expression returns the
// selected JSON value, a regex expression returns its first capture group,
// or the whole match when the pattern has no groups.
func Extract(body []byte, expr string) (string, error) {
	switch {
	case strings.HasPrefix(expr, PrefixJSONPath):
		path := toGJSONPath(strings.TrimPrefix(expr, PrefixJSONPath))
		if path == "" {
			return "", types.ErrInvalidField.Wrapf("empty json path in %q", expr)
		}
		if !gjson.ValidBytes(body) {
			return "", fmt.Errorf("response is not valid JSON")
		}
		res := gjson.GetBytes(body, path)
		if !res.Exists() {
			return "", fmt.Errorf("path %q not found", path)
		}
		return res.String(), nil

	case strings.HasPrefix(expr, PrefixRegex):
		re, err := regexp.Compile(strings.TrimPrefix(expr, PrefixRegex))
		if err != nil {
			return "", types.ErrInvalidField.Wrapf("regex: %s", err)
		}
		m := re.FindSubmatch(body)
		if m == nil {
			return "", fmt.Errorf("pattern %q did not match", re)
		}
		if len(m) > 1 {
			return string(m[1]), nil
		}
		return string(m[0]), nil

	default:
		return "", types.ErrInvalidField.Wrapf("unsupported expression %q", expr)
	}
}

// toGJSONPath turns "$.data[0]['price']" into "data.0.price".
func toGJSONPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "$")
	p = bracketIndex.ReplaceAllString(p, ".$1")
	p = bracketKey.ReplaceAllString(p, ".$1")
	return strings.TrimPrefix(p, ".")
}

// FormatValue converts an extracted string to its canonical form for
// valueType. Numbers are rounded half to even at roundTo decimals; a roundTo
// of zero keeps the full precision.
func FormatValue(raw string, valueType, roundTo uint8) (string, error) {
	raw = strings.TrimSpace(raw)

	switch valueType {
	case types.ValueTypeString:
		return raw, nil

	case types.ValueTypeNumber:
		d, err := sdkmath.LegacyNewDecFromStr(strings.TrimPrefix(raw, "+"))
		if err != nil {
			return "", fmt.Errorf("not a number: %q", raw)
		}
		if roundTo == 0 {
			return trimDec(d.String()), nil
		}
		if roundTo > sdkmath.LegacyPrecision {
			return "", types.ErrInvalidField.Wrapf("round_to %d exceeds %d decimals", roundTo, sdkmath.LegacyPrecision)
		}
		scaled := d.Mul(sdkmath.LegacyNewDec(10).Power(uint64(roundTo))).RoundInt()
		return shiftPoint(scaled, int(roundTo)), nil

	case types.ValueTypeBoolean:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return "", fmt.Errorf("not a boolean: %q", raw)
		}
		return cast.ToString(b), nil

	default:
		return "", types.ErrInvalidField.Wrapf("value_type %d", valueType)
	}
}

func trimDec(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// shiftPoint renders i / 10^decimals with exactly decimals digits.
func shiftPoint(i sdkmath.Int, decimals int) string {
	digits := i.Abs().String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}

	cut := len(digits) - decimals
	out := digits[:cut] + "." + digits[cut:]
	if i.IsNegative() {
		out = "-" + out
	}
	return out
}
