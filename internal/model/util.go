package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StringFloat64 is a temperature value that upstreams send either as a JSON
// number or as a numeric string.
type StringFloat64 float64

// UnmarshalJSON decodes 215 and "215" alike. null, empty strings and
// non-finite values are rejected.
func (s *StringFloat64) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("value %s is not a finite number", b)
	}
	*s = StringFloat64(f)
	return nil
}

// Float64 returns the plain value.
func (s StringFloat64) Float64() float64 { return float64(s) }
