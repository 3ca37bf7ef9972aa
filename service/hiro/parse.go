package hiro

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// rateStrategy extracts a fee rate from one known response shape.
type rateStrategy func(v any) (float64, bool)

// rateStrategies are tried in order; the first one that yields a number wins.
var rateStrategies = []rateStrategy{
	bareNumber,
	objectField("fee_rate"),
	objectField("estimated_fee_rate"),
}

// ParseRate extracts a fee rate from a JSON response that is either a bare
// number or an object exposing the rate under a known key. Negative and
// non-finite values ("NaN", "Infinity") are not rates.
func ParseRate(raw []byte) (float64, bool) {
	v, ok := decodeJSON(raw)
	if !ok {
		return 0, false
	}
	for _, strategy := range rateStrategies {
		if rate, ok := strategy(v); ok {
			return rate, true
		}
	}
	return 0, false
}

// ParseRateText is ParseRate with a plain-text fallback: a body that is not
// JSON is reduced to its digits and decimal points and parsed as a number.
func ParseRateText(body []byte) (float64, bool) {
	if json.Valid(body) {
		return ParseRate(body)
	}

	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, string(body))
	if cleaned == "" {
		return 0, false
	}

	rate, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || !usableRate(rate) {
		return 0, false
	}
	return rate, true
}

// ParseTxID extracts a transaction id from a broadcast response. The node
// answers with either a bare JSON string or an object carrying "txid" or
// "txId". Objects that report an "error" are rejections even when they
// echo the txid back.
func ParseTxID(raw []byte) (string, bool) {
	v, ok := decodeJSON(raw)
	if !ok {
		return "", false
	}

	switch t := v.(type) {
	case string:
		id := strings.TrimSpace(t)
		return id, id != ""
	case map[string]any:
		if e, exists := t["error"]; exists && e != nil {
			return "", false
		}
		for _, key := range []string{"txid", "txId"} {
			if s, ok := t[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s), true
			}
		}
	}
	return "", false
}

func decodeJSON(raw []byte) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

func bareNumber(v any) (float64, bool) {
	return toFloat(v)
}

func objectField(key string) rateStrategy {
	return func(v any) (float64, bool) {
		obj, ok := v.(map[string]any)
		if !ok {
			return 0, false
		}
		field, exists := obj[key]
		if !exists || field == nil {
			return 0, false
		}
		return toFloat(field)
	}
}

func toFloat(v any) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case json.Number:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, false
	}
	if err != nil || !usableRate(f) {
		return 0, false
	}
	return f, true
}

func usableRate(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}
