package utils

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ToString renders an arbitrary decoded value for log output.
func ToString(data any) string {
	switch v := data.(type) {
	case nil:
		return "null"
	case error:
		return v.Error()
	case string:
		return v
	case []byte:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	}
	text, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprint(data)
	}
	return string(text)
}

// MaskSecret keeps the first four characters of a token for log output.
func MaskSecret(secret string) string {
	if len(secret) <= 4 {
		return "***"
	}
	return secret[:4] + "***"
}
