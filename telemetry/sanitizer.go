package telemetry

import (
	"reflect"
	"strings"
)

// RedactedValue replaces the value of every sensitive key.
const RedactedValue = "***REDACTED***"

// DefaultSensitiveKeys are matched as lowercase substrings of map keys.
var DefaultSensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"key",
	"apikey",
	"api_key",
	"authorization",
	"auth",
	"credential",
	"credentials",
}

// Sanitizer redacts sensitive keys from payloads before they are buffered.
// The zero value is not usable; build one with NewSanitizer.
type Sanitizer struct {
	keys []string
}

// NewSanitizer returns a sanitizer matching DefaultSensitiveKeys plus extra.
func NewSanitizer(extra ...string) *Sanitizer {
	keys := make([]string, 0, len(DefaultSensitiveKeys)+len(extra))
	keys = append(keys, DefaultSensitiveKeys...)
	for _, k := range extra {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keys = append(keys, k)
		}
	}
	return &Sanitizer{keys: keys}
}

// IsSensitive reports whether key would be redacted.
func (s *Sanitizer) IsSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range s.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Sanitize returns a deep copy of data with sensitive values redacted.
// The input is never modified. nil in, nil out.
func (s *Sanitizer) Sanitize(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if s.IsSensitive(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = s.sanitizeValue(v)
	}
	return out
}

// SanitizeTags is Sanitize for flat string maps such as metric tags.
func (s *Sanitizer) SanitizeTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if s.IsSensitive(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = v
	}
	return out
}

func (s *Sanitizer) sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return s.Sanitize(val)
	case map[string]string:
		return s.SanitizeTags(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = s.sanitizeValue(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]map[string]interface{}, len(val))
		for i, item := range val {
			out[i] = s.Sanitize(item)
		}
		return out
	default:
		return s.sanitizeReflect(v)
	}
}

// sanitizeReflect covers typed collections the switch above does not name,
// such as http.Header or map[string]int. String-keyed maps come back as
// map[string]interface{}; slices of scalars keep their type but never share
// a backing array with the input.
func (s *Sanitizer) sanitizeReflect(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			if s.IsSensitive(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = s.sanitizeValue(iter.Value().Interface())
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		if isScalarKind(rv.Type().Elem().Kind()) {
			out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
			reflect.Copy(out, rv)
			return out.Interface()
		}
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = s.sanitizeValue(rv.Index(i).Interface())
		}
		return out
	default:
		return v
	}
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Interface, reflect.Pointer, reflect.Struct:
		return false
	default:
		return true
	}
}

var defaultSanitizer = NewSanitizer()

// Sanitize redacts using the default key list.
func Sanitize(data map[string]interface{}) map[string]interface{} {
	return defaultSanitizer.Sanitize(data)
}
