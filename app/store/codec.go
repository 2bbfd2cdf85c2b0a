package store

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"reflect"
	"sort"
	"strings"
)

// titleFields has Title's layout without its JSON methods.
type titleFields Title

// titleKeys maps each modelled JSON key to its field index in Title.
var titleKeys = func() map[string]int {
	keys := make(map[string]int)
	typ := reflect.TypeOf(Title{})
	for i := 0; i < typ.NumField(); i++ {
		name, _, _ := strings.Cut(typ.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		keys[name] = i
	}
	return keys
}()

// UnmarshalJSON decodes a catalog record. Unknown keys are kept in Extra. A
// modelled key holding a value of the wrong type is dropped so the load
// defaults apply to it, instead of failing the whole catalog.
func (t *Title) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return &json.UnmarshalTypeError{Value: "null", Type: reflect.TypeOf(Title{})}
	}

	var decoded titleFields
	if err := json.Unmarshal(data, &decoded); err != nil {
		decoded = decodeFieldByField(fields)
	}

	for key, raw := range fields {
		if _, ok := titleKeys[key]; ok {
			continue
		}
		if decoded.Extra == nil {
			decoded.Extra = make(map[string]json.RawMessage)
		}
		decoded.Extra[key] = raw
	}

	*t = Title(decoded)
	return nil
}

func decodeFieldByField(fields map[string]json.RawMessage) titleFields {
	var out titleFields
	target := reflect.ValueOf(&out).Elem()

	for key, raw := range fields {
		index, ok := titleKeys[key]
		if !ok {
			continue
		}

		single, err := json.Marshal(map[string]json.RawMessage{key: raw})
		if err != nil {
			continue
		}

		var one titleFields
		if err := json.Unmarshal(single, &one); err != nil {
			slog.Warn("Ignoring malformed record field", "field", key, "value", string(raw), "error", err)
			continue
		}
		target.Field(index).Set(reflect.ValueOf(one).Field(index))
	}

	return out
}

// MarshalJSON writes the modelled fields followed by Extra in key order.
func (t Title) MarshalJSON() ([]byte, error) {
	data, err := encodeCompact(titleFields(t))
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(t.Extra))
	for key := range t.Extra {
		if _, modelled := titleKeys[key]; !modelled {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return data, nil
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	for _, key := range keys {
		name, err := encodeCompact(key)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(t.Extra[key])
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func encodeCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
