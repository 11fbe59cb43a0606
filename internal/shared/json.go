package shared

import (
	"encoding/json"
	"io"
)

// MarshalJSON encodes v, indented with two spaces when pretty is set.
func MarshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// WriteJSON encodes v to w followed by a newline.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	data, err := MarshalJSON(v, pretty)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
