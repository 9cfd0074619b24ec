package main

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode output")
	}
	return nil
}
