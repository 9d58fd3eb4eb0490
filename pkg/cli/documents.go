package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/advtxt/advtxt-db-mongo/pkg/store"
)

// stdinArg reads a document argument from standard input.
const stdinArg = "-"

// readDocument parses arg as MongoDB Extended JSON, canonical or relaxed.
// An argument of "-" is read from in.
func readDocument(in io.Reader, arg string) (store.Record, error) {
	raw := arg
	if arg == stdinArg {
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("read document from stdin: %w", err)
		}
		raw = string(data)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty document")
	}

	var doc store.Record
	if err := bson.UnmarshalExtJSON([]byte(raw), false, &doc); err != nil {
		return nil, fmt.Errorf("parse document %q: %w", raw, err)
	}
	return doc, nil
}

// writeDocument prints doc as relaxed Extended JSON followed by a newline.
// A nil document prints as null.
func writeDocument(w io.Writer, doc store.Record) error {
	if doc == nil {
		_, err := fmt.Fprintln(w, "null")
		return err
	}
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return fmt.Errorf("format document: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
