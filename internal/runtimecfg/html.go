package runtimecfg

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// FromHTML extracts the injected object from a served page.
//
// A page without the assignment yields the defaults; only read errors are
// returned.
func FromHTML(r io.Reader) (*Config, error) {
	z := html.NewTokenizer(r)
	inScript := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("failed to read page: %w", err)
			}
			return New(Settings{}), nil
		case html.StartTagToken:
			name, _ := z.TagName()
			inScript = string(name) == "script"
		case html.EndTagToken:
			inScript = false
		case html.TextToken:
			if !inScript {
				continue
			}
			if raw := findAssignment(z.Text()); raw != nil {
				return Parse(raw), nil
			}
		}
	}
}

// findAssignment returns the JSON value assigned to window.LakukanDrive in a
// script body, or nil.
func findAssignment(script []byte) []byte {
	const lhs = "window." + GlobalName
	i := bytes.Index(script, []byte(lhs))
	if i < 0 {
		return nil
	}
	rest := strings.TrimLeft(string(script[i+len(lhs):]), " \t\r\n")
	if !strings.HasPrefix(rest, "=") {
		return nil
	}
	var raw json.RawMessage
	if err := json.NewDecoder(strings.NewReader(rest[1:])).Decode(&raw); err != nil {
		// Unsubstituted placeholder or garbage: trust-the-host means defaults.
		return []byte{}
	}
	return raw
}
