// Package precompress encodes scripts ahead of time and picks the variant a
// client can decode.
package precompress

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Encoding is a precompressed variant written next to a file.
type Encoding struct {
	// Name is the Content-Encoding token.
	Name string
	// Ext is appended to the file name.
	Ext    string
	encode func(w io.Writer) io.WriteCloser
	decode func(r io.Reader) (io.Reader, error)
}

// Gzip is the gzip variant.
var Gzip = Encoding{
	Name: "gzip",
	Ext:  ".gz",
	encode: func(w io.Writer) io.WriteCloser {
		// BestCompression is a valid level; the error is always nil.
		zw, _ := gzip.NewWriterLevel(w, gzip.BestCompression)
		return zw
	},
	decode: func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	},
}

// Brotli is the brotli variant.
var Brotli = Encoding{
	Name: "br",
	Ext:  ".br",
	encode: func(w io.Writer) io.WriteCloser {
		return brotli.NewWriterLevel(w, brotli.BestCompression)
	},
	decode: func(r io.Reader) (io.Reader, error) {
		return brotli.NewReader(r), nil
	},
}

// All lists the encodings in server preference order.
var All = []Encoding{Brotli, Gzip}

// ByExt returns the encoding whose extension ends name.
func ByExt(name string) (Encoding, bool) {
	for _, e := range All {
		if strings.HasSuffix(name, e.Ext) {
			return e, true
		}
	}
	return Encoding{}, false
}

// Compress encodes data.
func (e Encoding) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := e.encode(&buf)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("writing %s data: %w", e.Name, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing %s writer: %w", e.Name, err)
	}
	return buf.Bytes(), nil
}

// Decompress decodes data.
func (e Encoding) Decompress(data []byte) ([]byte, error) {
	r, err := e.decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reading %s data: %w", e.Name, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s data: %w", e.Name, err)
	}
	return out, nil
}

// Accepts reports whether an Accept-Encoding header value allows coding.
func Accepts(header, coding string) bool {
	star := false
	for part := range strings.SplitSeq(header, ",") {
		tok, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok != coding && tok != "*" {
			continue
		}
		ok := true
		for param := range strings.SplitSeq(params, ";") {
			k, v, found := strings.Cut(param, "=")
			if !found || !strings.EqualFold(strings.TrimSpace(k), "q") {
				continue
			}
			if q, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && q == 0 {
				ok = false
			}
		}
		if tok == coding {
			return ok
		}
		star = ok
	}
	return star
}

// Negotiate returns the first of available the client accepts.
func Negotiate(header string, available []Encoding) (Encoding, bool) {
	for _, e := range available {
		if Accepts(header, e.Name) {
			return e, true
		}
	}
	return Encoding{}, false
}
