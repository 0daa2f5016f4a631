// Package loader reads corpus files and turns them into plain text.
//
// Decoding follows an ordered list of encodings: each is tried strictly and
// the first clean decode wins. When every configured encoding rejects the
// bytes, the content is decoded as ISO-8859-1, which maps every byte to a
// character, so decoding never fails. HTML-family files are additionally
// reduced to their visible text.
package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultEncodings is the decode order used when none is configured.
var DefaultEncodings = []string{"utf-8", "utf-8-sig", "latin-1"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type decoder struct {
	name   string
	decode func(data []byte) (string, bool)
}

// Loader decodes files under a fixed encoding policy. It is safe for
// concurrent use.
type Loader struct {
	decoders []decoder
}

// New resolves the named encodings. Unknown names are a configuration error.
func New(encodings []string) (*Loader, error) {
	if len(encodings) == 0 {
		encodings = DefaultEncodings
	}
	l := &Loader{decoders: make([]decoder, 0, len(encodings))}
	for _, name := range encodings {
		d, err := resolve(name)
		if err != nil {
			return nil, err
		}
		l.decoders = append(l.decoders, d)
	}
	return l, nil
}

// Load reads path and returns its text. HTML-family files (.html, .htm)
// are stripped of markup. Read errors are returned unchanged in meaning so
// the caller can skip the document.
func (l *Loader) Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	text := l.Decode(data)
	if IsHTML(path) {
		text = StripHTML(text)
	}
	return text, nil
}

// Decode converts raw bytes to text. It never fails.
func (l *Loader) Decode(data []byte) string {
	for _, d := range l.decoders {
		if text, ok := d.decode(data); ok {
			return text
		}
	}
	text, _ := charmap.ISO8859_1.NewDecoder().Bytes(data)
	return string(text)
}

// IsHTML reports whether path has an HTML-family extension.
func IsHTML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	}
	return false
}

func resolve(name string) (decoder, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "utf-8", "utf8":
		return decoder{name: key, decode: decodeUTF8}, nil
	case "utf-8-sig", "utf8-sig":
		return decoder{name: key, decode: func(data []byte) (string, bool) {
			return decodeUTF8(bytes.TrimPrefix(data, utf8BOM))
		}}, nil
	case "utf-16", "utf16":
		return strictDecoder(key, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)), nil
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1":
		return strictDecoder(key, charmap.ISO8859_1), nil
	case "cp1252", "windows-1252":
		return strictDecoder(key, charmap.Windows1252), nil
	}
	enc, err := htmlindex.Get(key)
	if err != nil {
		return decoder{}, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return strictDecoder(key, enc), nil
}

func decodeUTF8(data []byte) (string, bool) {
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

// strictDecoder treats any replacement character in the output as a failed
// decode.
func strictDecoder(name string, enc encoding.Encoding) decoder {
	return decoder{name: name, decode: func(data []byte) (string, bool) {
		out, err := enc.NewDecoder().Bytes(data)
		if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
			return "", false
		}
		return string(out), true
	}}
}
