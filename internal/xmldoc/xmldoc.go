// Package xmldoc holds the token-level helpers behind the run configuration
// and project descriptor parsers.
//
// Parsers built on it walk the document explicitly: each recognised element
// is consumed by name and anything else is skipped, so documents written by
// newer tools load cleanly in older readers. Namespaces are ignored on read.
package xmldoc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Namespace is written on the root element of every saved document.
const Namespace = "http://www.sonarsource.com/msbuild/integration/2015/1"

// Decoder walks one document.
type Decoder struct {
	d *xml.Decoder
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{d: xml.NewDecoder(r)}
}

// Root consumes tokens up to the first element and checks its local name.
func (d *Decoder) Root(local string) error {
	for {
		tok, err := d.d.Token()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty document, expected <%s>", local)
		}
		if err != nil {
			return err
		}
		if el, ok := tok.(xml.StartElement); ok {
			if el.Name.Local != local {
				return fmt.Errorf("unexpected root element <%s>, expected <%s>", el.Name.Local, local)
			}
			return nil
		}
	}
}

// Children calls fn for each direct child element of the element whose start
// tag was consumed last, and returns after consuming its end tag. fn must
// consume the child entirely, typically via Text, Skip or a nested Children.
func (d *Decoder) Children(fn func(el xml.StartElement) error) error {
	for {
		tok, err := d.d.Token()
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := fn(t); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

// Text returns the character data of the current element, skipping any
// nested elements, and consumes its end tag.
func (d *Decoder) Text() (string, error) {
	var sb strings.Builder
	for {
		tok, err := d.d.Token()
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			if err := d.d.Skip(); err != nil {
				return "", err
			}
		case xml.EndElement:
			return sb.String(), nil
		}
	}
}

// Skip discards the current element.
func (d *Decoder) Skip() error {
	return d.d.Skip()
}

// Attr looks up an attribute by local name.
func Attr(el xml.StartElement, local string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// ErrInvalidText is matched by errors from CheckText.
var ErrInvalidText = errors.New("text cannot be stored in an XML document")

// CheckText rejects s if it is not valid UTF-8 or holds a character outside
// the XML Char production. encoding/xml would silently replace such
// characters with U+FFFD, so the saved value would not load back unchanged.
func CheckText(field, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidText, field)
	}
	for i, r := range s {
		if !isChar(r) {
			return fmt.Errorf("%w: %s has character %U at byte %d", ErrInvalidText, field, r, i)
		}
	}
	return nil
}

func isChar(r rune) bool {
	return r == '\t' || r == '\n' || r == '\r' ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}

// Encode renders v as an indented UTF-8 document with an XML declaration.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
