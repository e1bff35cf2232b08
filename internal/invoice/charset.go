package invoice

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// xmlEncodingDecl reads the encoding label of an XML declaration
var xmlEncodingDecl = regexp.MustCompile(`^(?:\x{FEFF})?\s*<\?xml[^>]*?\bencoding\s*=\s*["']([A-Za-z0-9._:\-]+)["']`)

// CharsetReader decodes a document declared in a non UTF-8 charset. It is
// meant for xml.Decoder.CharsetReader.
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := lookupCharset(label)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(input), nil
}

func lookupCharset(label string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(strings.TrimSpace(label))
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	// Known to IANA but without a decoder
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc, nil
}

// declaredCharset returns the encoding label of the XML declaration, if any
func declaredCharset(data []byte) string {
	head := data
	if len(head) > 256 {
		head = head[:256]
	}
	if m := xmlEncodingDecl.FindSubmatch(head); m != nil {
		return string(m[1])
	}
	return ""
}

func isUTF8Label(label string) bool {
	return strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8")
}

// toUTF8 returns data as UTF-8. A declared charset is decoded; bytes that are
// still not valid UTF-8 are read as windows-1252, the usual superset of
// Latin-1 on Italian desktops.
func toUTF8(data []byte) []byte {
	if label := declaredCharset(data); label != "" && !isUTF8Label(label) {
		if enc, err := lookupCharset(label); err == nil {
			if out, err := enc.NewDecoder().Bytes(data); err == nil {
				return out
			}
		}
	}
	if utf8.Valid(data) {
		return data
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return out
}

// escapeStrayLT escapes every '<' that cannot open markup, such as the one in
// "sconto < 5 pezzi". Comments and CDATA sections are copied as they are.
func escapeStrayLT(data []byte) []byte {
	if bytes.IndexByte(data, '<') < 0 {
		return data
	}
	out := make([]byte, 0, len(data)+16)
	for i := 0; i < len(data); i++ {
		if data[i] != '<' {
			out = append(out, data[i])
			continue
		}
		if end := verbatimEnd(data[i:]); end > 0 {
			out = append(out, data[i:i+end]...)
			i += end - 1
			continue
		}
		if i+1 == len(data) || !opensMarkup(data[i+1]) {
			out = append(out, "&lt;"...)
			continue
		}
		out = append(out, '<')
	}
	return out
}

// verbatimEnd returns the length of a comment or CDATA section starting at
// data, or 0 when data starts with neither
func verbatimEnd(data []byte) int {
	for _, pair := range [...][2]string{{"<!--", "-->"}, {"<![CDATA[", "]]>"}} {
		if !bytes.HasPrefix(data, []byte(pair[0])) {
			continue
		}
		if j := bytes.Index(data[len(pair[0]):], []byte(pair[1])); j >= 0 {
			return len(pair[0]) + j + len(pair[1])
		}
		return len(data)
	}
	return 0
}

// opensMarkup reports whether c may follow '<' in a tag, a closing tag, a
// comment or a processing instruction
func opensMarkup(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c == '_', c == ':', c == '/', c == '?', c == '!':
		return true
	}
	return c >= utf8.RuneSelf
}
