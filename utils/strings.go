package utils

import (
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

//ErrUnknownCodePage is returned for code pages without a registered decoder
var ErrUnknownCodePage = errors.New("unknown code page")

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

var codePages = map[uint16]encoding.Encoding{
	437:   charmap.CodePage437,
	850:   charmap.CodePage850,
	852:   charmap.CodePage852,
	866:   charmap.CodePage866,
	874:   charmap.Windows874,
	932:   japanese.ShiftJIS,
	936:   simplifiedchinese.GBK,
	949:   korean.EUCKR,
	950:   traditionalchinese.Big5,
	1250:  charmap.Windows1250,
	1251:  charmap.Windows1251,
	1252:  charmap.Windows1252,
	1253:  charmap.Windows1253,
	1254:  charmap.Windows1254,
	1255:  charmap.Windows1255,
	1256:  charmap.Windows1256,
	1257:  charmap.Windows1257,
	1258:  charmap.Windows1258,
	20866: charmap.KOI8R,
	28591: charmap.ISO8859_1,
	28592: charmap.ISO8859_2,
	28605: charmap.ISO8859_15,
	54936: simplifiedchinese.GB18030,
}

// UniString converts a string into a null terminated UTF-16LE byte array
func UniString(str string) []byte {
	out, err := utf16le.NewEncoder().Bytes([]byte(str))
	if err != nil {
		//only reachable with invalid UTF-8 input
		out, _ = utf16le.NewEncoder().Bytes([]byte(string([]rune(str))))
	}
	return append(out, 0x00, 0x00)
}

// FromUnicode decodes UTF-16LE bytes, dropping a trailing null terminator
func FromUnicode(uni []byte) (string, error) {
	if len(uni)%2 != 0 {
		return "", errors.New("odd length UTF-16 string")
	}
	if n := len(uni); n >= 2 && uni[n-1] == 0 && uni[n-2] == 0 {
		uni = uni[:n-2]
	}
	out, err := utf16le.NewDecoder().Bytes(uni)
	if err != nil {
		return "", errors.Wrap(err, "decode UTF-16")
	}
	return string(out), nil
}

// FromCodePage decodes a null terminated 8-bit string in the given Windows code page.
// Code page 0 and 65001 are treated as UTF-8, 20127 as ASCII.
func FromCodePage(cp uint16, str []byte) (string, error) {
	if n := len(str); n > 0 && str[n-1] == 0 {
		str = str[:n-1]
	}
	switch cp {
	case 0, 20127, 65001:
		if !utf8.Valid(str) {
			return "", errors.Errorf("invalid UTF-8 for code page %d", cp)
		}
		return string(str), nil
	}
	enc, ok := codePages[cp]
	if !ok {
		return "", errors.Wrapf(ErrUnknownCodePage, "%d", cp)
	}
	out, err := enc.NewDecoder().Bytes(str)
	if err != nil {
		return "", errors.Wrapf(err, "decode code page %d", cp)
	}
	return string(out), nil
}

// ToCodePage encodes a string into a null terminated 8-bit string in the given code page
func ToCodePage(cp uint16, str string) ([]byte, error) {
	var out []byte
	switch cp {
	case 0, 20127, 65001:
		out = []byte(str)
	default:
		enc, ok := codePages[cp]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownCodePage, "%d", cp)
		}
		var err error
		if out, err = enc.NewEncoder().Bytes([]byte(str)); err != nil {
			return nil, errors.Wrapf(err, "encode code page %d", cp)
		}
	}
	return append(out, 0x00), nil
}
