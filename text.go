package esedb

import (
	"bytes"
	"errors"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// codepageUnicode is the code page used pervasively for Unicode columns:
// UTF-16LE, the native in-memory string representation of the systems this
// format was designed for.
const codepageUnicode int32 = 1200

// codepageUTF8 is the code page value meaning plain UTF-8.
const codepageUTF8 int32 = 65001

// codepageRegistry maps a declared code page number to its
// golang.org/x/text encoding, covering the single-byte Windows/IBM code
// pages and the legacy East Asian multi-byte code pages. This is the
// concrete wiring for C10, matching the teacher's declared-but-previously-
// unused golang.org/x/text dependency.
var codepageRegistry = map[int32]encoding.Encoding{
	37:   charmap.CodePage037,
	437:  charmap.CodePage437,
	850:  charmap.CodePage850,
	852:  charmap.CodePage852,
	855:  charmap.CodePage855,
	858:  charmap.CodePage858,
	860:  charmap.CodePage860,
	862:  charmap.CodePage862,
	863:  charmap.CodePage863,
	865:  charmap.CodePage865,
	866:  charmap.CodePage866,
	1047: charmap.CodePage1047,
	1140: charmap.CodePage1140,
	874:  charmap.Windows874,
	1250: charmap.Windows1250,
	1251: charmap.Windows1251,
	1252: charmap.Windows1252,
	1253: charmap.Windows1253,
	1254: charmap.Windows1254,
	1255: charmap.Windows1255,
	1256: charmap.Windows1256,
	1257: charmap.Windows1257,
	1258: charmap.Windows1258,
	28591: charmap.ISO8859_1,
	28592: charmap.ISO8859_2,
	28593: charmap.ISO8859_3,
	28594: charmap.ISO8859_4,
	28595: charmap.ISO8859_5,
	28596: charmap.ISO8859_6,
	28597: charmap.ISO8859_7,
	28598: charmap.ISO8859_8,
	28599: charmap.ISO8859_9,
	28603: charmap.ISO8859_13,
	28605: charmap.ISO8859_15,
	932:   japanese.ShiftJIS,
	20932: japanese.EUCJP,
	50220: japanese.ISO2022JP,
	949:   korean.EUCKR,
	936:   simplifiedchinese.GBK,
	54936: simplifiedchinese.GB18030,
	950:   traditionalchinese.Big5,
}

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DecodeString decodes raw bytes declared as column codepage into a Go
// string, per SPEC_FULL.md §4.10.
func DecodeString(raw []byte, codepage int32) (string, error) {
	switch {
	case codepage == codepageUnicode:
		return decodeWith(utf16LE.NewDecoder(), raw)
	case codepage == codepageUTF8:
		s := stripUTF8BOM(raw)
		if !utf8.Valid(s) {
			return "", errDecodeMalformed(errors.New("invalid UTF-8 sequence"))
		}
		return string(s), nil
	case codepage > 0 && codepage <= 0xFFFF:
		enc, ok := codepageRegistry[codepage]
		if !ok {
			return "", errDecodeMalformed(errUnknownCodepage(codepage))
		}
		return decodeWith(enc.NewDecoder(), raw)
	default:
		return "", errDecodeMalformed(errUnknownCodepage(codepage))
	}
}

func decodeWith(dec *encoding.Decoder, raw []byte) (string, error) {
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", errDecodeMalformed(err)
	}
	return string(out), nil
}

func stripUTF8BOM(raw []byte) []byte {
	const bom = "\xef\xbb\xbf"
	if bytes.HasPrefix(raw, []byte(bom)) {
		return raw[len(bom):]
	}
	return raw
}

type unknownCodepageError struct{ codepage int32 }

func (e unknownCodepageError) Error() string {
	return "unrecognized code page"
}

func errUnknownCodepage(codepage int32) error {
	return unknownCodepageError{codepage: codepage}
}
