// Package encoding decodes the legacy text found in model side files such as
// OBJ/MTL names and texture paths.
package encoding

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// Charset names a legacy encoding tried for text that is not valid UTF-8.
type Charset string

const (
	GBK     Charset = "gbk"
	GB18030 Charset = "gb18030"
	EUCKR   Charset = "euc-kr"
)

// DefaultCharset is used when none is configured.
const DefaultCharset = GBK

// ParseCharset validates a charset name. An empty name selects DefaultCharset.
func ParseCharset(name string) (Charset, error) {
	switch cs := Charset(strings.ToLower(strings.TrimSpace(name))); cs {
	case "":
		return DefaultCharset, nil
	case GBK, GB18030, EUCKR:
		return cs, nil
	case "euckr":
		return EUCKR, nil
	default:
		return "", fmt.Errorf("unsupported charset %q", name)
	}
}

func (c Charset) encoding() encoding.Encoding {
	switch c {
	case GB18030:
		return simplifiedchinese.GB18030
	case EUCKR:
		return korean.EUCKR
	default:
		return simplifiedchinese.GBK
	}
}

// ToUTF8 returns data as a string, decoding it with cs when it is not
// already valid UTF-8. Undecodable input is returned as-is.
func ToUTF8(data []byte, cs Charset) string {
	if utf8.Valid(data) {
		return string(data)
	}
	result, _, err := transform.Bytes(cs.encoding().NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// FromUTF8 encodes s in cs. Unencodable input is returned as-is.
func FromUTF8(s string, cs Charset) []byte {
	result, _, err := transform.Bytes(cs.encoding().NewEncoder(), []byte(s))
	if err != nil {
		return []byte(s)
	}
	return result
}

// NormalizePath converts Windows separators to forward slashes.
func NormalizePath(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

// TrimNullString removes trailing null bytes and spaces and converts to string.
func TrimNullString(data []byte) string {
	return string(bytes.TrimRight(data, "\x00 "))
}
