package fetcher

import (
	"mime"
	"strings"

	"github.com/saintfish/chardet"
	xcharset "golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// metaScanWindow bounds how much of the document the <meta charset> scan
// inspects.
const metaScanWindow = 1024

// decodeText converts raw response bytes to UTF-8 text. Detection order:
//  1. charset parameter of the Content-Type header
//  2. <meta charset> / <meta http-equiv> in the first 1 KiB
//  3. statistical detection
//  4. UTF-8 with replacement of invalid sequences
func decodeText(body []byte, contentType string) string {
	if len(body) == 0 {
		return ""
	}

	if enc := encodingFromContentType(contentType); enc != nil {
		if text, ok := decodeWith(enc, body); ok {
			return text
		}
	}

	if enc := encodingFromMeta(body); enc != nil {
		if text, ok := decodeWith(enc, body); ok {
			return text
		}
	}

	if enc := encodingFromDetection(body); enc != nil {
		if text, ok := decodeWith(enc, body); ok {
			return text
		}
	}

	return strings.ToValidUTF8(string(body), "�")
}

func encodingFromContentType(contentType string) encoding.Encoding {
	if contentType == "" {
		return nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil
	}
	name, ok := params["charset"]
	if !ok {
		return nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil
	}
	return enc
}

func encodingFromMeta(body []byte) encoding.Encoding {
	window := body
	if len(window) > metaScanWindow {
		window = window[:metaScanWindow]
	}
	// DetermineEncoding prescans for BOM and meta tags; its windows-1252
	// answer is the "nothing found" default, which we pass over in favor of
	// statistical detection.
	enc, name, certain := xcharset.DetermineEncoding(window, "")
	if !certain && name == "windows-1252" {
		return nil
	}
	return enc
}

func encodingFromDetection(body []byte) encoding.Encoding {
	result, err := chardet.NewTextDetector().DetectBest(body)
	if err != nil || result == nil {
		return nil
	}
	enc, err := htmlindex.Get(result.Charset)
	if err != nil {
		return nil
	}
	return enc
}

func decodeWith(enc encoding.Encoding, body []byte) (string, bool) {
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}
