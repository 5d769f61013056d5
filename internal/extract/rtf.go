package extract

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// rtfDestinations are groups that hold document metadata rather than body text.
var rtfDestinations = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true,
	"pict": true, "object": true, "header": true, "headerl": true, "headerr": true,
	"headerf": true, "footer": true, "footerl": true, "footerr": true, "footerf": true,
	"footnote": true, "generator": true, "listtable": true, "listoverridetable": true,
	"rsidtbl": true, "themedata": true, "colorschememapping": true, "latentstyles": true,
	"datastore": true, "xmlnstbl": true, "fldinst": true, "filetbl": true,
	"revtbl": true, "pgdsctbl": true, "operator": true, "author": true,
}

// rtfCodePages maps \ansicpgN values to their single byte charsets.
var rtfCodePages = map[int]*charmap.Charmap{
	437:   charmap.CodePage437,
	850:   charmap.CodePage850,
	1250:  charmap.Windows1250,
	1251:  charmap.Windows1251,
	1252:  charmap.Windows1252,
	1253:  charmap.Windows1253,
	1254:  charmap.Windows1254,
	1255:  charmap.Windows1255,
	1256:  charmap.Windows1256,
	1257:  charmap.Windows1257,
	1258:  charmap.Windows1258,
	10000: charmap.Macintosh,
}

var rtfSymbols = map[string]string{
	"par": "\n", "line": "\n", "sect": "\n", "page": "\n", "row": "\n",
	"tab": "\t", "cell": "\t",
	"emdash": "—", "endash": "–", "bullet": "•",
	"lquote": "‘", "rquote": "’", "ldblquote": "“", "rdblquote": "”",
	"emspace": " ", "enspace": " ", "qmspace": " ",
}

type rtfGroup struct {
	skip bool
	uc   int
}

type rtfReader struct {
	src     []byte
	pos     int
	out     strings.Builder
	group   rtfGroup
	stack   []rtfGroup
	charset *charmap.Charmap
	// fallback characters still to drop after a \uN
	pending int
}

// extractRTF returns the body text of an RTF document. \par, \line and \row end a
// line, metadata destinations such as the font table are dropped, and \'hh and \uN
// escapes are decoded.
func extractRTF(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if !bytes.HasPrefix(bytes.TrimLeft(content, " \t\r\n"), []byte(`{\rtf`)) {
		return "", errors.New(`extract RTF: missing {\rtf header`)
	}
	r := &rtfReader{src: content, group: rtfGroup{uc: 1}, charset: charmap.Windows1252}
	r.run()

	lines := strings.Split(strings.ToValidUTF8(r.out.String(), ""), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func (r *rtfReader) run() {
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		r.pos++
		switch c {
		case '{':
			r.stack = append(r.stack, r.group)
			r.pending = 0
		case '}':
			if n := len(r.stack); n > 0 {
				r.group = r.stack[n-1]
				r.stack = r.stack[:n-1]
			}
			r.pending = 0
		case '\r', '\n':
		case '\\':
			r.control()
		default:
			r.char(r.charset.DecodeByte(c))
		}
	}
}

func (r *rtfReader) control() {
	if r.pos >= len(r.src) {
		return
	}
	c := r.src[r.pos]
	if !isASCIILetter(c) {
		r.pos++
		switch c {
		case '\\', '{', '}':
			r.char(rune(c))
		case '\'':
			if r.pos+2 <= len(r.src) {
				if b, err := strconv.ParseUint(string(r.src[r.pos:r.pos+2]), 16, 8); err == nil {
					r.pos += 2
					r.char(r.charset.DecodeByte(byte(b)))
				}
			}
		case '*':
			r.group.skip = true
		case '~':
			r.char(' ')
		case '_':
			r.char('-')
		case '\r', '\n':
			r.write("\n")
		}
		return
	}

	start := r.pos
	for r.pos < len(r.src) && isASCIILetter(r.src[r.pos]) {
		r.pos++
	}
	word := string(r.src[start:r.pos])
	param, hasParam := r.param()
	if r.pos < len(r.src) && r.src[r.pos] == ' ' {
		r.pos++
	}
	r.pending = 0

	switch word {
	case "u":
		if hasParam {
			if param < 0 {
				param += 65536
			}
			r.char(rune(param))
			r.pending = r.group.uc
		}
	case "uc":
		if hasParam && param >= 0 {
			r.group.uc = param
		}
	case "bin":
		if hasParam && param > 0 {
			r.pos += param
		}
	case "ansicpg":
		if cs, ok := rtfCodePages[param]; ok {
			r.charset = cs
		}
	case "mac":
		r.charset = charmap.Macintosh
	case "pc":
		r.charset = charmap.CodePage437
	case "pca":
		r.charset = charmap.CodePage850
	default:
		if rtfDestinations[word] {
			r.group.skip = true
		} else if s, ok := rtfSymbols[word]; ok {
			r.write(s)
		}
	}
}

func (r *rtfReader) param() (int, bool) {
	start := r.pos
	if r.pos < len(r.src) && r.src[r.pos] == '-' {
		r.pos++
	}
	digits := r.pos
	for r.pos < len(r.src) && r.src[r.pos] >= '0' && r.src[r.pos] <= '9' {
		r.pos++
	}
	if r.pos == digits {
		r.pos = start
		return 0, false
	}
	n, err := strconv.Atoi(string(r.src[start:r.pos]))
	if err != nil {
		return 0, false
	}
	return n, true
}

// char writes one text character unless it is a \uN fallback.
func (r *rtfReader) char(c rune) {
	if r.pending > 0 {
		r.pending--
		return
	}
	if !r.group.skip {
		r.out.WriteRune(c)
	}
}

func (r *rtfReader) write(s string) {
	if !r.group.skip {
		r.out.WriteString(s)
	}
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
