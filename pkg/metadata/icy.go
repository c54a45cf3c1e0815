package metadata

import (
	"html"
	"strings"
)

// ParseICYBlock extracts the StreamTitle and StreamUrl fields of a raw ICY
// metadata block such as "StreamTitle='Artist - Title';StreamUrl='http://..';".
// Trailing NUL padding is ignored and values are HTML-unescaped.
func ParseICYBlock(block []byte) (streamTitle, streamURL string) {
	raw := strings.TrimRight(string(block), "\x00")
	if raw == "" {
		return "", ""
	}

	return icyField(raw, "StreamTitle"), icyField(raw, "StreamUrl")
}

// icyField returns the value of key. A quoted value ends at the first quote
// followed by ';' and another key, or at the end of the block, so titles that
// contain apostrophes survive.
func icyField(raw, key string) string {
	idx := strings.Index(strings.ToLower(raw), strings.ToLower(key)+"=")
	if idx < 0 {
		return ""
	}

	v := raw[idx+len(key)+1:]
	if v == "" {
		return ""
	}

	quote := v[0]
	if quote != '\'' && quote != '"' {
		if end := strings.IndexByte(v, ';'); end >= 0 {
			v = v[:end]
		}
		return html.UnescapeString(strings.TrimSpace(v))
	}

	v = v[1:]
	end := -1
	for i := 0; i < len(v); i++ {
		if v[i] != quote {
			continue
		}
		rest := strings.TrimLeft(v[i+1:], " \t")
		if rest == "" || rest == ";" || (rest[0] == ';' && strings.Contains(rest, "=")) {
			end = i
			break
		}
	}
	if end < 0 {
		end = strings.LastIndexByte(v, quote)
	}
	if end >= 0 {
		v = v[:end]
	}

	return html.UnescapeString(strings.TrimSpace(v))
}
