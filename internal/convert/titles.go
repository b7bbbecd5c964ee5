package convert

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// chineseTags are checked in order for an existing Chinese name
var chineseTags = []string{
	"name:zh",
	"name:zh-Hans",
	"name:zh-Hant",
	"name:zh-CN",
	"name:zh-TW",
	"name:zh-SG",
}

// HasChinese reports whether s contains a CJK unified ideograph, including
// Extension A.
func HasChinese(s string) bool {
	for _, r := range s {
		if (r >= 0x4e00 && r <= 0x9fff) || (r >= 0x3400 && r <= 0x4dbf) {
			return true
		}
	}
	return false
}

// ParseTags accepts the tags property either as a JSON object or as a string
// holding one. Anything else yields an empty set.
func ParseTags(raw any) map[string]string {
	switch v := raw.(type) {
	case map[string]any:
		return stringify(v)
	case map[string]string:
		return v
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return map[string]string{}
		}
		return stringify(m)
	default:
		return map[string]string{}
	}
}

func stringify(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch s := v.(type) {
		case string:
			out[k] = s
		case nil:
		default:
			out[k] = fmt.Sprint(s)
		}
	}
	return out
}

// TitleEN is name:en, or the feature name
func TitleEN(tags map[string]string, name string) string {
	if en := strings.TrimSpace(tags["name:en"]); en != "" {
		return en
	}
	return strings.TrimSpace(name)
}

// TitleZH returns a Chinese name already present on the feature: the first
// non-empty zh tag, or the name itself when it is written in Chinese.
func TitleZH(tags map[string]string, name string) (string, bool) {
	for _, key := range chineseTags {
		if v := strings.TrimSpace(tags[key]); v != "" {
			return v, true
		}
	}
	if HasChinese(name) {
		return strings.TrimSpace(name), true
	}
	return "", false
}

// truncateBytes cuts s to at most n bytes without splitting a rune
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for cut < len(s) {
		_, size := utf8.DecodeRuneInString(s[cut:])
		if cut+size > n {
			break
		}
		cut += size
	}
	return s[:cut]
}
