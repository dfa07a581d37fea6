package config

import (
	"strconv"
	"strings"
)

// versionLess orders CML version strings such as "10.11", "9.04" or
// "8.20-beta" by numeric segment, falling back to lexicographic comparison
// for non-numeric segments.
func versionLess(a, b string) bool {
	as := splitVersion(a)
	bs := splitVersion(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aNum := parseSegment(as[i])
		bn, bNum := parseSegment(bs[i])
		switch {
		case aNum && bNum:
			if an != bn {
				return an < bn
			}
		case aNum != bNum:
			// Numeric segments sort after alphabetic ones ("9.04" > "9.rc1").
			return !aNum
		default:
			if as[i] != bs[i] {
				return as[i] < bs[i]
			}
		}
	}
	return len(as) < len(bs)
}

func splitVersion(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
}

func parseSegment(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}
