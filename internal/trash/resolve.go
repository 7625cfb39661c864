package trash

import (
	"math"
	"strconv"
	"strings"
)

// ResolveName returns a name for candidate that does not collide with any
// name in existing. A free candidate is returned unchanged; otherwise a
// numeric suffix one above the highest suffix already used for candidate is
// appended, so "a.txt" becomes "a.txt.1", then "a.txt.2".
func ResolveName(candidate string, existing []string) string {
	used := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		used[name] = struct{}{}
	}
	if _, taken := used[candidate]; !taken {
		return candidate
	}

	highest := -1
	for _, name := range existing {
		if name == candidate {
			highest = max(highest, 0)
			continue
		}
		stem, ext, ok := splitExtension(name)
		if !ok || stem != candidate {
			continue
		}
		n, err := strconv.Atoi(ext)
		if err != nil || n == math.MaxInt {
			highest = max(highest, 0)
			continue
		}
		highest = max(highest, n)
	}

	for next := highest + 1; ; next++ {
		name := candidate + "." + strconv.Itoa(next)
		if _, taken := used[name]; !taken {
			return name
		}
	}
}

// splitExtension splits name at its last dot. A dot in the first position
// does not start an extension, so ".bashrc" has none.
func splitExtension(name string) (stem, ext string, ok bool) {
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 {
		return name, "", false
	}
	return name[:idx], name[idx+1:], true
}
