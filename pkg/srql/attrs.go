package srql

import "strings"

// ParseAttributes parses the `key=value,key2="quoted value"` attribute
// strings carried in device metadata. Quoted values may contain commas and
// equals signs. Malformed fragments are skipped rather than failing the whole
// string; the backend emits these fields best-effort.
func ParseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	for _, field := range splitQuoted(s, ',') {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		attrs[key] = unquote(strings.TrimSpace(value))
	}
	return attrs
}

// Alias maps a display alias to the canonical service name it stands for.
type Alias struct {
	Name      string
	Canonical string
}

// ParseAliases parses comma-separated `alias (canonical)` lists. An entry
// without a parenthesized canonical maps to itself.
func ParseAliases(s string) []Alias {
	var aliases []Alias
	for _, field := range splitQuoted(s, ',') {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		name, rest, found := strings.Cut(field, "(")
		name = strings.TrimSpace(name)
		if !found {
			aliases = append(aliases, Alias{Name: name, Canonical: CanonicalService(name)})
			continue
		}
		canonical := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), ")"))
		if name == "" {
			name = canonical
		}
		aliases = append(aliases, Alias{Name: name, Canonical: CanonicalService(canonical)})
	}
	return aliases
}

// CanonicalService normalizes a service name for comparison and grouping:
// case-folded, trimmed, `@host` and `:port` suffixes stripped, internal
// whitespace collapsed. "SSH@edge-1:22" and "ssh" canonicalize identically.
func CanonicalService(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.LastIndex(name, "@"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, ":"); i >= 0 && isDigits(name[i+1:]) {
		name = name[:i]
	}
	return strings.Join(strings.Fields(name), " ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// splitQuoted splits on sep, treating double-quoted runs as opaque.
func splitQuoted(s string, sep byte) []string {
	var (
		fields []string
		start  int
		quoted bool
	)
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '"':
			quoted = !quoted
		case s[i] == sep && !quoted:
			fields = append(fields, s[start:i])
			start = i + 1
		}
	}
	return append(fields, s[start:])
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
