package names

// matchByte reports whether a display-name byte matches a sendlist
// byte, where the sendlist's UnquotedUnderscore sentinel matches
// either a literal underscore or a space in the display name.
func matchByte(nameByte, sendlistByte byte) bool {
	if sendlistByte == UnquotedUnderscore {
		return nameByte == '_' || nameByte == ' '
	}
	return lower(nameByte) == lower(sendlistByte)
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func equalFold(name, pattern string) bool {
	if len(name) != len(pattern) {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !matchByte(name[i], pattern[i]) {
			return false
		}
	}
	return true
}

func containsFold(name, pattern string) bool {
	if len(pattern) == 0 {
		return true
	}
	if len(pattern) > len(name) {
		return false
	}
	for start := 0; start+len(pattern) <= len(name); start++ {
		ok := true
		for i := 0; i < len(pattern); i++ {
			if !matchByte(name[start+i], pattern[i]) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// MatchName reports whether a sendlist token matches a session's
// name_only. Exact case-insensitive equality (with the
// unquoted-underscore sentinel matching space or underscore) wins
// outright; otherwise the sendlist token must appear as a
// case-insensitive substring of the name.
func MatchName(name, sendlist string) bool {
	if equalFold(name, sendlist) {
		return true
	}
	return containsFold(name, sendlist)
}
