package names

import "strings"

// smileys are the literal first-token spellings that are never
// treated as a sendlist prefix.
var smileys = map[string]bool{
	":-)": true, ":-(": true, ":-P": true, ";-)": true,
	":)": true, ":(": true, ":P": true, ";)": true,
	":_)": true, ":_(": true,
}

// ParseSendlist splits a line of user input into a routing sendlist
// and a message body.
//
// Explicit is true only when the line used an explicit ':' or ';'
// delimiter; it is always false for the smiley and no-delimiter
// cases, which both yield the literal sendlist "default" (so that a
// smiley never clobbers last_sendlist).
func ParseSendlist(line string) (sendlist string, body string, explicit bool) {
	if isSmiley(line) {
		return "default", line, false
	}

	var sb strings.Builder
	i := 0
	delimFound := false
	for i < len(line) {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			sb.WriteByte(line[i+1])
			i += 2
		case c == '"':
			i++
			for i < len(line) && line[i] != '"' {
				sb.WriteByte(line[i])
				i++
			}
			if i < len(line) {
				i++ // consume closing quote
			}
		case c == ' ' || c == '\t':
			return "default", line, false
		case c == ':' || c == ';':
			delimFound = true
			explicit = true
			i++
		case c == '_':
			sb.WriteByte(UnquotedUnderscore)
			i++
		default:
			sb.WriteByte(c)
			i++
		}
		if delimFound {
			break
		}
	}

	if !delimFound {
		return "default", line, false
	}

	body = strings.TrimLeft(line[i:], " \t")
	return sb.String(), body, explicit
}

// isSmiley reports whether line begins with a recognised smiley
// token: the first whitespace-bounded token is a known smiley, and
// the very first character is neither alphabetic nor whitespace.
func isSmiley(line string) bool {
	if line == "" {
		return false
	}
	first := line[0]
	if isAlpha(first) || first == ' ' || first == '\t' {
		return false
	}
	end := strings.IndexAny(line, " \t")
	token := line
	if end >= 0 {
		token = line[:end]
	}
	return smileys[token]
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Display renders a parsed sendlist back to a human-readable string,
// substituting the unquoted-underscore sentinel back to '_' for error
// messages.
func Display(sendlist string) string {
	b := make([]byte, len(sendlist))
	for i := 0; i < len(sendlist); i++ {
		if sendlist[i] == UnquotedUnderscore {
			b[i] = '_'
		} else {
			b[i] = sendlist[i]
		}
	}
	return string(b)
}
