package command

import "strings"

const (
	separator = ';'
	escape    = '!'
)

// Decode splits a server command batch into individual command lines.
//
// ';' separates commands and '!' escapes the character after it. Only "!!"
// and "!;" are real escapes; '!' before any other character is kept
// literally together with that character. A trailing lone '!' is dropped.
// The result always holds at least one entry: Decode("") is [""].
func Decode(raw string) []string {
	var (
		cmds    []string
		acc     strings.Builder
		escaped bool
	)

	for _, r := range raw {
		switch {
		case r == escape && !escaped:
			escaped = true
		case r == escape:
			acc.WriteRune(escape)
			escaped = false
		case r == separator && escaped:
			acc.WriteRune(separator)
			escaped = false
		case r == separator:
			cmds = append(cmds, acc.String())
			acc.Reset()
		case escaped:
			acc.WriteRune(escape)
			acc.WriteRune(r)
			escaped = false
		default:
			acc.WriteRune(r)
		}
	}

	return append(cmds, acc.String())
}

// Encode joins command lines into one batch, escaping '!' and ';' so that
// Decode(Encode(cmds)) returns cmds for any non-empty cmds.
func Encode(cmds []string) string {
	var b strings.Builder
	for i, cmd := range cmds {
		if i > 0 {
			b.WriteRune(separator)
		}
		for _, r := range cmd {
			if r == escape || r == separator {
				b.WriteRune(escape)
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
