package files

import "strings"

// Placeholder is the name given to files whose captured name is empty or
// consists only of a relative path reference.
const Placeholder = "download"

// forbidden lists characters that are unsafe in file names on at least one
// supported host filesystem or shell.
const forbidden = "#%&{}\\/<>*?$!'\":@`|="

var sanitizer = buildSanitizer()

func buildSanitizer() *strings.Replacer {
	pairs := make([]string, 0, 2*(len(forbidden)+1))
	for _, c := range forbidden {
		pairs = append(pairs, string(c), "_")
	}
	pairs = append(pairs, " ", "+")
	return strings.NewReplacer(pairs...)
}

// Sanitize maps an arbitrary captured file name to one that is safe to create
// on the host filesystem. Forbidden characters become "_", spaces become "+",
// and everything else, including non-ASCII text, is kept as is.
//
// "+" is not in the forbidden set even though older naming rules replaced it
// with "_": spaces map to "+", so replacing "+" as well would make a second
// pass rewrite the output of the first. "+plus.txt" stays "+plus.txt".
//
// Sanitize is total and idempotent: Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(name string) string {
	clean := sanitizer.Replace(name)
	switch clean {
	case "", ".", "..":
		return Placeholder
	}
	return clean
}
