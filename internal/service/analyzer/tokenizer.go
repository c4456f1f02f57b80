package analyzer

import "strings"

// stopWords is matched against already lower-cased tokens.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a an the and or but if while else of at by for with about against between
		into through during before after above below to from up down in out on off
		over under again further then once here there when where why how all any
		both each few more most other some such no nor not only own same so than
		too very can will just don should now is am are was were be been being
		have has had having do does did`) {
		stopWords[w] = struct{}{}
	}
}

func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}

// Tokenize lower-cases text, treats every character that is not an ASCII
// letter as a separator and drops stop words. Order and duplicates are kept.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r < 'a' || r > 'z'
	})

	var tokens []string
	for _, f := range fields {
		if IsStopWord(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
