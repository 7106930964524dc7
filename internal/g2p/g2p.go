// Package g2p converts free-form text into phoneme tokens.
//
// Tokens are upper-case inventory identifiers. The last vowel of each word
// carries a FinalSuffix so the parser can lengthen it.
package g2p

import (
	"context"
	"strings"
	"unicode"

	"github.com/loqalabs/phonex/internal/phoneme"
)

// FinalSuffix marks a word-final vowel.
const FinalSuffix = "_FINAL"

// Converter is the text-to-phoneme contract.
type Converter interface {
	Convert(ctx context.Context, text string) ([]string, error)
}

type dictConverter struct {
	dict map[string][]string
}

// NewDictConverter returns a converter that looks words up in a small
// pronunciation dictionary and falls back to letter rules.
func NewDictConverter(extra map[string][]string) Converter {
	dict := make(map[string][]string, len(builtinDict)+len(extra))
	for w, p := range builtinDict {
		dict[w] = p
	}
	for w, p := range extra {
		dict[strings.ToLower(w)] = p
	}
	return &dictConverter{dict: dict}
}

func (d *dictConverter) Convert(ctx context.Context, text string) ([]string, error) {
	var out []string
	for i, word := range tokenize(text) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 {
			out = append(out, string(phoneme.SIL))
		}
		phs, ok := d.dict[word]
		if !ok {
			phs = letterRules(word)
		}
		out = append(out, markFinal(phs)...)
	}
	return out, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	words := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			words = append(words, f)
		}
	}
	return words
}

func markFinal(phs []string) []string {
	out := append([]string(nil), phs...)
	for i := len(out) - 1; i >= 0; i-- {
		if ph, ok := phoneme.Lookup(out[i]); ok && ph.IsVowel() {
			out[i] = string(ph) + FinalSuffix
			break
		}
	}
	return out
}

// StripFinal splits a token into its phoneme and whether it was word-final.
func StripFinal(token string) (string, bool) {
	upper := strings.ToUpper(token)
	if strings.HasSuffix(upper, FinalSuffix) {
		return strings.TrimSuffix(upper, FinalSuffix), true
	}
	return upper, false
}

var builtinDict = map[string][]string{
	"hello":   {"HH", "EH", "L", "OW"},
	"world":   {"W", "ER", "L", "D"},
	"test":    {"T", "EH", "S", "T"},
	"robot":   {"R", "OW", "B", "AH", "T"},
	"formant": {"F", "AO", "R", "M", "AH", "N", "T"},
	"speech":  {"S", "P", "IY", "CH"},
	"voice":   {"V", "OY", "S"},
	"the":     {"DH", "AH"},
	"a":       {"AH"},
	"is":      {"IH", "Z"},
	"this":    {"DH", "IH", "S"},
	"one":     {"W", "AH", "N"},
	"two":     {"T", "UW"},
	"three":   {"TH", "R", "IY"},
	"yes":     {"Y", "EH", "S"},
	"no":      {"N", "OW"},
}

var digraphs = map[string][]string{
	"ch": {"CH"}, "sh": {"SH"}, "th": {"TH"}, "ng": {"NG"}, "ph": {"F"},
	"ee": {"IY"}, "ea": {"IY"}, "oo": {"UW"}, "ou": {"AW"}, "ow": {"OW"},
	"ai": {"EY"}, "ay": {"EY"}, "oi": {"OY"}, "oy": {"OY"}, "er": {"ER"},
	"ck": {"K"}, "qu": {"K", "W"},
}

var letters = map[byte][]string{
	'a': {"AE"}, 'b': {"B"}, 'c': {"K"}, 'd': {"D"}, 'e': {"EH"}, 'f': {"F"},
	'g': {"G"}, 'h': {"HH"}, 'i': {"IH"}, 'j': {"JH"}, 'k': {"K"}, 'l': {"L"},
	'm': {"M"}, 'n': {"N"}, 'o': {"AA"}, 'p': {"P"}, 'q': {"K"}, 'r': {"R"},
	's': {"S"}, 't': {"T"}, 'u': {"AH"}, 'v': {"V"}, 'w': {"W"}, 'x': {"K", "S"},
	'y': {"Y"}, 'z': {"Z"},
}

// letterRules is a crude spelling fallback; it only has to produce
// inventory phonemes, not good pronunciations.
func letterRules(word string) []string {
	var out []string
	for i := 0; i < len(word); {
		if i+1 < len(word) {
			if phs, ok := digraphs[word[i:i+2]]; ok {
				out = append(out, phs...)
				i += 2
				continue
			}
		}
		// silent trailing e
		if word[i] == 'e' && i == len(word)-1 && i > 0 {
			i++
			continue
		}
		if phs, ok := letters[word[i]]; ok {
			out = append(out, phs...)
		}
		i++
	}
	return out
}
