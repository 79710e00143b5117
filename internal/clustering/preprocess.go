package clustering

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Preprocess lowercases text, strips accents and punctuation, then optionally
// removes stopwords and stems each token. Tokens are joined by single spaces.
func (b *Builtin) Preprocess(ctx context.Context, text string, opts PreprocessingOptions) (string, error) {
	if opts.Lemmatization {
		return "", fmt.Errorf("lemmatization with %q: %w", opts.LanguageModel, ErrUnsupported)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	folded, err := foldText(text)
	if err != nil {
		return "", err
	}
	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := tokens[:0]
	for _, tok := range tokens {
		if opts.StopwordsDeletion && isStopword(tok) {
			continue
		}
		if opts.Stemming {
			tok = stem(tok)
		}
		out = append(out, tok)
	}
	return strings.Join(out, " "), nil
}

// foldText lowercases s and removes combining marks after canonical decomposition.
func foldText(s string) (string, error) {
	lower := cases.Lower(language.Und).String(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, lower)
	if err != nil {
		return "", fmt.Errorf("normalize text: %w", err)
	}
	return folded, nil
}

// suffixes are tried longest first; a stem keeps at least minStem runes.
var suffixes = []string{
	"issements", "issement", "ements", "ement", "ations", "ation", "ances", "ance",
	"ingly", "edly", "ings", "ness", "ment", "ives", "ive", "ing", "ies", "ers", "eux",
	"ed", "er", "es", "ly", "s", "e", "x",
}

const minStem = 3

func stem(tok string) string {
	for _, suffix := range suffixes {
		if !strings.HasSuffix(tok, suffix) {
			continue
		}
		root := strings.TrimSuffix(tok, suffix)
		if len([]rune(root)) >= minStem {
			return root
		}
	}
	return tok
}
