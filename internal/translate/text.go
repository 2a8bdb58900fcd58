package translate

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Title limits applied after translation.
const (
	MaxTitleWords = 15
	MaxTitleChars = 255
)

var knownSizes = map[string]bool{
	"XXS": true, "XS": true, "S": true, "M": true, "L": true,
	"XL": true, "XXL": true, "XXXL": true, "XXXXL": true,
	"2XL": true, "3XL": true, "4XL": true,
}

// IsKnownSize reports whether v is a universal size token that is never translated.
func IsKnownSize(v string) bool {
	return knownSizes[strings.ToUpper(strings.TrimSpace(v))]
}

var (
	nonWord     = regexp.MustCompile(`[^\w\s-]`)
	dashOrSpace = regexp.MustCompile(`[-\s]+`)
	asciiOnly   = transform.Chain(norm.NFD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
)

// Slugify turns text into a URL handle: accents are decomposed and dropped,
// the result is lower-cased, punctuation is removed and runs of dashes or
// spaces become a single dash.
func Slugify(text string) string {
	if text == "" {
		return ""
	}
	s, _, err := transform.String(asciiOnly, text)
	if err != nil {
		s = text
	}
	s = strings.ToLower(s)
	s = strings.TrimSpace(nonWord.ReplaceAllString(s, ""))
	s = dashOrSpace.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Handle builds the deterministic handle for a product: the slug of title
// followed by the last four characters of the source product id.
func Handle(title, sourceID string) string {
	slug := Slugify(title)
	suffix := sourceID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	switch {
	case slug == "":
		return Slugify(suffix)
	case suffix == "":
		return slug
	}
	return slug + "-" + Slugify(suffix)
}

// ApplyTitleConstraints limits the product part of a "Brand | Product"
// title to MaxTitleWords words and the whole title to MaxTitleChars
// characters, cutting at the last space.
func ApplyTitleConstraints(title string) string {
	out := title
	if brand, product, ok := strings.Cut(title, "|"); ok {
		words := strings.Fields(product)
		if len(words) > MaxTitleWords {
			words = words[:MaxTitleWords]
		}
		out = strings.TrimSpace(brand) + " | " + strings.Join(words, " ")
	}

	if r := []rune(out); len(r) > MaxTitleChars {
		out = string(r[:MaxTitleChars])
		if i := strings.LastIndex(out, " "); i >= 0 {
			out = out[:i]
		}
	}
	return strings.TrimSpace(out)
}

// CleanText unescapes HTML entities left by providers and trims whitespace.
func CleanText(text string) string {
	return strings.TrimSpace(html.UnescapeString(text))
}
