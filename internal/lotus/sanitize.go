package lotus

import (
	"regexp"
	"strings"
)

// Lotus serves embedded images as "<name>?OpenElement&FieldElemFormat=<ext>"; the
// scraped filename keeps that suffix instead of a real extension.
var lotusFormatSuffix = regexp.MustCompile(`(?i)\?OpenElement&FieldElemFormat=([a-z0-9]+)$`)

// lotusJunkTokens are removed from raw filenames before sanitizing.
var lotusJunkTokens = []string{"$FILE", "?OpenElement", "?OpenDocument"}

// wordpressSpecialChars is the character blacklist of WordPress sanitize_file_name.
var wordpressSpecialChars = []string{
	"?", "[", "]", "/", "\\", "=", "<", ">", ":", ";", ",", "'", "\"", "&", "$", "#",
	"*", "(", ")", "|", "~", "`", "!", "{", "}", "%", "+", "’", "«", "»",
	"”", "“", "\x00",
}

var fileNameSeparators = regexp.MustCompile(`[\r\n\t -]+`)

// SanitizeFileName derives a filesystem and URL safe filename from a raw scraped name.
// After translating the Lotus format suffix and dropping Lotus junk tokens it applies the
// same steps as WordPress sanitize_file_name, so that the importer keeps the name as is.
func SanitizeFileName(raw string) string {
	name := raw
	if m := lotusFormatSuffix.FindStringSubmatchIndex(name); m != nil {
		ext := strings.ToLower(name[m[2]:m[3]])
		name = name[:m[0]] + "." + ext
	}
	for _, tok := range lotusJunkTokens {
		name = strings.ReplaceAll(name, tok, "")
	}
	for _, c := range wordpressSpecialChars {
		name = strings.ReplaceAll(name, c, "")
	}
	name = strings.ReplaceAll(name, "%20", "-")
	name = strings.ReplaceAll(name, "+", "-")
	name = fileNameSeparators.ReplaceAllString(name, "-")
	return strings.Trim(name, ".-_")
}

var (
	titleTags       = regexp.MustCompile(`<[^>]*?>`)
	titleOctets     = regexp.MustCompile(`%([a-fA-F0-9][a-fA-F0-9])`)
	titleOctetMarks = regexp.MustCompile(`---([a-fA-F0-9][a-fA-F0-9])---`)
	titleEntities   = regexp.MustCompile(`&.+?;`)
	titleDisallowed = regexp.MustCompile(`[^%a-z0-9 _-]`)
	titleWhitespace = regexp.MustCompile(`\s+`)
	titleDashes     = regexp.MustCompile(`-+`)
)

// SanitizeTitle turns a title into a slug the way WordPress sanitize_title_with_dashes does.
// It is used for post slugs, category nicenames and author logins.
func SanitizeTitle(text string) string {
	text = titleTags.ReplaceAllString(text, "")
	// keep escaped octets, drop every other percent sign
	text = titleOctets.ReplaceAllString(text, "---${1}---")
	text = strings.ReplaceAll(text, "%", "")
	text = titleOctetMarks.ReplaceAllString(text, "%${1}")
	text = strings.ToLower(text)
	text = titleEntities.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, ".", "-")
	text = titleDisallowed.ReplaceAllString(text, "")
	text = titleWhitespace.ReplaceAllString(text, "-")
	text = titleDashes.ReplaceAllString(text, "-")
	return strings.Trim(text, "-")
}
