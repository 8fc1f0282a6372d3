// Package clean normalizes the free-text fields of address candidates and
// decides whether a candidate carries enough content to be geocoded.
package clean

import (
	"html"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/rotisserie/eris"

	"github.com/sells-group/postalcrawl/internal/jsonld"
	"github.com/sells-group/postalcrawl/internal/model"
)

// ErrUnsupportedValue is returned when a field holds a JSON type that has no
// sensible text form, such as a boolean.
var ErrUnsupportedValue = eris.New("clean: unsupported value type")

// maxTextDepth bounds recursion through nested objects and lists.
const maxTextDepth = 32

// Text coerces a JSON value to a string. Objects contribute their "name"
// member, lists are joined with ", " after dropping empty elements, numbers
// keep their literal form. Absent and null values yield "".
func Text(v jsonld.Value) (string, error) {
	return text(v, 0)
}

func text(v jsonld.Value, depth int) (string, error) {
	if depth > maxTextDepth {
		return "", eris.Wrap(ErrUnsupportedValue, "nesting too deep")
	}
	switch v.Kind() {
	case jsonld.Absent, jsonld.Null:
		return "", nil
	case jsonld.String:
		s, _ := v.Str()
		return s, nil
	case jsonld.Number:
		n, _ := v.Number()
		return n.String(), nil
	case jsonld.Object:
		return text(v.Get("name"), depth+1)
	case jsonld.Array:
		items, _ := v.Array()
		parts := make([]string, 0, len(items))
		for _, item := range items {
			s, err := text(item, depth+1)
			if err != nil {
				return "", err
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", eris.Wrapf(ErrUnsupportedValue, "%s", v.Kind())
	}
}

// Field coerces and cleans one raw field value.
func Field(v jsonld.Value) (string, error) {
	s, err := Text(v)
	if err != nil {
		return "", err
	}
	return String(s), nil
}

// String cleans already-coerced text. The result is "" when nothing but
// whitespace remains. String is idempotent.
func String(s string) string {
	// Every pass that changes s after the first one shortens it, so this
	// reaches a fixed point.
	for {
		next := pass(s)
		if next == s {
			return s
		}
		s = next
	}
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func pass(s string) string {
	s = strings.ReplaceAll(s, `\/`, "/")
	s = unescapeUnicode(s)
	if strings.Contains(s, "&") {
		s = html.UnescapeString(s)
	}
	s = newlines.Replace(s)
	return strings.TrimSpace(s)
}

// unescapeUnicode decodes literal \uXXXX sequences, pairing surrogates.
// Sequences that would decode to a backslash or an unpaired surrogate are
// left alone.
func unescapeUnicode(s string) string {
	if !strings.Contains(s, `\u`) && !strings.Contains(s, `\U`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, n := escapeAt(s, i)
		if n == 0 {
			b.WriteByte(s[i])
			i++
			continue
		}
		if utf16.IsSurrogate(r) {
			r2, n2 := escapeAt(s, i+n)
			pair := utf16.DecodeRune(r, r2)
			if n2 == 0 || pair == unicode.ReplacementChar {
				b.WriteString(s[i : i+n])
				i += n
				continue
			}
			b.WriteRune(pair)
			i += n + n2
			continue
		}
		if r == '\\' {
			b.WriteString(s[i : i+n])
			i += n
			continue
		}
		b.WriteRune(r)
		i += n
	}
	return b.String()
}

// escapeAt parses a \uXXXX escape starting at i and returns the rune and the
// number of bytes consumed, or 0 when there is no escape at i.
func escapeAt(s string, i int) (rune, int) {
	if i+6 > len(s) || s[i] != '\\' || (s[i+1] != 'u' && s[i+1] != 'U') {
		return 0, 0
	}
	v, err := strconv.ParseUint(s[i+2:i+6], 16, 16)
	if err != nil {
		return 0, 0
	}
	return rune(v), 6
}

// HasContent reports whether s contains a letter or number, including
// numerals such as Ⅻ and ².
func HasContent(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsNumber(r)
	}) >= 0
}

// Rejection reasons reported by Accept. They double as stat keys.
const (
	RejectNoStreet   = "address/skip/no_street_address"
	RejectNoLocality = "address/skip/no_locality"
)

// Candidate cleans every field of c.
func Candidate(c model.AddressCandidate) (model.Address, error) {
	var a model.Address
	var err error
	set := func(field string, v jsonld.Value, dst *string) {
		if err != nil {
			return
		}
		s, ferr := Field(v)
		if ferr != nil {
			err = eris.Wrapf(ferr, "clean: field %s", field)
			return
		}
		*dst = s
	}
	set("name", c.Name, &a.Name)
	set("street", c.Street, &a.Street)
	set("locality", c.Locality, &a.Locality)
	set("region", c.Region, &a.Region)
	set("postal_code", c.PostalCode, &a.PostalCode)
	set("country", c.Country, &a.Country)
	if err != nil {
		return model.Address{}, err
	}
	a.Provenance = c.Provenance
	return a, nil
}

// Accept applies the minimum-content rule: a street with content, and a
// locality or postal code with content. It returns the rejection reason when
// the address is dropped.
func Accept(a model.Address) (bool, string) {
	if !HasContent(a.Street) {
		return false, RejectNoStreet
	}
	if !HasContent(a.Locality) && !HasContent(a.PostalCode) {
		return false, RejectNoLocality
	}
	return true, ""
}
