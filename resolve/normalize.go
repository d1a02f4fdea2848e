package resolve

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tsawler/sqextract/model"
)

// ErrUnparseable is wrapped by every normalization failure.
var ErrUnparseable = errors.New("unparseable value")

// FormatError reports text that does not parse as its declared type.
type FormatError struct {
	Type   model.ValueType
	Text   string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("cannot parse %q as %s", e.Text, e.Type)
	}
	return fmt.Sprintf("cannot parse %q as %s: %s", e.Text, e.Type, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return ErrUnparseable
}

var (
	currencyPattern = regexp.MustCompile(`(?i)₹|\$|€|£|\brs\.?|\binr`)
	percentPattern  = regexp.MustCompile(`\(\s*\d+(?:\.\d+)?\s*%\s*\)`)
	numberPattern   = regexp.MustCompile(`^\d+(?:\.\d+)?$|^\.\d+$`)

	// one shared unit, either after every component or once at the end
	dimensionPattern = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*(mm|cm|m|in|ft)?\s*[x×*]\s*(\d+(?:\.\d+)?)\s*(mm|cm|m|in|ft)?\s*[x×*]\s*(\d+(?:\.\d+)?)\s*(mm|cm|m|in|ft)?$`)
	// a looser W×D shape, e.g. "Dia 450 x 900", kept as text
	partialDimensionPattern = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:mm|cm|m|in|ft)?\s*[x×*]\s*\d+`)

	areaPattern = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*(sq\.?\s*m(?:tr|eter|etre)?s?|sqm|m2|m²|sq\.?\s*ft|sqft|ft2|ft²)?\.?$`)
)

// ParseNumber parses a number written with currency symbols, thousands
// separators and spaces. A value in parentheses, or with a leading or
// trailing minus, is negative. A trailing "/-" ("only") and a percentage in
// parentheses such as "(18%)" are ignored.
func ParseNumber(s string) (float64, error) {
	fail := func(reason string) (float64, error) {
		return 0, &FormatError{Type: model.TypeNumber, Text: s, Reason: reason}
	}

	v := percentPattern.ReplaceAllString(s, " ")
	v = currencyPattern.ReplaceAllString(v, " ")
	v = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(v), ":"))
	v = strings.TrimSpace(strings.TrimSuffix(v, "/-"))

	neg := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		neg, v = true, strings.TrimSpace(v[1:len(v)-1])
	}
	if strings.HasSuffix(v, "-") {
		neg, v = !neg, strings.TrimSpace(strings.TrimSuffix(v, "-"))
	}
	if strings.HasPrefix(v, "-") {
		neg, v = !neg, strings.TrimSpace(strings.TrimPrefix(v, "-"))
	}

	v = strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\t', '\u00a0':
			return -1
		}
		return r
	}, v)
	if v == "" {
		return fail("no digits")
	}
	if !numberPattern.MatchString(v) {
		return fail("unexpected characters")
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fail(err.Error())
	}
	if neg {
		n = -n
	}
	return n, nil
}

// ParseInteger parses a whole number. Serial number decorations such as
// "3." or "(3)" are accepted.
func ParseInteger(s string) (int64, error) {
	v := strings.Trim(strings.TrimSpace(s), ".)(")
	n, err := ParseNumber(v)
	if err != nil {
		return 0, &FormatError{Type: model.TypeInteger, Text: s, Reason: "not a number"}
	}
	if n != math.Trunc(n) {
		return 0, &FormatError{Type: model.TypeInteger, Text: s, Reason: "not a whole number"}
	}
	return int64(n), nil
}

// ParseDimensions parses "W×D×H", "W x D x H" or "W*D*H" with an optional
// unit after each component or once at the end. Stated units must agree;
// defaultUnit applies when none is given.
func ParseDimensions(s, defaultUnit string) (model.Dimensions, error) {
	m := dimensionPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return model.Dimensions{}, &FormatError{Type: model.TypeDimensions, Text: s, Reason: "expected W x D x H"}
	}

	unit := ""
	for _, u := range []string{m[2], m[4], m[6]} {
		u = strings.ToLower(u)
		if u == "" {
			continue
		}
		if unit != "" && u != unit {
			return model.Dimensions{}, &FormatError{Type: model.TypeDimensions, Text: s, Reason: "mixed units"}
		}
		unit = u
	}
	if unit == "" {
		unit = defaultUnit
	}

	var vals [3]float64
	for i, idx := range []int{1, 3, 5} {
		v, err := strconv.ParseFloat(m[idx], 64)
		if err != nil {
			return model.Dimensions{}, &FormatError{Type: model.TypeDimensions, Text: s, Reason: err.Error()}
		}
		vals[i] = v
	}
	return model.Dimensions{Width: vals[0], Depth: vals[1], Height: vals[2], Unit: unit}, nil
}

// LooksLikeDimensions reports whether s has at least a W×D shape.
func LooksLikeDimensions(s string) bool {
	return partialDimensionPattern.MatchString(s)
}

// ParseArea parses an area with an optional unit, returned as "sqm",
// "sqft" or "" when none is stated.
func ParseArea(s string) (float64, string, error) {
	v := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	m := areaPattern.FindStringSubmatch(v)
	if m == nil {
		return 0, "", &FormatError{Type: model.TypeArea, Text: s, Reason: "expected a number and an area unit"}
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", &FormatError{Type: model.TypeArea, Text: s, Reason: err.Error()}
	}
	return n, areaUnit(m[2]), nil
}

func areaUnit(u string) string {
	u = strings.ToLower(strings.Join(strings.Fields(u), ""))
	switch {
	case u == "":
		return ""
	case strings.Contains(u, "ft"):
		return "sqft"
	default:
		return "sqm"
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2.1.2006",
	"02/01/06",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseDate parses the date formats found on quotations, day first, and
// returns it as YYYY-MM-DD.
func ParseDate(s string) (string, error) {
	v := strings.Join(strings.Fields(s), " ")
	v = strings.TrimSuffix(v, ".")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", &FormatError{Type: model.TypeDate, Text: s, Reason: "unknown date format"}
}

// cleanText collapses runs of whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalize parses text as the field's type and stores the value. The
// field is left unchanged on error.
func normalize(f *model.Field, text, defaultUnit string) error {
	text = cleanText(text)
	if text == "" {
		return &FormatError{Type: f.Type, Text: text, Reason: "empty"}
	}

	switch f.Type {
	case model.TypeNumber, model.TypeCurrency:
		n, err := ParseNumber(text)
		if err != nil {
			var fe *FormatError
			if errors.As(err, &fe) {
				fe.Type = f.Type
			}
			return err
		}
		f.Number = &n
	case model.TypeInteger:
		n, err := ParseInteger(text)
		if err != nil {
			return err
		}
		v := float64(n)
		f.Number = &v
	case model.TypeDimensions:
		d, err := ParseDimensions(text, defaultUnit)
		if err != nil {
			if !LooksLikeDimensions(text) {
				return err
			}
			// kept as text; validation flags the format
			f.Text = &text
			return nil
		}
		f.Dimensions = &d
	case model.TypeArea:
		n, unit, err := ParseArea(text)
		if err != nil {
			return err
		}
		f.Number, f.Unit = &n, unit
	case model.TypeDate:
		d, err := ParseDate(text)
		if err != nil {
			return err
		}
		f.Text = &d
	default:
		f.Text = &text
	}
	return nil
}
