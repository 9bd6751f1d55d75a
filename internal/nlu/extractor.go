package nlu

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// The normalizer is an ordered pipeline of independent passes, one per
// entity kind. A pass that finds nothing contributes nothing; passes never
// interact. Merging only sorts by source position, duplicate handling is
// left to the slot-merge stage of the dialogue engine.

var (
	amountRegex   = regexp.MustCompile(`(?i)(?:₹\s*|\b(?:rs\.?|inr)\s*)?(\d[\d,]*(?:\.\d+)?)\s*(k\b|lakhs?\b|lacs?\b|crores?\b)?`)
	numDateRegex  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	wordDateRegex = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+(\d{4})\b`)
	upiRegex      = regexp.MustCompile(`\b[A-Za-z0-9][A-Za-z0-9._-]*@[A-Za-z0-9]+\b`)
	last4Regex    = regexp.MustCompile(`(?i)\bending\s+(?:in\s+|with\s+)?(\d{4})\b`)
)

var magnitudes = map[string]float64{
	"k":     1_000,
	"lakh":  100_000,
	"lac":   100_000,
	"crore": 10_000_000,
}

// Extract runs every extractor pass over the text and returns the merged
// entity list in left-to-right source order.
func Extract(text string) []Entity {
	var out []Entity
	out = append(out, ExtractAmounts(text)...)
	out = append(out, ExtractDates(text)...)
	out = append(out, ExtractUPI(text)...)
	out = append(out, ExtractLast4(text)...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// ExtractAmounts finds monetary amounts and normalizes them to a plain digit
// string: currency markers and thousand separators stripped, magnitude
// suffixes (5k, 2 lakh, 1 crore) multiplied out.
func ExtractAmounts(text string) []Entity {
	var out []Entity
	for _, loc := range amountRegex.FindAllStringSubmatchIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		number := text[loc[2]:loc[3]]
		// Digits that are part of a date or a handle are not amounts.
		if loc[2] > 0 {
			switch text[loc[2]-1] {
			case '/', '@', '.':
				continue
			}
		}
		if loc[3] < len(text) && (text[loc[3]] == '/' || text[loc[3]] == '@') {
			continue
		}
		suffix := ""
		if loc[4] >= 0 {
			suffix = strings.ToLower(text[loc[4]:loc[5]])
		}
		normalized, err := NormalizeAmount(number, suffix)
		if err != nil {
			continue
		}
		out = append(out, Entity{
			Kind:       KindAmount,
			Raw:        strings.TrimSpace(raw),
			Normalized: normalized,
			Position:   loc[0],
		})
	}
	return out
}

// NormalizeAmount produces the canonical digit string for a numeric span and
// an optional magnitude suffix. Without a suffix the cleaned digit string is
// kept verbatim so "500.50" stays "500.50"; with a suffix the value is
// multiplied and re-serialized.
func NormalizeAmount(number, suffix string) (string, error) {
	clean := strings.ReplaceAll(number, ",", "")
	if clean == "" {
		return "", fmt.Errorf("empty amount")
	}
	if suffix == "" {
		if _, err := strconv.ParseFloat(clean, 64); err != nil {
			return "", fmt.Errorf("parse amount %q: %w", number, err)
		}
		return clean, nil
	}
	mult, ok := magnitudes[normalizeSuffix(suffix)]
	if !ok {
		return "", fmt.Errorf("unknown magnitude %q", suffix)
	}
	val, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return "", fmt.Errorf("parse amount %q: %w", number, err)
	}
	val *= mult
	return strconv.FormatFloat(val, 'f', -1, 64), nil
}

func normalizeSuffix(suffix string) string {
	s := strings.ToLower(strings.TrimSpace(suffix))
	switch {
	case s == "k":
		return "k"
	case strings.HasPrefix(s, "lakh"):
		return "lakh"
	case strings.HasPrefix(s, "lac"):
		return "lac"
	case strings.HasPrefix(s, "crore"):
		return "crore"
	default:
		return s
	}
}

// ExtractDates recognizes DD/MM/YYYY and "5 Dec 2024" forms, normalized to
// ISO YYYY-MM-DD so equality comparisons are stable.
func ExtractDates(text string) []Entity {
	var out []Entity
	for _, loc := range numDateRegex.FindAllStringSubmatchIndex(text, -1) {
		day, _ := strconv.Atoi(text[loc[2]:loc[3]])
		month, _ := strconv.Atoi(text[loc[4]:loc[5]])
		year, _ := strconv.Atoi(text[loc[6]:loc[7]])
		if !validDate(year, month, day) {
			continue
		}
		out = append(out, Entity{
			Kind:       KindDate,
			Raw:        text[loc[0]:loc[1]],
			Normalized: fmt.Sprintf("%04d-%02d-%02d", year, month, day),
			Position:   loc[0],
		})
	}
	for _, loc := range wordDateRegex.FindAllStringSubmatchIndex(text, -1) {
		day, _ := strconv.Atoi(text[loc[2]:loc[3]])
		month := monthNumber(text[loc[4]:loc[5]])
		year, _ := strconv.Atoi(text[loc[6]:loc[7]])
		if month == 0 || !validDate(year, month, day) {
			continue
		}
		out = append(out, Entity{
			Kind:       KindDate,
			Raw:        text[loc[0]:loc[1]],
			Normalized: fmt.Sprintf("%04d-%02d-%02d", year, month, day),
			Position:   loc[0],
		})
	}
	return out
}

func validDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Day() == day && int(t.Month()) == month
}

func monthNumber(abbr string) int {
	switch strings.ToLower(abbr) {
	case "jan":
		return 1
	case "feb":
		return 2
	case "mar":
		return 3
	case "apr":
		return 4
	case "may":
		return 5
	case "jun":
		return 6
	case "jul":
		return 7
	case "aug":
		return 8
	case "sep":
		return 9
	case "oct":
		return 10
	case "nov":
		return 11
	case "dec":
		return 12
	}
	return 0
}

// ExtractUPI matches local-part@handle payment identifiers.
func ExtractUPI(text string) []Entity {
	var out []Entity
	for _, loc := range upiRegex.FindAllStringIndex(text, -1) {
		token := text[loc[0]:loc[1]]
		out = append(out, Entity{
			Kind:       KindUPI,
			Raw:        token,
			Normalized: strings.ToLower(token),
			Position:   loc[0],
		})
	}
	return out
}

// ExtractLast4 matches "ending (in/with) NNNN" card references and keeps
// only the four-digit group.
func ExtractLast4(text string) []Entity {
	var out []Entity
	for _, loc := range last4Regex.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, Entity{
			Kind:       KindLast4,
			Raw:        text[loc[0]:loc[1]],
			Normalized: text[loc[2]:loc[3]],
			Position:   loc[0],
		})
	}
	return out
}
