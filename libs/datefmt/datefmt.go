// Package datefmt renders appointment times in the product's user-facing
// languages.
package datefmt

import (
	"fmt"
	"strings"
	"time"

	"github.com/goodsign/monday"
)

type Locale string

const (
	PtBR Locale = "pt-BR"
	EnUS Locale = "en-US"
)

const Default = PtBR

var mondayLocales = map[Locale]monday.Locale{
	PtBR: monday.LocalePtBR,
	EnUS: monday.LocaleEnUS,
}

// ParseLocale accepts "pt-BR"/"en-US" in any case and with '_' separators.
// Empty input yields Default.
func ParseLocale(s string) (Locale, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-"))
	switch norm {
	case "":
		return Default, nil
	case "pt-br", "pt":
		return PtBR, nil
	case "en-us", "en":
		return EnUS, nil
	}
	return "", fmt.Errorf("unsupported locale %q", s)
}

// Appointment formats t in its own location:
//
//	pt-BR: "dia 05 de março, às 9:00h"
//	en-US: "March 05, at 9:00"
//
// The hour is unpadded, which Go layouts cannot express, so only the month
// name goes through monday.
func Appointment(t time.Time, loc Locale) string {
	ml, ok := mondayLocales[loc]
	if !ok {
		loc, ml = Default, mondayLocales[Default]
	}
	month := monday.Format(t, "January", ml)
	switch loc {
	case EnUS:
		return fmt.Sprintf("%s %02d, at %d:%02d", month, t.Day(), t.Hour(), t.Minute())
	default:
		// Portuguese month names are never capitalized mid-sentence.
		return fmt.Sprintf("dia %02d de %s, às %d:%02dh", t.Day(), strings.ToLower(month), t.Hour(), t.Minute())
	}
}

// LoadLocation resolves an IANA zone name, falling back to UTC for an empty
// name.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
