// Package incident files incident reports into the drive tree
// root/{year}/{location}/{number}, where number is the report's
// SMCOD-IR-GS-{site}-{year}-{serial} identifier.
package incident

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// NumberPrefix starts every incident number.
const NumberPrefix = "SMCOD-IR-GS"

const (
	maxSerialDigits = 4
	minYear         = 2000
	maxYear         = 9999
)

// Sentinel errors.
var (
	ErrInvalidSerial = errors.New("incident: serial must be 1 to 4 digits")
	ErrInvalidYear   = errors.New("incident: invalid year")
	ErrUnknownSite   = errors.New("incident: unknown location")
	ErrDuplicate     = errors.New("incident: report folder already exists")
)

// NormalizeSerial trims raw and zero-pads it to four digits. Anything other
// than 1 to 4 ASCII digits is rejected.
func NormalizeSerial(raw string) (string, error) {
	s := strings.TrimSpace(raw)

	if s == "" || len(s) > maxSerialDigits {
		return "", fmt.Errorf("%w: %q", ErrInvalidSerial, raw)
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidSerial, raw)
		}
	}

	return strings.Repeat("0", maxSerialDigits-len(s)) + s, nil
}

// Number identifies one incident report.
type Number struct {
	Site   string // site code, e.g. DVO
	Year   int
	Serial string // normalized, four digits
}

// NewNumber validates its inputs and normalizes serial.
func NewNumber(site string, year int, serial string) (Number, error) {
	if err := validateYear(year); err != nil {
		return Number{}, err
	}

	site = strings.TrimSpace(site)
	if site == "" {
		return Number{}, fmt.Errorf("%w: empty site code", ErrUnknownSite)
	}

	normalized, err := NormalizeSerial(serial)
	if err != nil {
		return Number{}, err
	}

	return Number{Site: site, Year: year, Serial: normalized}, nil
}

func (n Number) String() string {
	return fmt.Sprintf("%s-%s-%d-%s", NumberPrefix, n.Site, n.Year, n.Serial)
}

// DocumentName is the file name of the report document in its folder.
func (n Number) DocumentName() string {
	return n.String() + ".docx"
}

// ParseNumber parses a folder name produced by Number.String.
func ParseNumber(s string) (Number, error) {
	rest, ok := strings.CutPrefix(s, NumberPrefix+"-")
	if !ok {
		return Number{}, fmt.Errorf("incident: %q is not an incident number", s)
	}

	parts := strings.Split(rest, "-")
	if len(parts) != 3 { //nolint:mnd // site, year, serial
		return Number{}, fmt.Errorf("incident: %q is not an incident number", s)
	}

	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return Number{}, fmt.Errorf("%w: %q", ErrInvalidYear, parts[1])
	}

	if len(parts[2]) != maxSerialDigits {
		return Number{}, fmt.Errorf("%w: %q", ErrInvalidSerial, parts[2])
	}

	return NewNumber(parts[0], year, parts[2])
}

func validateYear(year int) error {
	if year < minYear || year > maxYear {
		return fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}

	return nil
}

// Sites maps a location (the folder name under each year) to its site code.
type Sites map[string]string

// Code returns the site code for location, matching the location name
// case-insensitively, and the canonical location spelling.
func (s Sites) Code(location string) (code, canonical string, err error) {
	location = strings.TrimSpace(location)

	if c, ok := s[location]; ok {
		return c, location, nil
	}

	for name, c := range s {
		if strings.EqualFold(name, location) {
			return c, name, nil
		}
	}

	return "", "", fmt.Errorf("%w: %q", ErrUnknownSite, location)
}
