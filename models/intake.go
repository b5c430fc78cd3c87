package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

const (
	MinTarget     = 0
	MaxTarget     = 90
	DefaultTarget = 70
)

// ParseAction accepts exactly "compress" or "convert".
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionCompress, ActionConvert:
		return Action(s), nil
	}
	return "", fmt.Errorf("invalid action %q", s)
}

// ClampTarget bounds a target percent to [0,90].
func ClampTarget(t int) int {
	if t < MinTarget {
		return MinTarget
	}
	if t > MaxTarget {
		return MaxTarget
	}
	return t
}

// ParseTarget reads the form value; anything unparsable means the default.
// Integers too large for int still clamp by sign.
func ParseTarget(raw string) int {
	raw = strings.TrimSpace(raw)
	t, err := strconv.Atoi(raw)
	if errors.Is(err, strconv.ErrRange) {
		if strings.HasPrefix(raw, "-") {
			return MinTarget
		}
		return MaxTarget
	}
	if err != nil {
		return DefaultTarget
	}
	return ClampTarget(t)
}

// NormalizeFormat lower-cases a requested format and drops a leading dot.
func NormalizeFormat(f string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(f)), ".")
}

// SanitizeFilename keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with '_'. Returns "" when nothing usable remains.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
