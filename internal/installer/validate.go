package installer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/setupdesk/setup-desk/internal/deskerr"
)

var (
	packageNamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]*[a-zA-Z0-9])?$`)
	versionPattern     = regexp.MustCompile(`^(\d+)(\.\d+)*([a-zA-Z]+\d*)?$`)
	shellMetaPattern   = regexp.MustCompile("[;&|`$()]")
)

// Names that would shadow interpreter internals or grant execution
// primitives are rejected outright regardless of role grants.
var blockedPackages = map[string]struct{}{
	"os":         {},
	"sys":        {},
	"subprocess": {},
	"importlib":  {},
	"exec":       {},
	"eval":       {},
}

const (
	maxPackageNameLength = 100
	maxInputLength       = 500
)

// ValidatePackageName rejects names that could not be a PyPI distribution.
// Version qualifiers are stripped before checking, so "pandas>=2.0" is
// validated as "pandas".
func ValidatePackageName(name string) error {
	trimmed := strings.TrimSpace(name)
	if idx := strings.IndexAny(trimmed, "=<>!"); idx >= 0 {
		trimmed = strings.TrimSpace(trimmed[:idx])
	}
	if trimmed == "" {
		return fmt.Errorf("%w: package name is empty", deskerr.ErrValidation)
	}
	if len(trimmed) > maxPackageNameLength {
		return fmt.Errorf("%w: package name exceeds %d characters", deskerr.ErrValidation, maxPackageNameLength)
	}
	if !packageNamePattern.MatchString(trimmed) {
		return fmt.Errorf("%w: package name %q contains invalid characters", deskerr.ErrValidation, trimmed)
	}
	if _, blocked := blockedPackages[strings.ToLower(trimmed)]; blocked {
		return fmt.Errorf("%w: package %q cannot be installed through this service", deskerr.ErrValidation, trimmed)
	}
	return nil
}

// ValidateVersion accepts "latest", an empty string, or a release string
// such as "2.31.0" or "1.0rc1".
func ValidateVersion(version string) error {
	trimmed := strings.TrimSpace(version)
	if trimmed == "" || strings.EqualFold(trimmed, "latest") {
		return nil
	}
	if !versionPattern.MatchString(trimmed) {
		return fmt.Errorf("%w: version %q is not a valid release string", deskerr.ErrValidation, trimmed)
	}
	return nil
}

// SanitizeInput strips shell metacharacters and control characters from
// free-text request input and caps its length.
func SanitizeInput(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' {
			b.WriteRune(' ')
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := shellMetaPattern.ReplaceAllString(b.String(), "")
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) > maxInputLength {
		cut := maxInputLength
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut]
	}
	return cleaned
}
