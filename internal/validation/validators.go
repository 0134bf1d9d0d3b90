package validation

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var (
	// Resource ids end up in URL paths.
	identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

	// Dangerous characters that should never appear in identifiers
	dangerousChars = []string{";", "|", "&", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r", "/", "?", "#"}

	hostProfile = idna.New(
		idna.MapForLookup(),
		idna.Transitional(false),
		idna.StrictDomainName(true),
	)
)

// ValidateIdentifier validates a resource id before it is placed in a path.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if len(id) > 255 {
		return fmt.Errorf("identifier too long (max 255 characters)")
	}

	for _, char := range dangerousChars {
		if strings.Contains(id, char) {
			return fmt.Errorf("identifier contains dangerous character: %q", char)
		}
	}

	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid identifier: %s", id)
	}

	return nil
}

// ValidateHostname checks a DNS name, including internationalized names and
// a single leading wildcard label.
func ValidateHostname(host string) error {
	if host == "" {
		return fmt.Errorf("hostname cannot be empty")
	}
	name := strings.TrimPrefix(host, "*.")
	ascii, err := hostProfile.ToASCII(name)
	if err != nil {
		return fmt.Errorf("invalid hostname %q: %w", host, err)
	}
	if len(ascii) > 253 {
		return fmt.Errorf("hostname too long: %s", host)
	}
	return nil
}

// ValidateURL accepts absolute http(s) URLs with a valid host.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("invalid URL %q: missing host", raw)
	}
	if net.ParseIP(u.Hostname()) != nil {
		return nil
	}
	return ValidateHostname(u.Hostname())
}

// ValidateAllowlist checks if a value is in an allowed list
func ValidateAllowlist(value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("value not in allowlist: %s", value)
}
