// Package id generates the random identifiers the traffic engine embeds
// into proxy configs: the per-request subdomain suffix for http proxies.
package id

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// lowercaseAlphanumeric is the alphabet used for the subdomain suffix;
	// lowercase only, since it ends up in a DNS label.
	lowercaseAlphanumeric = "0123456789abcdefghijklmnopqrstuvwxyz"

	// SubdomainSuffixLength is the length of the random fragment appended
	// to a sanitized node name to build an http proxy's subdomain.
	SubdomainSuffixLength = 21
)

// GenerateSuffix returns a cryptographically random, DNS-label-safe string
// of length n drawn from the lowercase alphanumeric alphabet.
func GenerateSuffix(n int) (string, error) {
	if n <= 0 {
		n = SubdomainSuffixLength
	}

	alphabetLen := big.NewInt(int64(len(lowercaseAlphanumeric)))
	result := make([]byte, n)
	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("generate random suffix: %w", err)
		}
		result[i] = lowercaseAlphanumeric[num.Int64()]
	}
	return string(result), nil
}

// MustGenerateSuffix is GenerateSuffix but panics on error. Safe to use
// since the only failure mode is crypto/rand being unavailable.
func MustGenerateSuffix(n int) string {
	s, err := GenerateSuffix(n)
	if err != nil {
		panic(err)
	}
	return s
}

var unsafeSubdomainChars = regexp.MustCompile(`[^a-z0-9-]+`)

var lowerCaser = cases.Lower(language.Und)

// SanitizeNodeName case-folds a node name and strips everything but
// lowercase letters, digits, and hyphens, so it can be safely used as the
// leading label of a generated subdomain. Collapses runs of stripped
// characters into a single hyphen so "My Node!!2" becomes "my-node-2".
func SanitizeNodeName(nodeName string) string {
	lowered := lowerCaser.String(nodeName)
	sanitized := unsafeSubdomainChars.ReplaceAllString(lowered, "-")
	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		return "node"
	}
	return sanitized
}

// NewSubdomain builds the subdomain label update_traffic assigns to a
// newly created http proxy: the sanitized node name, a hyphen, and a
// 21-character random lowercase alphanumeric suffix.
func NewSubdomain(nodeName string) (string, error) {
	suffix, err := GenerateSuffix(SubdomainSuffixLength)
	if err != nil {
		return "", err
	}
	return SanitizeNodeName(nodeName) + "-" + suffix, nil
}
