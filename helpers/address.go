package helpers

import "strings"

// NormalizeAddress lowercases and trims an email address. All address
// comparisons in the delivery path go through this so that recipient
// resolution and safe/block list lookups stay case-insensitive.
func NormalizeAddress(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func SplitEmailAddress(email string) (string, string) {
	email = NormalizeAddress(email)
	local, domain, found := strings.Cut(email, "@")
	if !found {
		return email, ""
	}
	return local, domain
}
