package utils

import (
	"net/mail"
	"strings"
)

// NormalizeSender extracts the address from a From header, lower-cases it and
// strips any +alias from the local part. Returns "" when no address parses.
func NormalizeSender(fromHeader string) string {
	fromHeader = strings.TrimSpace(fromHeader)
	if fromHeader == "" {
		return ""
	}
	addr, err := mail.ParseAddress(fromHeader)
	if err != nil || addr == nil {
		// some headers carry a list
		addr = nil
		for _, p := range strings.Split(fromHeader, ",") {
			a, e := mail.ParseAddress(strings.TrimSpace(p))
			if e == nil && a != nil {
				addr = a
				break
			}
		}
		if addr == nil {
			if strings.Count(fromHeader, "@") == 1 && !strings.ContainsAny(fromHeader, " <>\"") {
				return normalizeAddress(fromHeader)
			}
			return ""
		}
	}
	return normalizeAddress(addr.Address)
}

// SenderDisplayName returns the display name part of a From header, if any.
func SenderDisplayName(fromHeader string) string {
	addr, err := mail.ParseAddress(strings.TrimSpace(fromHeader))
	if err != nil || addr == nil {
		return ""
	}
	return strings.TrimSpace(addr.Name)
}

func normalizeAddress(address string) string {
	email := strings.ToLower(strings.TrimSpace(address))
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	local := email[:at]
	domain := email[at+1:]
	if plus := strings.IndexByte(local, '+'); plus > 0 {
		local = local[:plus]
	}
	return local + "@" + domain
}

// ExtractHTTPUnsubscribeURL returns the first http(s) target of a
// List-Unsubscribe header, or "".
func ExtractHTTPUnsubscribeURL(header string) string {
	for _, p := range strings.Split(header, ",") {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, "<>")
		p = strings.TrimSpace(p)
		lower := strings.ToLower(p)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			return p
		}
	}
	return ""
}

// ExtractMailtoUnsubscribe returns the first mailto: target of a
// List-Unsubscribe header, or "".
func ExtractMailtoUnsubscribe(header string) string {
	for _, p := range strings.Split(header, ",") {
		p = strings.TrimSpace(strings.Trim(strings.TrimSpace(p), "<>"))
		if strings.HasPrefix(strings.ToLower(p), "mailto:") {
			return p
		}
	}
	return ""
}
