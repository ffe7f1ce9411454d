package logger

import "strings"

// SanitizedEmail masks an email address for logging (e.g. "a****@******.com")
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	if len(local) > 1 {
		local = local[:1] + strings.Repeat("*", len(local)-1)
	}

	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}

	return local + "@" + strings.Join(labels, ".")
}

// RedactedToken keeps a short prefix of a secret so log lines can be correlated
func RedactedToken(token string) string {
	if len(token) <= 8 {
		return "[REDACTED]"
	}
	return token[:6] + "..."
}

var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"email",
	"auth",
	"session",
}

// SanitizeQueryString reports whether the raw query should be redacted from logs
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
