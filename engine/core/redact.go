package core

import (
	"regexp"
	"strings"
	"unicode"
)

const RedactedValue = "[REDACTED]"

var (
	bearerTokenRe = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-\._~\+\/]+=*`)
	kvSecretRe    = regexp.MustCompile(
		`(?i)(api[_-]?key|token|secret|password|pwd|access_token|refresh_token)\s*[:=]\s*["']?[^"'\s]+["']?`,
	)
	jwtRe        = regexp.MustCompile(`\b(eyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+)\b`)
	slackTokenRe = regexp.MustCompile(`\b(xox[baprs]-[A-Za-z0-9\-]{10,})\b`)
	serviceKeyRe = regexp.MustCompile(`\bbgk_[0-9a-f]{16,}\b`)
	connectionRe = regexp.MustCompile(`(?i)((postgres|postgresql|redis|rediss|https?)://)[^@\s]+@[^\s]+`)
)

// RedactString trims, truncates and scrubs secret-looking substrings.
func RedactString(s string) string {
	const maxLen = 256
	s = strings.TrimSpace(s)
	s = jwtRe.ReplaceAllString(s, "[JWT_REDACTED]")
	s = slackTokenRe.ReplaceAllString(s, "[SLACK_TOKEN_REDACTED]")
	s = serviceKeyRe.ReplaceAllString(s, RedactedValue)
	s = connectionRe.ReplaceAllString(s, "$1"+RedactedValue)
	s = bearerTokenRe.ReplaceAllString(s, "$1"+RedactedValue)
	s = kvSecretRe.ReplaceAllString(s, "$1="+RedactedValue)
	if len(s) > maxLen {
		s = s[:maxLen] + "…"
	}
	return s
}

func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return RedactString(err.Error())
}

// credentialWords mark a parameter as credential-shaped when they appear as a name segment.
var credentialWords = map[string]struct{}{
	"password": {}, "passwd": {}, "secret": {}, "token": {}, "apikey": {},
	"credential": {}, "credentials": {}, "authorization": {}, "bearer": {}, "cookie": {},
}

// credentialCompounds cover names that only become sensitive when two segments meet.
var credentialCompounds = []string{"api_key", "access_key", "private_key", "client_secret", "refresh_token"}

// IsCredentialField reports whether a parameter name looks like it holds a secret.
func IsCredentialField(name string) bool {
	segments := splitFieldName(name)
	joined := strings.Join(segments, "_")
	for _, compound := range credentialCompounds {
		if strings.Contains(joined, compound) {
			return true
		}
	}
	for _, seg := range segments {
		if _, ok := credentialWords[seg]; ok {
			return true
		}
	}
	return false
}

// splitFieldName lower-cases a name and splits it on delimiters and camelCase boundaries.
func splitFieldName(name string) []string {
	var (
		segments []string
		current  strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, current.String())
			current.Reset()
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			if i > 0 && !unicode.IsUpper(runes[i-1]) {
				flush()
			}
			current.WriteRune(unicode.ToLower(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return segments
}

// RedactParams returns a deep copy of params with credential-shaped fields replaced.
func RedactParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if IsCredentialField(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return RedactParams(t)
	case []any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = redactValue(item)
		}
		return items
	default:
		return v
	}
}
