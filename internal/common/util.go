package common

import "strings"

// WipeByteArray overwrites b with zeros. Used for password buffers read
// from the terminal. A nil slice is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// FormatBearer renders token as an authorization header value.
func FormatBearer(token string) string {
	return BearerScheme + " " + token
}

// ParseBearer extracts the token from an authorization header value.
// The scheme is matched case-insensitively; an empty token is rejected.
func ParseBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, BearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
