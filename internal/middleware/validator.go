package middleware

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

var (
	userIDPattern        = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,128}$`)
	transactionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)
)

// ValidateUserID checks an identity coming in from a client.
func ValidateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("user_id cannot be empty")
	}
	if !userIDPattern.MatchString(id) {
		return fmt.Errorf("invalid user_id format (alphanumeric, dot, dash, underscore only, max 128 chars)")
	}
	return nil
}

// ValidatePlan accepts monthly and yearly. Empty means yearly.
func ValidatePlan(plan string) (string, error) {
	switch p := strings.ToLower(strings.TrimSpace(plan)); p {
	case "":
		return "yearly", nil
	case "monthly", "yearly":
		return p, nil
	default:
		return "", fmt.Errorf("invalid plan: %s (allowed: monthly, yearly)", plan)
	}
}

func ValidateTransactionID(id string) error {
	if !transactionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid transaction id format")
	}
	return nil
}

// ValidateLaunchURL accepts an absolute http(s) URL or a bare query string.
func ValidateLaunchURL(raw string) error {
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "?") || !strings.Contains(raw, "://") {
		_, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
		if err != nil {
			return fmt.Errorf("invalid launch query: %w", err)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// SanitizeFilename keeps the base name of an uploaded file.
func SanitizeFilename(name string) string {
	name = SanitizeString(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return "page"
	}
	return name
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
