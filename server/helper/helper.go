package helper

import (
	"regexp"
	"strings"

	"github.com/sshindanai/google-calendar-reminders/server/constant"
)

var phonePattern = regexp.MustCompile(constant.PHONE_REGEX)

// NormalizePhone strips everything except digits and a leading plus.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range phone {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func IsValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// MaskPhone keeps only the last four digits, for logs.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
