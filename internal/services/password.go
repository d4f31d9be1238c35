package services

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/ccojocar/zxcvbn-go/frequency"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultMinPasswordLength = 8
	DefaultMaxSimilarity     = 0.7
)

// common_passwords.txt adds leaked passwords missing from the zxcvbn
// frequency list, mostly digit-suffixed variants.
//
//go:embed common_passwords.txt
var commonPasswordList string

// defaultCommonPasswords is built once and shared read-only by every
// validator that keeps the default denylist.
var defaultCommonPasswords = sync.OnceValue(func() map[string]struct{} {
	leaked := frequency.Lists["Passwords"].List
	common := make(map[string]struct{}, len(leaked)+256)
	for _, p := range leaked {
		addCommon(common, p)
	}
	for _, line := range strings.Split(commonPasswordList, "\n") {
		addCommon(common, line)
	}
	return common
})

// PasswordContext holds the user attributes a password must not resemble.
type PasswordContext struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// PasswordValidator applies the password policy. It is pure and safe for
// concurrent use.
type PasswordValidator struct {
	minLength     int
	maxSimilarity float64
	common        map[string]struct{}
}

type PasswordOption func(*PasswordValidator)

func WithMinLength(n int) PasswordOption {
	return func(v *PasswordValidator) {
		v.minLength = n
	}
}

// WithMaxSimilarity sets the ratio at or above which a password counts as
// too similar to a user attribute. Values <= 0 disable the check.
func WithMaxSimilarity(ratio float64) PasswordOption {
	return func(v *PasswordValidator) {
		v.maxSimilarity = ratio
	}
}

// WithCommonPasswords replaces the embedded denylist.
func WithCommonPasswords(passwords []string) PasswordOption {
	return func(v *PasswordValidator) {
		v.common = make(map[string]struct{}, len(passwords))
		for _, p := range passwords {
			addCommon(v.common, p)
		}
	}
}

func NewPasswordValidator(opts ...PasswordOption) *PasswordValidator {
	v := &PasswordValidator{
		minLength:     DefaultMinPasswordLength,
		maxSimilarity: DefaultMaxSimilarity,
		common:        defaultCommonPasswords(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func addCommon(common map[string]struct{}, password string) {
	password = strings.TrimSpace(password)
	if password == "" {
		return
	}
	common[foldPassword(password)] = struct{}{}
}

// foldPassword normalises s for case-insensitive comparison. A Caser is
// stateful, so each call gets its own.
func foldPassword(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}


// Validate runs every check and returns all violations, or nil.
func (v *PasswordValidator) Validate(password string, user PasswordContext) []string {
	var violations []string

	if msg := v.checkSimilarity(password, user); msg != "" {
		violations = append(violations, msg)
	}
	if len([]rune(password)) < v.minLength {
		violations = append(violations, fmt.Sprintf(
			"This password is too short. It must contain at least %d characters.", v.minLength))
	}
	if _, ok := v.common[foldPassword(strings.TrimSpace(password))]; ok {
		violations = append(violations, "This password is too common.")
	}
	if isNumeric(password) {
		violations = append(violations, "This password is entirely numeric.")
	}

	return violations
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func (v *PasswordValidator) checkSimilarity(password string, user PasswordContext) string {
	if v.maxSimilarity <= 0 || password == "" {
		return ""
	}

	attributes := []struct {
		label string
		value string
	}{
		{"username", user.Username},
		{"email address", user.Email},
		{"first name", user.FirstName},
		{"last name", user.LastName},
	}

	folded := foldPassword(password)
	for _, attr := range attributes {
		if strings.TrimSpace(attr.value) == "" {
			continue
		}
		value := foldPassword(attr.value)
		parts := append([]string{value}, splitWords(value)...)
		for _, part := range parts {
			if exceedsLengthRatio(folded, part, v.maxSimilarity) {
				continue
			}
			if similarity(folded, part) >= v.maxSimilarity {
				return fmt.Sprintf("The password is too similar to the %s.", attr.label)
			}
		}
	}
	return ""
}

// splitWords breaks an attribute on anything that is not a letter or digit,
// so "alice.smith@example.com" also yields "alice", "smith", "example", "com".
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// exceedsLengthRatio skips attribute parts far shorter than the password;
// a one-letter initial cannot make a long password weak.
func exceedsLengthRatio(password, value string, maxSimilarity float64) bool {
	pwdLen := len([]rune(password))
	valueLen := len([]rune(value))
	bound := maxSimilarity / 2 * float64(pwdLen)
	return pwdLen >= 10*valueLen && float64(valueLen) < bound
}

// similarity returns 2*M/T where M is the length of the longest common
// subsequence and T the combined length. It is 1 for equal strings and 0
// for strings sharing no characters.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(lcsLength(ra, rb)) / float64(total)
}

func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
