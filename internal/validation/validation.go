// Package validation checks signup and profile input before it reaches storage.
//
// Every check is pure: functions take the raw input, return a normalized copy
// plus an error, and never touch the database. Uniqueness is NOT checked here
// because it needs the Identity Store; the account and profile services do it.
//
// HOW ERRORS ARE REPORTED:
// Forms show one message per field, so failures accumulate in an Errors map and
// come back as a single *apperror.AppError wrapping apperror.ErrValidation.
// Callers render AppError.Fields next to the matching inputs.
package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sakif/payapp/internal/apperror"
)

const (
	MaxUsernameLength = 150
	MaxEmailLength    = 254
	MaxPasswordBytes  = 72 // bcrypt ignores everything past byte 72
	MaxBioLength      = 2000
)

const (
	msgRequired      = "This field is required."
	msgUsernameChars = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	msgEmail         = "Enter a valid email address."
	msgPasswordLong  = "Password must be at most 72 bytes."
	msgPasswordMatch = "Passwords do not match."
	msgPaymentID     = "Please enter a valid UPI ID in the format 'username@bank' with at least 3 characters before and after '@'."
)

var (
	usernamePattern  = regexp.MustCompile(`^[A-Za-z0-9_.@+-]+$`)
	paymentIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{3,}@[A-Za-z0-9]{3,}$`)
)

// Errors maps a form field name to its single error message.
// The first message recorded for a field wins.
type Errors map[string]string

func (e Errors) Add(field, message string) {
	if _, ok := e[field]; !ok {
		e[field] = message
	}
}

// Err returns nil when nothing failed, otherwise an *apperror.AppError.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return apperror.FieldsInvalid(map[string]string(e))
}

// =========================================================================
// SIGNUP
// =========================================================================

type SignupInput struct {
	Username  string
	Email     string
	Password  string
	Password2 string
}

// Signup validates registration input. Username is trimmed, email is trimmed
// and lowercased. Passwords are compared byte for byte and never trimmed.
func Signup(in SignupInput) (SignupInput, error) {
	errs := Errors{}

	in.Username = strings.TrimSpace(in.Username)
	if msg := checkUsername(in.Username); msg != "" {
		errs.Add("username", msg)
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if msg := checkEmail(in.Email); msg != "" {
		errs.Add("email", msg)
	}

	switch {
	case in.Password == "":
		errs.Add("password", msgRequired)
	case len(in.Password) > MaxPasswordBytes:
		errs.Add("password", msgPasswordLong)
	}

	// A mismatch belongs to the confirmation field, not the password field.
	if in.Password2 == "" {
		errs.Add("password2", msgRequired)
	} else if in.Password != in.Password2 {
		errs.Add("password2", msgPasswordMatch)
	}

	if err := errs.Err(); err != nil {
		return SignupInput{}, err
	}
	return in, nil
}

// Username checks a handle on its own, e.g. one derived from a GitHub login.
func Username(username string) error {
	if msg := checkUsername(username); msg != "" {
		return apperror.ValidationFailed("username", msg)
	}
	return nil
}

func checkUsername(username string) string {
	switch n := utf8.RuneCountInString(username); {
	case n == 0:
		return msgRequired
	case n > MaxUsernameLength:
		return fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", MaxUsernameLength, n)
	case !usernamePattern.MatchString(username):
		return msgUsernameChars
	}
	return ""
}

// checkEmail accepts a bare RFC 5322 address. "Bob <bob@x.com>" parses, but
// the address alone must be what the user typed.
func checkEmail(email string) string {
	if email == "" {
		return msgRequired
	}
	if len(email) > MaxEmailLength {
		return msgEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return msgEmail
	}
	at := strings.LastIndexByte(email, '@')
	if !strings.Contains(email[at+1:], ".") {
		return msgEmail
	}
	return ""
}

// =========================================================================
// PROFILE
// =========================================================================

type ProfileInput struct {
	PaymentID string
	Bio       string
}

// Profile validates the editable text fields of a profile.
// An empty payment id is valid and means "not set".
func Profile(in ProfileInput) (ProfileInput, error) {
	errs := Errors{}

	in.PaymentID = strings.TrimSpace(in.PaymentID)
	if in.PaymentID != "" && !ValidPaymentID(in.PaymentID) {
		errs.Add("payment_id", msgPaymentID)
	}

	in.Bio = strings.TrimSpace(in.Bio)
	if n := utf8.RuneCountInString(in.Bio); n > MaxBioLength {
		errs.Add("bio", fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", MaxBioLength, n))
	}

	if err := errs.Err(); err != nil {
		return ProfileInput{}, err
	}
	return in, nil
}

// ValidPaymentID reports whether s looks like name@bank with at least three
// characters on each side of the '@'.
func ValidPaymentID(s string) bool {
	return paymentIDPattern.MatchString(s)
}
