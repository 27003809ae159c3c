package domain

import (
	"net/mail"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RosterRow is one raw row read from a roster source.
type RosterRow struct {
	// Line is the 1-based source line, for reporting.
	Line      int
	Email     string
	FirstName string
	LastName  string
}

// IsBlank reports whether every field of the row is empty after trimming.
func (r RosterRow) IsBlank() bool {
	return strings.TrimSpace(r.Email) == "" &&
		strings.TrimSpace(r.FirstName) == "" &&
		strings.TrimSpace(r.LastName) == ""
}

// Candidate is a normalized roster row ready for invitation.
type Candidate struct {
	Email     string
	FirstName string
	LastName  string
	Group     string
}

// Normalize trims the row, lowercases the email and title-cases names.
// Rows without a parseable email or without a first name fail with ErrRowInvalid.
func (r RosterRow) Normalize(group string) (Candidate, error) {
	c := Candidate{
		Email:     NormalizeEmail(r.Email),
		FirstName: titleCase(r.FirstName),
		LastName:  titleCase(r.LastName),
		Group:     group,
	}

	if c.Email == "" {
		return Candidate{}, ErrRowInvalid.WithDetails("email is required")
	}
	addr, err := mail.ParseAddress(c.Email)
	if err != nil || addr.Address != c.Email {
		return Candidate{}, ErrRowInvalid.WithDetails("email is not a valid address")
	}
	if c.FirstName == "" {
		return Candidate{}, ErrRowInvalid.WithDetails("first name is required")
	}
	if len(c.Email) > MaxEmailLength {
		return Candidate{}, ErrRowInvalid.WithDetails("email exceeds 254 characters")
	}
	return c, nil
}

func titleCase(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	return cases.Title(language.Und).String(s)
}
