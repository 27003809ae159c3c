package service

import "strings"

// Placeholders recognised in subjects and bodies.
const (
	PlaceholderToken      = "{{VERIFICATION_TOKEN}}"
	PlaceholderFirstName  = "{{FIRST_NAME}}"
	PlaceholderLastName   = "{{LAST_NAME}}"
	PlaceholderInviteLink = "{{INVITE_LINK}}"
	PlaceholderRole       = "{{ROLE}}"
)

// DefaultSubject is used when no subject template is configured.
const DefaultSubject = PlaceholderFirstName + " " + PlaceholderLastName + " - Accepted in " + PlaceholderRole + " Department"

// Template is a notification body loaded from a TemplateSource.
type Template struct {
	Name string
	Body string
}

// TemplateVars are the values substituted into a template.
type TemplateVars struct {
	Token      string
	FirstName  string
	LastName   string
	InviteLink string
	Role       string
}

// Render replaces every placeholder in text literally. Values are not
// escaped and unknown placeholders are left in place.
func Render(text string, v TemplateVars) string {
	return strings.NewReplacer(
		PlaceholderToken, v.Token,
		PlaceholderFirstName, v.FirstName,
		PlaceholderLastName, v.LastName,
		PlaceholderInviteLink, v.InviteLink,
		PlaceholderRole, v.Role,
	).Replace(text)
}
