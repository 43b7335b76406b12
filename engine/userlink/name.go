package userlink

import (
	"strings"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const fallbackName = "User"

var titleCaser = cases.Title(language.Und)

// DeriveName builds a display name from the local part of email, splitting on
// dots, underscores and hyphens: "jane.doe@x.io" becomes "Jane Doe".
func DeriveName(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	if len(parts) == 0 {
		return fallbackName
	}
	for i, p := range parts {
		parts[i] = titleCaser.String(p)
	}
	return strings.Join(parts, " ")
}

// FirstName returns the first word of name.
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return fallbackName
	}
	return fields[0]
}

func WorkspaceName(name string) string {
	return FirstName(name) + "'s Workspace"
}

// WorkspaceSlug derives a URL slug unique per workspace id.
func WorkspaceSlug(name, id string) string {
	base := slug.Make(name)
	suffix := id
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	if base == "" {
		return strings.ToLower(suffix)
	}
	return base + "-" + strings.ToLower(suffix)
}
