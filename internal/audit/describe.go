package audit

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pressroom-hq/pressroom/internal/shared"
)

var titleCaser = cases.Title(language.English)

// Describe renders a stored entry as a human-readable sentence. performedBy
// and targetUser are display names supplied by the caller; either may be
// empty. Unrecognised actions fall back to a generic templated sentence.
func Describe(entry Entry, performedBy, targetUser string) string {
	actor := performedBy
	if actor == "" {
		actor = "Someone"
	}
	target := targetUser
	if target == "" {
		target = "a user"
	}

	switch entry.Action {
	case ActionUserLogin:
		return fmt.Sprintf("%s signed in", actor)
	case ActionUserCreated:
		return fmt.Sprintf("%s created the account for %s", actor, target)
	case ActionUserUpdated:
		return fmt.Sprintf("%s updated the profile of %s%s", actor, target, changedFields(entry.Metadata))
	case ActionUserDeleted:
		return fmt.Sprintf("%s deleted the account of %s", actor, target)
	case ActionRoleChanged:
		if role, ok := entry.Metadata["role"].(string); ok {
			if op, ok := entry.Metadata["operation"].(string); ok && op == "removed" {
				return fmt.Sprintf("%s removed the %s role from %s", actor, role, target)
			}
			return fmt.Sprintf("%s assigned the %s role to %s", actor, role, target)
		}
		return fmt.Sprintf("%s changed the roles of %s", actor, target)
	case ActionInvitationSent:
		if email, ok := entry.Metadata["email"].(string); ok {
			return fmt.Sprintf("%s invited %s", actor, email)
		}
		return fmt.Sprintf("%s sent an invitation", actor)
	case ActionPermissionChanged:
		if role, ok := entry.Metadata["role"].(string); ok {
			return fmt.Sprintf("%s changed the permissions of the %s role", actor, role)
		}
		return fmt.Sprintf("%s changed role permissions", actor)
	case ActionUpdateCreated:
		return fmt.Sprintf("%s created the update %s", actor, updateTitle(entry.Metadata))
	case ActionUpdateUpdated:
		return fmt.Sprintf("%s edited the update %s%s", actor, updateTitle(entry.Metadata), changedFields(entry.Metadata))
	case ActionUpdateDeleted:
		return fmt.Sprintf("%s deleted the update %s", actor, updateTitle(entry.Metadata))
	case ActionUpdatePublished:
		return fmt.Sprintf("%s published the update %s", actor, updateTitle(entry.Metadata))
	case ActionDeployment:
		if env, ok := entry.Metadata["environment"].(string); ok {
			return fmt.Sprintf("%s triggered a deployment to %s", actor, env)
		}
		return fmt.Sprintf("%s triggered a deployment", actor)
	default:
		words := strings.Split(strings.ToLower(string(entry.Action)), "_")
		return fmt.Sprintf("%s performed %s on %s", actor, titleCaser.String(strings.Join(words, " ")), entry.EntityType)
	}
}

func updateTitle(metadata map[string]any) string {
	if title, ok := metadata["title"].(string); ok && title != "" {
		return fmt.Sprintf("%q", title)
	}
	return "entry"
}

func changedFields(metadata map[string]any) string {
	var fields []string
	// Before a round-trip through storage the diff is still typed; after
	// unmarshalling it is a plain map.
	switch changes := metadata["changes"].(type) {
	case map[string]any:
		for field := range changes {
			fields = append(fields, field)
		}
	case map[string]shared.FieldChange:
		for field := range changes {
			fields = append(fields, field)
		}
	}
	if len(fields) == 0 {
		return ""
	}
	if len(fields) == 1 {
		return fmt.Sprintf(" (changed %s)", fields[0])
	}
	return fmt.Sprintf(" (changed %d fields)", len(fields))
}
