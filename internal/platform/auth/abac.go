package auth

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	RoleAdmin            = "admin"
	RoleInternalUser     = "internal_user"
	RoleOrganizationUser = "organization_user"
	RoleSystem           = "system"
)

// Action is what a subject is trying to do with an object.
type Action string

const (
	ActionRead   Action = "read"
	ActionModify Action = "modify"
)

// Subject is the identity performing an operation.
type Subject struct {
	ID             string
	Roles          []string
	OrganizationID uuid.UUID
}

// SystemSubject is used when the application itself reacts to events.
func SystemSubject() Subject {
	return Subject{ID: "system", Roles: []string{RoleSystem}}
}

func (s Subject) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ScopedObject is anything whose access is scoped to the organization that
// manages it. A zero organization id means the object is managed internally.
type ScopedObject interface {
	ManagingOrganizationID() uuid.UUID
}

// Policy decides whether a subject may perform an action on an object.
type Policy interface {
	Check(subject Subject, action Action, object ScopedObject) error
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(subject Subject, action Action, object ScopedObject) error

func (f PolicyFunc) Check(subject Subject, action Action, object ScopedObject) error {
	return f(subject, action, object)
}

// ErrAccessDenied is matched by every *AccessDeniedError.
var ErrAccessDenied = errors.New("access denied")

type AccessDeniedError struct {
	SubjectID string
	Action    Action
	Reason    string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: subject %q may not %s: %s", e.SubjectID, e.Action, e.Reason)
}

func (e *AccessDeniedError) Is(target error) bool { return target == ErrAccessDenied }

// OrganizationPolicy grants internal users everything and scopes
// organization users to the objects their organization manages.
type OrganizationPolicy struct{}

func (OrganizationPolicy) Check(subject Subject, action Action, object ScopedObject) error {
	if subject.HasRole(RoleAdmin) || subject.HasRole(RoleInternalUser) || subject.HasRole(RoleSystem) {
		return nil
	}
	if !subject.HasRole(RoleOrganizationUser) {
		return &AccessDeniedError{SubjectID: subject.ID, Action: action, Reason: "no role grants access"}
	}
	if subject.OrganizationID == uuid.Nil {
		return &AccessDeniedError{SubjectID: subject.ID, Action: action, Reason: "subject has no organization"}
	}
	if object.ManagingOrganizationID() != subject.OrganizationID {
		return &AccessDeniedError{SubjectID: subject.ID, Action: action, Reason: "object is managed by another organization"}
	}
	return nil
}
