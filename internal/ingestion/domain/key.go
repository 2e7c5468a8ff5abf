package domain

import "fmt"

// UnknownSubject is the sentinel used when an action's subject can no longer
// be resolved. All unknown-subject actions for the same (context, owner,
// seeker) collapse into a single lead.
const UnknownSubject = "unknown"

// Key is a lead's composite identity. Subject holds UnknownSubject rather
// than empty when the subject is unresolved, so keys are always comparable.
type Key struct {
	Context ContextType
	Subject string
	Owner   string
	Seeker  string
}

// KeyFor derives the identity key for an action.
func KeyFor(a LeadAction) Key {
	subject := a.SubjectID()
	if subject == "" {
		subject = UnknownSubject
	}
	return Key{
		Context: a.Context,
		Subject: subject,
		Owner:   a.OwnerID,
		Seeker:  a.SeekerID,
	}
}

// HasSubject reports whether the key points at a real listing or development.
func (k Key) HasSubject() bool {
	return k.Subject != "" && k.Subject != UnknownSubject
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Context, k.Subject, k.Owner, k.Seeker)
}
