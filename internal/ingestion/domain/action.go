// Package domain holds the canonical lead-ingestion types: normalized
// contact actions, lead identity keys, and the Lead aggregate itself.
package domain

import "time"

// DateLayout is the compact calendar-date form stored on actions and leads.
const DateLayout = "20060102"

// ContextType says what a lead or action concerns: a listing, a development,
// or an owner's profile directly.
type ContextType string

const (
	ContextListing     ContextType = "listing"
	ContextDevelopment ContextType = "development"
	ContextProfile     ContextType = "profile"
)

// Valid reports whether the context type is one of the known values.
func (c ContextType) Valid() bool {
	switch c {
	case ContextListing, ContextDevelopment, ContextProfile:
		return true
	}
	return false
}

// ActionType is the kind of contact a seeker made.
type ActionType string

const (
	ActionPhone       ActionType = "phone"
	ActionMessage     ActionType = "message"
	ActionAppointment ActionType = "appointment"
	ActionEmail       ActionType = "email"
	ActionWebsite     ActionType = "website"
)

// Valid reports whether the action type is one of the known values.
func (t ActionType) Valid() bool {
	switch t {
	case ActionPhone, ActionMessage, ActionAppointment, ActionEmail, ActionWebsite:
		return true
	}
	return false
}

// Message channels that adjust the message score.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// Metadata carries the type-specific sub-fields of an action. Only the
// fields relevant to the action's type are set.
type Metadata struct {
	PhoneNumber     string `json:"phone_number,omitempty"`
	MessageChannel  string `json:"message_channel,omitempty"`
	AppointmentKind string `json:"appointment_kind,omitempty"`
	EmailAddress    string `json:"email_address,omitempty"`
	PageURL         string `json:"page_url,omitempty"`
}

// Action is one normalized contact event attributed to a lead.
type Action struct {
	ID        string      `json:"action_id"`
	Type      ActionType  `json:"action_type"`
	Date      string      `json:"action_date"`
	Hour      int         `json:"action_hour"`
	Timestamp time.Time   `json:"action_timestamp"`
	Metadata  Metadata    `json:"action_metadata"`
	Context   ContextType `json:"context_type"`
}

// Score returns the fixed per-action score. Messages score by channel.
// Lead scores take the maximum over actions, never the sum.
func (a Action) Score() int {
	switch a.Type {
	case ActionPhone:
		return 10
	case ActionAppointment:
		return 25
	case ActionEmail:
		return 10
	case ActionWebsite:
		return 5
	case ActionMessage:
		switch a.Metadata.MessageChannel {
		case ChannelEmail:
			return 10
		case ChannelWhatsApp:
			return 15
		default:
			return 20
		}
	}
	return 0
}

// LeadAction is a normalized action together with its attribution: who was
// contacted, through which subject, and by whom.
type LeadAction struct {
	Action

	// ListingID and DevelopmentID are mutually exclusive; both may be empty
	// when the originating subject no longer resolves (unknown subject).
	ListingID     string
	DevelopmentID string

	OwnerID     string
	OwnerType   string
	SeekerID    string
	IsAnonymous bool
}

// SubjectID returns the listing or development id, or empty when the subject
// is unknown.
func (la LeadAction) SubjectID() string {
	if la.ListingID != "" {
		return la.ListingID
	}
	return la.DevelopmentID
}
