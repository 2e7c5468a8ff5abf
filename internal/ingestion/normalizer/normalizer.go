// Package normalizer turns raw analytics events into canonical lead actions.
// Events arrive in two shapes: a unified "lead" event carrying a lead_type
// property, and older single-purpose event names kept for backward
// compatibility. Both normalize to the same Action.
package normalizer

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"listingportal_backend/internal/ingestion/client"
	"listingportal_backend/internal/ingestion/domain"
	"listingportal_backend/platform/phone"
)

// UnifiedEventName is the current event name; its lead_type property names
// the action type directly.
const UnifiedEventName = "lead"

// legacyEventTypes maps the retired per-type event names still emitted by
// older frontend builds.
var legacyEventTypes = map[string]domain.ActionType{
	"phone_click":         domain.ActionPhone,
	"message_sent":        domain.ActionMessage,
	"appointment_request": domain.ActionAppointment,
	"email_click":         domain.ActionEmail,
	"website_click":       domain.ActionWebsite,
}

// actionNamespace seeds deterministic action ids for events that carry no
// insert id, so redelivered events hash to the same id.
var actionNamespace = uuid.MustParse("7b6e3f04-5c1d-4a8e-9f2a-d3b8c4a91e57")

// EventNames returns every event name the pipeline asks the store for, in a
// stable order suitable for the export filter.
func EventNames() []string {
	return []string{
		UnifiedEventName,
		"phone_click",
		"message_sent",
		"appointment_request",
		"email_click",
		"website_click",
	}
}

// Normalize maps one raw event to zero or one LeadAction. The bool is false
// when the event is not a lead event or cannot be attributed; skipped events
// are expected noise, not errors.
func Normalize(ev client.RawEvent) (domain.LeadAction, bool) {
	actionType, ok := resolveType(ev)
	if !ok {
		return domain.LeadAction{}, false
	}

	contextType := domain.ContextType(ev.Prop("context_type"))
	if contextType == "" {
		contextType = domain.ContextListing
	}
	if !contextType.Valid() {
		return domain.LeadAction{}, false
	}

	ownerID, ownerType := resolveOwner(ev)
	seekerID := ev.Prop("user_id")
	if seekerID == "" {
		seekerID = ev.DistinctID
	}
	if seekerID == "" || ownerID == "" {
		// Unattributable: nobody to build a lead for.
		return domain.LeadAction{}, false
	}

	listingID := ev.Prop("listing_id")
	developmentID := ev.Prop("development_id")
	// Subject ids are exclusive per context.
	switch contextType {
	case domain.ContextListing:
		developmentID = ""
	case domain.ContextDevelopment:
		listingID = ""
	case domain.ContextProfile:
		listingID, developmentID = "", ""
	}

	ts := ev.Time()
	la := domain.LeadAction{
		Action: domain.Action{
			ID:        actionID(ev),
			Type:      actionType,
			Date:      ts.Format(domain.DateLayout),
			Hour:      ts.Hour(),
			Timestamp: ts,
			Metadata:  resolveMetadata(actionType, ev),
			Context:   contextType,
		},
		ListingID:     listingID,
		DevelopmentID: developmentID,
		OwnerID:       ownerID,
		OwnerType:     ownerType,
		SeekerID:      seekerID,
		IsAnonymous:   !boolProp(ev, "is_logged_in"),
	}
	return la, true
}

func resolveType(ev client.RawEvent) (domain.ActionType, bool) {
	if ev.Name == UnifiedEventName {
		t := domain.ActionType(ev.Prop("lead_type"))
		return t, t.Valid()
	}
	t, ok := legacyEventTypes[ev.Name]
	return t, ok
}

func resolveOwner(ev client.RawEvent) (string, string) {
	if id := ev.Prop("owner_id"); id != "" {
		ownerType := ev.Prop("owner_type")
		if ownerType == "" {
			ownerType = "profile"
		}
		return id, ownerType
	}
	if id := ev.Prop("developer_id"); id != "" {
		return id, "developer"
	}
	if id := ev.Prop("agent_id"); id != "" {
		return id, "agent"
	}
	return "", ""
}

func resolveMetadata(t domain.ActionType, ev client.RawEvent) domain.Metadata {
	switch t {
	case domain.ActionPhone:
		return domain.Metadata{PhoneNumber: phone.NormalizeE164(ev.Prop("phone_number"))}
	case domain.ActionMessage:
		return domain.Metadata{MessageChannel: ev.Prop("channel")}
	case domain.ActionAppointment:
		return domain.Metadata{AppointmentKind: ev.Prop("appointment_type")}
	case domain.ActionEmail:
		return domain.Metadata{EmailAddress: ev.Prop("email")}
	case domain.ActionWebsite:
		return domain.Metadata{PageURL: ev.Prop("page_url")}
	}
	return domain.Metadata{}
}

// actionID prefers the store's insert id; otherwise it derives a stable id
// from the event's identifying fields so redelivery dedups cleanly.
func actionID(ev client.RawEvent) string {
	if id := ev.Prop("insert_id"); id != "" {
		return id
	}
	seed := fmt.Sprintf("%s|%s|%s|%s|%s",
		ev.Name,
		ev.DistinctID,
		strconv.FormatInt(ev.Timestamp, 10),
		ev.Prop("listing_id"),
		ev.Prop("development_id"),
	)
	return uuid.NewSHA1(actionNamespace, []byte(seed)).String()
}

func boolProp(ev client.RawEvent, key string) bool {
	if ev.Properties == nil {
		return false
	}
	switch v := ev.Properties[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}
