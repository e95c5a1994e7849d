package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"chronosync.org/internal/zoom"
)

// Event types the reconciliation engine reacts to. Anything else is logged
// and recorded but applies no change.
const (
	EventURLValidation = "endpoint.url_validation"

	EventMeetingCreated = "meeting.created"
	EventMeetingUpdated = "meeting.updated"
	EventMeetingDeleted = "meeting.deleted"

	EventUserCreated      = "user.created"
	EventUserUpdated      = "user.updated"
	EventUserDeactivated  = "user.deactivated"
	EventUserDeleted      = "user.deleted"
	EventUserDisassociate = "user.disassociated"
)

// Event is a decoded webhook delivery envelope.
type Event struct {
	Event   string `json:"event"`
	EventTS int64  `json:"event_ts"`
	Payload struct {
		PlainToken string          `json:"plainToken"`
		AccountID  string          `json:"account_id"`
		Object     json.RawMessage `json:"object"`
	} `json:"payload"`
}

// ParseEvent decodes the envelope from a raw delivery body.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("webhook: decode event: %w", err)
	}
	if ev.Event == "" {
		return Event{}, fmt.Errorf("webhook: event field missing")
	}
	return ev, nil
}

// flexID tolerates the provider sending object ids as either JSON strings
// or numbers across event families.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", data)
	}
	*f = flexID(s)
	return nil
}

type meetingObject struct {
	ID       flexID `json:"id"`
	UUID     string `json:"uuid"`
	HostID   string `json:"host_id"`
	Topic    string `json:"topic"`
	Type     int    `json:"type"`
	Duration int    `json:"duration"`
	Timezone string `json:"timezone"`
	JoinURL  string `json:"join_url"`
}

type userObject struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
	Type        int    `json:"type"`
	Status      string `json:"status"`
	Department  string `json:"dept"`
	PMI         int64  `json:"pmi"`
	Timezone    string `json:"timezone"`
}

// Meeting extracts the meeting object carried by a meeting.* event. Fields
// absent from the payload come back zero-valued, which downstream merge
// semantics treat as "leave stored value alone".
func (ev Event) Meeting() (zoom.Meeting, error) {
	var obj meetingObject
	if err := json.Unmarshal(ev.Payload.Object, &obj); err != nil {
		return zoom.Meeting{}, fmt.Errorf("webhook: decode meeting object: %w", err)
	}
	if obj.ID == "" {
		return zoom.Meeting{}, fmt.Errorf("webhook: meeting object missing id")
	}
	return zoom.Meeting{
		MeetingID: string(obj.ID),
		UUID:      obj.UUID,
		HostID:    obj.HostID,
		Topic:     obj.Topic,
		Type:      obj.Type,
		Duration:  obj.Duration,
		Timezone:  obj.Timezone,
		JoinURL:   obj.JoinURL,
	}, nil
}

// User extracts the user object carried by a user.* event.
func (ev Event) User() (zoom.User, error) {
	var obj userObject
	if err := json.Unmarshal(ev.Payload.Object, &obj); err != nil {
		return zoom.User{}, fmt.Errorf("webhook: decode user object: %w", err)
	}
	if obj.ID == "" {
		return zoom.User{}, fmt.Errorf("webhook: user object missing id")
	}
	return zoom.User{
		ID:          obj.ID,
		Email:       obj.Email,
		FirstName:   obj.FirstName,
		LastName:    obj.LastName,
		DisplayName: obj.DisplayName,
		Type:        obj.Type,
		Status:      obj.Status,
		Department:  obj.Department,
		PMI:         obj.PMI,
		Timezone:    obj.Timezone,
	}, nil
}

// ObjectID returns the id of the entity the event refers to, or "" when the
// payload has no recognizable object.
func (ev Event) ObjectID() string {
	if len(ev.Payload.Object) == 0 {
		return ""
	}
	var probe struct {
		ID flexID `json:"id"`
	}
	if err := json.Unmarshal(ev.Payload.Object, &probe); err != nil {
		return ""
	}
	return string(probe.ID)
}

// Time returns the provider-side event timestamp. event_ts is milliseconds.
func (ev Event) Time() time.Time {
	if ev.EventTS == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ev.EventTS)
}
