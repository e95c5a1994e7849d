package webhook

import (
	"testing"
)

func TestParseEventMeetingNumericID(t *testing.T) {
	body := []byte(`{
		"event": "meeting.updated",
		"event_ts": 1700000000123,
		"payload": {"account_id": "acc-1", "object": {"id": 81234567890, "topic": "retro"}}
	}`)
	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Event != EventMeetingUpdated {
		t.Errorf("Event = %q", ev.Event)
	}
	if ev.Time().UnixMilli() != 1700000000123 {
		t.Errorf("Time = %v", ev.Time())
	}
	m, err := ev.Meeting()
	if err != nil {
		t.Fatalf("Meeting: %v", err)
	}
	if m.MeetingID != "81234567890" || m.Topic != "retro" {
		t.Errorf("meeting = %+v", m)
	}
	if ev.ObjectID() != "81234567890" {
		t.Errorf("ObjectID = %q", ev.ObjectID())
	}
}

func TestParseEventMeetingStringID(t *testing.T) {
	body := []byte(`{"event":"meeting.deleted","payload":{"object":{"id":"8123","host_id":"u1"}}}`)
	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	m, err := ev.Meeting()
	if err != nil {
		t.Fatalf("Meeting: %v", err)
	}
	if m.MeetingID != "8123" || m.HostID != "u1" {
		t.Errorf("meeting = %+v", m)
	}
}

func TestParseEventUser(t *testing.T) {
	body := []byte(`{"event":"user.updated","payload":{"object":{"id":"u1","email":"a@example.com","dept":"eng"}}}`)
	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	u, err := ev.User()
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if u.ID != "u1" || u.Email != "a@example.com" || u.Department != "eng" {
		t.Errorf("user = %+v", u)
	}
	// Fields the delta did not carry stay zero for merge semantics.
	if u.Status != "" || u.Type != 0 {
		t.Errorf("unexpected non-zero fields: %+v", u)
	}
}

func TestParseEventValidationChallenge(t *testing.T) {
	body := []byte(`{"event":"endpoint.url_validation","payload":{"plainToken":"tok-1"}}`)
	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Event != EventURLValidation {
		t.Errorf("Event = %q", ev.Event)
	}
	if ev.Payload.PlainToken != "tok-1" {
		t.Errorf("PlainToken = %q", ev.Payload.PlainToken)
	}
}

func TestParseEventRejectsGarbage(t *testing.T) {
	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Error("garbage accepted")
	}
	if _, err := ParseEvent([]byte(`{"payload":{}}`)); err == nil {
		t.Error("missing event field accepted")
	}
}

func TestMeetingObjectMissingID(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"event":"meeting.updated","payload":{"object":{"topic":"x"}}}`))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if _, err := ev.Meeting(); err == nil {
		t.Error("meeting without id accepted")
	}
}
