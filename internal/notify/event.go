// Package notify implements group-addressed, fire-and-forget delivery of
// events to connected clients.
package notify

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Event is a named payload that can be written to the wire.
type Event interface {
	EventName() string
	Encode(e *jx.Encoder)
}

// Marshal encodes ev into its wire envelope:
//
//	{"event":"<name>","data":{...}}
func Marshal(ev Event) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.Field("event", func(e *jx.Encoder) {
		e.Str(ev.EventName())
	})
	e.Field("data", ev.Encode)
	e.ObjEnd()

	// Bytes aliases the pooled buffer.
	return append([]byte(nil), e.Bytes()...)
}

// Action is a client request to change its group membership.
type Action string

const (
	ActionJoin  Action = "join"
	ActionLeave Action = "leave"
)

// legacyJoinAdmin is the bare event name older admin dashboards send to
// enter the admin group.
const legacyJoinAdmin = "join_admin_room"

// Frame is a decoded inbound control message.
type Frame struct {
	Action Action
	Group  string
}

// ErrBadFrame is returned for inbound messages that are not control frames.
var ErrBadFrame = errors.New("malformed frame")

// ParseFrame decodes an inbound client message. Accepted forms are
// {"action":"join","group":"admin"}, {"action":"leave","group":"admin"}
// and the legacy "join_admin_room", either bare or as a JSON string or
// {"event":"join_admin_room"}.
func ParseFrame(data []byte, adminGroup string) (Frame, error) {
	if string(data) == legacyJoinAdmin {
		return Frame{Action: ActionJoin, Group: adminGroup}, nil
	}

	d := jx.DecodeBytes(data)
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return Frame{}, errors.Wrap(ErrBadFrame, err.Error())
		}
		if s == legacyJoinAdmin {
			return Frame{Action: ActionJoin, Group: adminGroup}, nil
		}
		return Frame{}, ErrBadFrame
	case jx.Object:
	default:
		return Frame{}, ErrBadFrame
	}

	var f Frame
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "action":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "action")
			}
			f.Action = Action(s)
		case "group":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "group")
			}
			f.Group = s
		case "event":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "event")
			}
			if s == legacyJoinAdmin {
				f.Action = ActionJoin
				f.Group = adminGroup
			}
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return Frame{}, errors.Wrap(ErrBadFrame, err.Error())
	}

	switch f.Action {
	case ActionJoin, ActionLeave:
	default:
		return Frame{}, ErrBadFrame
	}
	if f.Group == "" {
		return Frame{}, ErrBadFrame
	}
	return f, nil
}

// ErrorFrame encodes a server-side rejection of a client frame.
func ErrorFrame(msg string) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.Field("event", func(e *jx.Encoder) { e.Str("error") })
	e.Field("data", func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		e.ObjEnd()
	})
	e.ObjEnd()
	return append([]byte(nil), e.Bytes()...)
}
