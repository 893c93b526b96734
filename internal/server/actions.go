package server

import (
	"encoding/json"
)

// ActionKind tags an inbound client frame. The envelope key is "action";
// the legacy "type" key used by older clients is not supported.
type ActionKind string

const (
	ActionComment            ActionKind = "comment"
	ActionLike               ActionKind = "like"
	ActionUnlike             ActionKind = "unlike"
	ActionMessage            ActionKind = "message"
	ActionTyping             ActionKind = "typing"
	ActionMarkRead           ActionKind = "mark_read"
	ActionRequestStatus      ActionKind = "request_status"
	ActionCallInitiate       ActionKind = "call_initiate"
	ActionCallAccept         ActionKind = "call_accept"
	ActionCallReject         ActionKind = "call_reject"
	ActionCallEnd            ActionKind = "call_end"
	ActionWebRTCOffer        ActionKind = "webrtc_offer"
	ActionWebRTCAnswer       ActionKind = "webrtc_answer"
	ActionWebRTCIceCandidate ActionKind = "webrtc_ice_candidate"
)

// ClientAction is one inbound frame. Field presence depends on the action
// tag; WebRTC payloads are kept raw so they are forwarded verbatim.
type ClientAction struct {
	Action         ActionKind      `json:"action"`
	Content        string          `json:"content,omitempty"`
	Message        string          `json:"message,omitempty"`
	IsTyping       bool            `json:"is_typing,omitempty"`
	MessageIds     []string        `json:"message_ids,omitempty"`
	NotificationId string          `json:"notification_id,omitempty"`
	CallType       string          `json:"call_type,omitempty"`
	CallId         string          `json:"call_id,omitempty"`
	Offer          json.RawMessage `json:"offer,omitempty"`
	Answer         json.RawMessage `json:"answer,omitempty"`
	Candidate      json.RawMessage `json:"candidate,omitempty"`

	session *Session
}

func parseClientAction(raw []byte) (*ClientAction, error) {
	var act ClientAction
	if err := json.Unmarshal(raw, &act); err != nil {
		return nil, err
	}

	return &act, nil
}
