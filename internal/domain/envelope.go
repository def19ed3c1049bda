package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type EnvelopeType string

const (
	EnvelopeInvite    EnvelopeType = "invite"
	EnvelopeAccept    EnvelopeType = "accept"
	EnvelopeReject    EnvelopeType = "reject"
	EnvelopeEnd       EnvelopeType = "end"
	EnvelopeOffer     EnvelopeType = "offer"
	EnvelopeAnswer    EnvelopeType = "answer"
	EnvelopeCandidate EnvelopeType = "candidate"
	// EnvelopeRenegotiate asks the offering side for a fresh offer.
	EnvelopeRenegotiate EnvelopeType = "renegotiate"
)

func (t EnvelopeType) Valid() bool {
	switch t {
	case EnvelopeInvite, EnvelopeAccept, EnvelopeReject, EnvelopeEnd,
		EnvelopeOffer, EnvelopeAnswer, EnvelopeCandidate, EnvelopeRenegotiate:
		return true
	}
	return false
}

// Envelope is a signaling message routed by recipient. Payload is opaque to
// the relay and forwarded byte for byte.
type Envelope struct {
	Type    EnvelopeType    `json:"type" validate:"required,oneof=invite accept reject end offer answer candidate renegotiate"`
	CallID  CallID          `json:"call_id,omitempty" validate:"max=64"`
	From    UserID          `json:"from,omitempty"`
	To      UserID          `json:"to" validate:"required,max=64,nefield=From"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

type InvitePayload struct {
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

type RejectPayload struct {
	Reason RejectReason `json:"reason"`
}

// DescriptionPayload carries a session description for offer and answer.
type DescriptionPayload struct {
	SDPType string `json:"sdp_type"`
	SDP     string `json:"sdp"`
}

type CandidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index,omitempty"`
}

// NewEnvelope builds an envelope, encoding payload when it is non-nil.
func NewEnvelope(t EnvelopeType, id CallID, from, to UserID, payload any) (Envelope, error) {
	env := Envelope{
		Type:   t,
		CallID: id,
		From:   from,
		To:     to,
		SentAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrBadEnvelope, e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrBadEnvelope, e.Type, err)
	}
	return nil
}
