package core

import (
	"encoding/json"
	"fmt"
)

// Event channel names. These are fixed wire strings shared by every client
// build, so they must never change.
const (
	ChannelPinForEveryone = "PIN_FOR_EVERYONE"
	ChannelDisableMic     = "DISABLE_ATTENDEE_MIC"
	ChannelDisableVideo   = "DISABLE_ATTENDEE_VIDEO"
)

// Pin actions carried by PIN_FOR_EVERYONE payloads.
const (
	ActionPin   = "pin"
	ActionUnpin = "unpin"
)

// PinMessage is the PIN_FOR_EVERYONE payload. PinForAllUID is null on unpin.
type PinMessage struct {
	PinForAllUID *UID   `json:"pinForAllUid"`
	UIDType      string `json:"uidType"`
	Action       string `json:"action"`
}

// DecodePinMessage parses and validates a PIN_FOR_EVERYONE payload.
func DecodePinMessage(payload string) (PinMessage, error) {
	var msg PinMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return msg, coreError(ErrCodeBadPayload, fmt.Sprintf("parse pin payload: %v", err))
	}
	if msg.Action != ActionPin && msg.Action != ActionUnpin {
		return msg, coreError(ErrCodeUnknownAction, fmt.Sprintf("unknown pin action %q", msg.Action))
	}
	if msg.Action == ActionPin && msg.PinForAllUID == nil {
		return msg, coreError(ErrCodeMissingTarget, "pin action without pinForAllUid")
	}
	return msg, nil
}

// EncodePinMessage serializes a PIN_FOR_EVERYONE payload.
func EncodePinMessage(msg PinMessage) string {
	data, _ := json.Marshal(msg)
	return string(data)
}

// DecodeGatePayload parses a mic/video gate payload. The wire value is a bare
// JSON boolean; anything that parses to true disables the control, everything
// else re-enables it.
func DecodeGatePayload(payload string) (bool, error) {
	var disabled bool
	if err := json.Unmarshal([]byte(payload), &disabled); err != nil {
		return false, coreError(ErrCodeBadPayload, fmt.Sprintf("parse gate payload: %v", err))
	}
	return disabled, nil
}

// EncodeGatePayload serializes a gate payload.
func EncodeGatePayload(disabled bool) string {
	if disabled {
		return "true"
	}
	return "false"
}
