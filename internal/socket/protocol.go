package socket

import "encoding/json"

// Client-to-server message types.
const (
	msgAuth       = "auth"
	msgSub        = "sub"
	msgUnsub      = "unsub"
	msgDisconnect = "disconnect"
)

// Server-to-client message types. Channel traffic is re-emitted keyed by the
// originating notification's message type instead of a fixed envelope type.
const (
	msgAuthenticated = "authenticated"
	msgSubResponse   = "subResponse"
	msgSubError      = "subError"
)

type clientMessage struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	ChannelID string `json:"channelID,omitempty"`
	// ChannelType qualifies sub requests (ORG or EVENT). Optional; when
	// present it must agree with the channel the id resolves to.
	ChannelType string `json:"channelType,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type serverMessage struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channelID,omitempty"`
	Error     *wireError      `json:"error,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
