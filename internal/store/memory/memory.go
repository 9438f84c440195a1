// Package memory provides an in-memory Store used by tests and by the
// zero-configuration development mode. Nothing survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/fleetlink/fleetlink/internal/store"
)

type record struct {
	fingerprint string
	data        []byte
}

type blob struct {
	deviceID string
	data     []byte
}

type Store struct {
	mu          sync.Mutex
	devices     map[string][]byte
	deviceOrder []string
	docs        map[string]map[string][]byte
	records     map[string]map[store.Collection][]record
	blobs       map[string]blob
}

func New() *Store {
	return &Store{
		devices: make(map[string][]byte),
		docs:    make(map[string]map[string][]byte),
		records: make(map[string]map[store.Collection][]record),
		blobs:   make(map[string]blob),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) GetDevice(_ context.Context, deviceID string) (*store.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.devices[deviceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	var device store.Device
	if err := json.Unmarshal(data, &device); err != nil {
		return nil, fmt.Errorf("failed to decode device record: %w", err)
	}
	return &device, nil
}

func (s *Store) ListDevices(_ context.Context) ([]store.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices := make([]store.Device, 0, len(s.deviceOrder))
	for _, id := range s.deviceOrder {
		var device store.Device
		if err := json.Unmarshal(s.devices[id], &device); err != nil {
			return nil, fmt.Errorf("failed to decode device record: %w", err)
		}
		devices = append(devices, device)
	}
	return devices, nil
}

func (s *Store) PutDevice(_ context.Context, device *store.Device) error {
	data, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("failed to encode device record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[device.ID]; !ok {
		s.deviceOrder = append(s.deviceOrder, device.ID)
	}
	s.devices[device.ID] = data
	return nil
}

func (s *Store) DeleteDevice(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.devices, deviceID)
	delete(s.docs, deviceID)
	delete(s.records, deviceID)
	for i, id := range s.deviceOrder {
		if id == deviceID {
			s.deviceOrder = append(s.deviceOrder[:i], s.deviceOrder[i+1:]...)
			break
		}
	}
	for key, b := range s.blobs {
		if b.deviceID == deviceID {
			delete(s.blobs, key)
		}
	}
	return nil
}

func (s *Store) GetDoc(_ context.Context, deviceID, name string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.docs[deviceID][name]
	if !ok {
		return store.ErrNotFound
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", name, err)
	}
	return nil
}

func (s *Store) SetDoc(_ context.Context, deviceID, name string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docs[deviceID] == nil {
		s.docs[deviceID] = make(map[string][]byte)
	}
	s.docs[deviceID][name] = data
	return nil
}

func (s *Store) AppendRecord(_ context.Context, deviceID string, col store.Collection, fingerprint string, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[deviceID] == nil {
		s.records[deviceID] = make(map[store.Collection][]record)
	}
	for _, rec := range s.records[deviceID][col] {
		if rec.fingerprint == fingerprint {
			return store.ErrDuplicate
		}
	}
	s.records[deviceID][col] = append(s.records[deviceID][col], record{fingerprint: fingerprint, data: data})
	return nil
}

func (s *Store) FindRecord(_ context.Context, deviceID string, col store.Collection, fingerprint string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records[deviceID][col] {
		if rec.fingerprint == fingerprint {
			if out != nil {
				if err := json.Unmarshal(rec.data, out); err != nil {
					return false, fmt.Errorf("failed to decode record: %w", err)
				}
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) UpdateRecord(_ context.Context, deviceID string, col store.Collection, fingerprint string, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.records[deviceID][col]
	for i := range records {
		if records[i].fingerprint == fingerprint {
			records[i].data = data
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ListRecords(_ context.Context, deviceID string, col store.Collection, out any) error {
	s.mu.Lock()
	raw := make([]json.RawMessage, 0, len(s.records[deviceID][col]))
	for _, rec := range s.records[deviceID][col] {
		raw = append(raw, json.RawMessage(rec.data))
	}
	s.mu.Unlock()

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode record list: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode record list: %w", err)
	}
	return nil
}

func (s *Store) RemoveRecord(_ context.Context, deviceID string, col store.Collection, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.records[deviceID][col]
	for i := range records {
		if records[i].fingerprint == fingerprint {
			s.records[deviceID][col] = append(records[:i], records[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) SaveBlob(_ context.Context, deviceID, name string, data []byte) (string, error) {
	key := uuid.NewString()
	if name != "" {
		key = key + "-" + name
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	s.blobs[key] = blob{deviceID: deviceID, data: copied}
	return key, nil
}

func (s *Store) GetBlob(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blobs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}
