package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"attendledger/internal/store"
)

// Collection is the store collection holding registered devices.
const Collection = "devices"

// Device is a client allowed to record attendance events.
type Device struct {
	ID           string `json:"id"`
	RegisteredAt string `json:"registeredAt"`
}

// Registry persists devices in the collection store. Registrations go
// through one mutex since the store only supports whole-collection
// writes.
type Registry struct {
	store store.Store
	mu    sync.Mutex
}

// NewRegistry creates a registry over the given store.
func NewRegistry(st store.Store) *Registry {
	return &Registry{store: st}
}

// Register records the device if it is not already known. Idempotent.
func (r *Registry) Register(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.store.Read(ctx, Collection)
	if err != nil {
		return fmt.Errorf("read devices: %w", err)
	}
	for _, raw := range records {
		var d Device
		if json.Unmarshal(raw, &d) == nil && d.ID == deviceID {
			return nil
		}
	}
	body, err := json.Marshal(Device{
		ID:           deviceID,
		RegisteredAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := r.store.Write(ctx, Collection, append(records, body)); err != nil {
		return fmt.Errorf("write devices: %w", err)
	}
	return nil
}

// List returns all registered devices.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	records, err := r.store.Read(ctx, Collection)
	if err != nil {
		return nil, fmt.Errorf("read devices: %w", err)
	}
	devices := make([]Device, 0, len(records))
	for _, raw := range records {
		var d Device
		if json.Unmarshal(raw, &d) == nil {
			devices = append(devices, d)
		}
	}
	return devices, nil
}
