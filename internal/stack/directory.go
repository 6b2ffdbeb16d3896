package stack

import (
	"context"
	"sync"

	"github.com/cyfs-core/bdt-ndn/internal/ids"
	"github.com/cyfs-core/bdt-ndn/internal/zone"
)

// MemDirectory is the default in-process zone.Directory: a mutex-guarded
// map populated by whatever layer discovers devices/zones (config load, a
// future NOC sync). Grounded on zone.go's own Directory contract; kept
// here rather than in package zone so zone stays free of any particular
// backing choice.
type MemDirectory struct {
	mu     sync.RWMutex
	device map[ids.ObjectId]zone.Device
	byID   map[ids.ObjectId]zone.Zone
	byOwn  map[ids.ObjectId]zone.Zone
}

// NewMemDirectory returns an empty directory.
func NewMemDirectory() *MemDirectory {
	return &MemDirectory{
		device: make(map[ids.ObjectId]zone.Device),
		byID:   make(map[ids.ObjectId]zone.Zone),
		byOwn:  make(map[ids.ObjectId]zone.Zone),
	}
}

// RegisterDevice records a known device and the zone it belongs to.
func (d *MemDirectory) RegisterDevice(dev zone.Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.device[dev.DeviceID] = dev
}

// RegisterZone records a known zone, indexed by both its id and its owner.
func (d *MemDirectory) RegisterZone(z zone.Zone) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[z.ZoneID] = z
	d.byOwn[z.OwnerID] = z
}

func (d *MemDirectory) GetDevice(ctx context.Context, id ids.ObjectId) (zone.Device, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dev, ok := d.device[id]
	return dev, ok, nil
}

func (d *MemDirectory) GetZoneByOwner(ctx context.Context, owner ids.ObjectId) (zone.Zone, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	z, ok := d.byOwn[owner]
	return z, ok, nil
}

func (d *MemDirectory) GetZoneByID(ctx context.Context, id ids.ObjectId) (zone.Zone, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	z, ok := d.byID[id]
	return z, ok, nil
}
