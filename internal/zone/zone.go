// Package zone implements target resolution (spec.md §4.11): mapping an
// object id (device, people/group, or zone id) to the device that should
// actually receive a request, with an LRU+TTL cache for repeat lookups.
// Grounded on the teacher's internal/dht routing-table/bucket idiom (a
// sharded, capacity-bounded lookup structure with a background resolve on
// miss) and built with hashicorp/golang-lru/v2 (taken from orbas1-Synnergy;
// it is not in the teacher's go.mod), generalized from "k-bucket of peers"
// to "TTL'd target resolution cache."
package zone

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
	"github.com/cyfs-core/bdt-ndn/internal/proto"
)

// OodWorkMode is a zone's OOD redundancy strategy (spec.md §3).
type OodWorkMode int

const (
	OodStandalone OodWorkMode = iota
	OodActiveStandby
)

// Zone mirrors spec.md §3: "(zone_id, owner_id, ood_list, ood_work_mode,
// device_list). Derived from the People/Group object."
type Zone struct {
	ZoneID     ids.ObjectId
	OwnerID    ids.ObjectId
	OodList    []ids.DeviceId
	WorkMode   OodWorkMode
	DeviceList []ids.DeviceId
}

func (z Zone) firstOOD() (ids.DeviceId, bool) {
	if len(z.OodList) == 0 {
		return ids.ObjectId{}, false
	}
	return z.OodList[0], true
}

// Device is the minimal device-object view resolution needs: who owns it.
type Device struct {
	DeviceID ids.DeviceId
	OwnerID  ids.ObjectId
}

// Directory is the read side of the zone/device catalog a Resolver
// consults. The stack wires MemDirectory, an in-memory map; a test double
// can be a plain map as well.
type Directory interface {
	GetDevice(ctx context.Context, id ids.ObjectId) (Device, bool, error)
	GetZoneByOwner(ctx context.Context, owner ids.ObjectId) (Zone, bool, error)
	GetZoneByID(ctx context.Context, id ids.ObjectId) (Zone, bool, error)
}

// Target is the result of resolve_target (spec.md §4.11).
type Target struct {
	IsCurrentZone bool
	TargetDevice  ids.DeviceId
	TargetOOD     ids.DeviceId
}

type cacheEntry struct {
	target   Target
	expireAt time.Time
}

// Resolver implements resolve_target with an LRU+TTL cache (spec.md §4.11
// "Results are cached in an LRU with a long TTL; a cache miss triggers one
// resolve").
type Resolver struct {
	localDevice ids.DeviceId
	localOwner  ids.ObjectId
	localOOD    ids.DeviceId
	dir         Directory
	cache       *lru.Cache[ids.ObjectId, cacheEntry]
	ttl         time.Duration
	now         func() time.Time
}

// NewResolver builds a Resolver for a device belonging to localOwner, whose
// zone's primary OOD is localOOD.
func NewResolver(localDevice, localOwner, localOOD ids.DeviceId, dir Directory) (*Resolver, error) {
	c, err := lru.New[ids.ObjectId, cacheEntry](proto.ZoneResolveCacheSize)
	if err != nil {
		return nil, cyfserr.Wrap(cyfserr.InvalidInput, err, "zone: building resolve cache")
	}
	return &Resolver{
		localDevice: localDevice,
		localOwner:  localOwner,
		localOOD:    localOOD,
		dir:         dir,
		cache:       c,
		ttl:         proto.ZoneResolveCacheTTL,
		now:         time.Now,
	}, nil
}

// Resolve resolves target into a Target (spec.md §4.11). A nil target id
// (None) resolves to the current device, is_current_zone=true. A target
// that is neither a known device nor a known people/group is looked up as
// a zone id through Directory.GetZoneByID (spec.md §4.11 "Custom: treat ID
// as a zone ID").
func (r *Resolver) Resolve(ctx context.Context, target *ids.ObjectId) (Target, error) {
	if target == nil {
		return Target{IsCurrentZone: true, TargetDevice: r.localDevice, TargetOOD: r.localOOD}, nil
	}
	if cached, ok := r.lookupCache(*target); ok {
		return cached, nil
	}
	result, err := r.resolveUncached(ctx, *target)
	if err != nil {
		return Target{}, err
	}
	r.cache.Add(*target, cacheEntry{target: result, expireAt: r.now().Add(r.ttl)})
	return result, nil
}

func (r *Resolver) lookupCache(id ids.ObjectId) (Target, bool) {
	entry, ok := r.cache.Get(id)
	if !ok {
		return Target{}, false
	}
	if r.now().After(entry.expireAt) {
		r.cache.Remove(id)
		return Target{}, false
	}
	return entry.target, true
}

func (r *Resolver) resolveUncached(ctx context.Context, target ids.ObjectId) (Target, error) {
	switch target.Type {
	case ids.ObjectTypeDevice:
		return r.resolveDevice(ctx, target)
	case ids.ObjectTypePeople, ids.ObjectTypeGroup:
		return r.resolveOwner(ctx, target)
	default:
		return r.resolveCustomZone(ctx, target)
	}
}

func (r *Resolver) resolveDevice(ctx context.Context, deviceID ids.ObjectId) (Target, error) {
	dev, ok, err := r.dir.GetDevice(ctx, deviceID)
	if err != nil {
		return Target{}, err
	}
	if !ok {
		return Target{}, cyfserr.Newf(cyfserr.NotFound, "zone: unknown device %s", deviceID)
	}
	if dev.OwnerID.Equals(r.localOwner) {
		return Target{IsCurrentZone: true, TargetDevice: deviceID, TargetOOD: r.localOOD}, nil
	}
	z, ok, err := r.dir.GetZoneByOwner(ctx, dev.OwnerID)
	if err != nil {
		return Target{}, err
	}
	if !ok {
		return Target{}, cyfserr.Newf(cyfserr.NotFound, "zone: no zone for owner %s", dev.OwnerID)
	}
	ood, ok := z.firstOOD()
	if !ok {
		return Target{}, cyfserr.Newf(cyfserr.NotFound, "zone: zone %s has no OOD", z.ZoneID)
	}
	return Target{IsCurrentZone: false, TargetDevice: deviceID, TargetOOD: ood}, nil
}

func (r *Resolver) resolveOwner(ctx context.Context, owner ids.ObjectId) (Target, error) {
	if owner.Equals(r.localOwner) {
		return Target{IsCurrentZone: true, TargetDevice: r.localDevice, TargetOOD: r.localOOD}, nil
	}
	z, ok, err := r.dir.GetZoneByOwner(ctx, owner)
	if err != nil {
		return Target{}, err
	}
	if !ok {
		return Target{}, cyfserr.Newf(cyfserr.NotFound, "zone: no zone for owner %s", owner)
	}
	ood, ok := z.firstOOD()
	if !ok {
		return Target{}, cyfserr.Newf(cyfserr.NotFound, "zone: zone %s has no OOD", z.ZoneID)
	}
	return Target{IsCurrentZone: false, TargetDevice: ood, TargetOOD: ood}, nil
}

func (r *Resolver) resolveCustomZone(ctx context.Context, zoneID ids.ObjectId) (Target, error) {
	z, ok, err := r.dir.GetZoneByID(ctx, zoneID)
	if err != nil {
		return Target{}, err
	}
	if !ok {
		return Target{}, cyfserr.Newf(cyfserr.NotFound, "zone: unknown zone %s", zoneID)
	}
	if z.OwnerID.Equals(r.localOwner) {
		return Target{IsCurrentZone: true, TargetDevice: r.localDevice, TargetOOD: r.localOOD}, nil
	}
	ood, ok := z.firstOOD()
	if !ok {
		return Target{}, cyfserr.Newf(cyfserr.NotFound, "zone: zone %s has no OOD", zoneID)
	}
	return Target{IsCurrentZone: false, TargetDevice: ood, TargetOOD: ood}, nil
}
