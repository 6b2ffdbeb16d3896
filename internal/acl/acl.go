// Package acl implements the path-prefix access control list that gates
// every global-state and NDN operation (spec.md §4.10). Grounded on the
// teacher's internal/dht rate-limiter's sorted-rule, default-deny
// evaluation shape (a sorted rule list walked in order, first decisive
// match wins), generalized from rate-limiting to permission-masking.
package acl

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// Group is one of the five access groups an AccessString's bits are keyed
// by (spec.md §3). The declared order fixes each group's bit offset.
type Group int

const (
	GroupCurrentDevice Group = iota
	GroupCurrentZone
	GroupOthersZone
	GroupOthersDec
	GroupOwner
	groupCount
)

// Permission is a 3-bit {Read, Write, Call} set, spec.md §3.
type Permission uint8

const (
	PermRead  Permission = 1 << 0
	PermWrite Permission = 1 << 1
	PermCall  Permission = 1 << 2
	permMask  Permission = PermRead | PermWrite | PermCall
)

// AccessString is the 32-bit mask over groups × permissions (spec.md §3).
// Only 15 of the 32 bits are meaningful (5 groups × 3 bits); the type is
// kept at its full declared width for wire-format fidelity.
type AccessString uint32

// NewAccessString builds an AccessString from per-group grants.
func NewAccessString(grants map[Group]Permission) AccessString {
	var a AccessString
	for g, p := range grants {
		a |= AccessString(p&permMask) << (uint(g) * 3)
	}
	return a
}

// GroupPermission extracts the permission bits granted to g.
func (a AccessString) GroupPermission(g Group) Permission {
	return Permission((a >> (uint(g) * 3)) & AccessString(permMask))
}

// Source describes the requester's relationship to the resource being
// accessed, sufficient to determine which groups apply (spec.md §4.10
// "source.mask(dec, permissions)").
type Source struct {
	IsCurrentDevice bool
	IsCurrentZone   bool
	IsOwner         bool
	Dec             ids.ObjectId
}

// applicableGroups returns every group Source belongs to relative to
// resourceDec, in no particular order (all are checked).
func (s Source) applicableGroups(resourceDec ids.ObjectId) []Group {
	var groups []Group
	if s.IsOwner {
		groups = append(groups, GroupOwner)
	}
	if s.IsCurrentDevice {
		groups = append(groups, GroupCurrentDevice)
	}
	if s.IsCurrentZone {
		groups = append(groups, GroupCurrentZone)
	} else {
		groups = append(groups, GroupOthersZone)
	}
	if !s.Dec.Equals(resourceDec) {
		groups = append(groups, GroupOthersDec)
	}
	return groups
}

// mask builds the AccessString that a Default rule's access value must
// dominate (bit-for-bit) for every group the source belongs to, in order
// for the requested permissions to be granted (spec.md §4.10 step 2
// "Default: compute mask = source.mask(dec, permissions)").
func (s Source) mask(resourceDec ids.ObjectId, permissions Permission) AccessString {
	var m AccessString
	for _, g := range s.applicableGroups(resourceDec) {
		m |= AccessString(permissions&permMask) << (uint(g) * 3)
	}
	return m
}

// SpecifiedRule is the "Specified" access variant: grants permissions to
// requests matching an explicit predicate rather than a group (spec.md
// §3 "Specified({zone?, zone_category?, dec?, access_u8})").
type SpecifiedRule struct {
	Zone         *ids.ObjectId
	ZoneCategory string // "current" | "others" | "" (unset)
	Dec          *ids.ObjectId
	Access       Permission
}

func (r SpecifiedRule) matches(source Source) bool {
	if r.Zone != nil {
		return false // zone-id matching requires a zone resolver the ACL doesn't have; see zone.CurrentZoneACLSource
	}
	if r.ZoneCategory == "current" && !source.IsCurrentZone {
		return false
	}
	if r.ZoneCategory == "others" && source.IsCurrentZone {
		return false
	}
	if r.Dec != nil && !source.Dec.Equals(*r.Dec) {
		return false
	}
	return true
}

// Item is one rule in the list (spec.md §3 "GlobalStatePathAccessList").
// Exactly one of Default/Specified is set.
type Item struct {
	Path      string
	Default   *AccessString
	Specified *SpecifiedRule
}

func normalize(path string) string {
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path
}

// List is the sorted, append-only path-prefix access list (spec.md
// §4.10). Items are ordered by (path, Specified-before-Default) so a more
// specific predicate rule at the same path is always consulted before a
// path's catch-all Default rule (spec.md §8 test 3's intent: a Specified
// rule can allow what a same-path Default would otherwise deny).
type List struct {
	mu    sync.RWMutex
	items []Item
}

// NewList returns an empty list.
func NewList() *List { return &List{} }

func rank(it Item) int {
	if it.Specified != nil {
		return 0
	}
	return 1
}

func less(a, b Item) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	return rank(a) < rank(b)
}

// Add inserts item in sorted order, replacing an existing item with the
// same (path, rule) pair (spec.md §6.5 "append-only sorted insertion;
// binary search; replace on equal"). The access value granted is not part
// of the rule: re-adding a rule with a new access value replaces it.
func (l *List) Add(item Item) {
	item.Path = normalize(item.Path)
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.items {
		if sameRule(existing, item) {
			l.items[i] = item
			return
		}
	}
	i := sort.Search(len(l.items), func(i int) bool { return !less(l.items[i], item) })
	l.items = append(l.items, Item{})
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = item
}

// sameRule reports whether a and b are the same rule at the same path:
// both Default, or both Specified with the same predicate, whatever access
// value each grants.
func sameRule(a, b Item) bool {
	if a.Default != nil || b.Default != nil {
		return a.Path == b.Path && a.Default != nil && b.Default != nil
	}
	as, bs := *a.Specified, *b.Specified
	as.Access, bs.Access = 0, 0
	return equalItem(Item{Path: a.Path, Specified: &as}, Item{Path: b.Path, Specified: &bs})
}

func equalItem(a, b Item) bool {
	if a.Path != b.Path {
		return false
	}
	if (a.Default == nil) != (b.Default == nil) || (a.Specified == nil) != (b.Specified == nil) {
		return false
	}
	if a.Default != nil {
		return *a.Default == *b.Default
	}
	as, bs := *a.Specified, *b.Specified
	if as.ZoneCategory != bs.ZoneCategory || as.Access != bs.Access {
		return false
	}
	if (as.Dec == nil) != (bs.Dec == nil) {
		return false
	}
	if as.Dec != nil && !as.Dec.Equals(*bs.Dec) {
		return false
	}
	if (as.Zone == nil) != (bs.Zone == nil) {
		return false
	}
	if as.Zone != nil && !as.Zone.Equals(*bs.Zone) {
		return false
	}
	return true
}

// Remove deletes the item equal to item, if present, and returns it.
func (l *List) Remove(item Item) (Item, bool) {
	item.Path = normalize(item.Path)
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.items {
		if equalItem(existing, item) {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return existing, true
		}
	}
	return Item{}, false
}

// Check evaluates (dec, path, source, permissions) against the list
// (spec.md §4.10). A pure function of (list, request) — deterministic for
// a fixed list and request (spec.md §8 invariant 6).
func (l *List) Check(resourceDec ids.ObjectId, path string, source Source, permissions Permission) error {
	reqPath := normalize(path)
	l.mu.RLock()
	items := make([]Item, len(l.items))
	copy(items, l.items)
	l.mu.RUnlock()

	for _, item := range items {
		if !strings.HasPrefix(reqPath, item.Path) {
			continue
		}
		if item.Default != nil {
			mask := source.mask(resourceDec, permissions)
			if mask&*item.Default == mask {
				return nil
			}
			return cyfserr.Newf(cyfserr.PermissionDenied, "acl: denied by default rule at %q", item.Path)
		}
		// Specified.
		if !item.Specified.matches(source) {
			continue
		}
		if permissions&item.Specified.Access == permissions {
			return nil
		}
		return cyfserr.Newf(cyfserr.PermissionDenied, "acl: denied by specified rule at %q", item.Path)
	}
	return cyfserr.Newf(cyfserr.PermissionDenied, "acl: no matching rule for path %q", path)
}

// jsonItem/jsonList mirror Item/List for the JSON persistence format
// (spec.md §6.5 "ACL list serialized as JSON").
type jsonItem struct {
	Path         string        `json:"path"`
	DefaultMask  *AccessString `json:"default,omitempty"`
	SpecZone     *ids.ObjectId `json:"spec_zone,omitempty"`
	SpecZoneCat  string        `json:"spec_zone_category,omitempty"`
	SpecDec      *ids.ObjectId `json:"spec_dec,omitempty"`
	SpecAccess   Permission    `json:"spec_access,omitempty"`
	HasSpecified bool          `json:"has_specified,omitempty"`
}

// MarshalJSON serializes the list as a JSON array of items.
func (l *List) MarshalJSON() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]jsonItem, len(l.items))
	for i, it := range l.items {
		ji := jsonItem{Path: it.Path}
		if it.Default != nil {
			ji.DefaultMask = it.Default
		} else {
			ji.HasSpecified = true
			ji.SpecZone = it.Specified.Zone
			ji.SpecZoneCat = it.Specified.ZoneCategory
			ji.SpecDec = it.Specified.Dec
			ji.SpecAccess = it.Specified.Access
		}
		out[i] = ji
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the list from its JSON form.
func (l *List) UnmarshalJSON(data []byte) error {
	var in []jsonItem
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	items := make([]Item, len(in))
	for i, ji := range in {
		it := Item{Path: ji.Path}
		if ji.HasSpecified {
			it.Specified = &SpecifiedRule{Zone: ji.SpecZone, ZoneCategory: ji.SpecZoneCat, Dec: ji.SpecDec, Access: ji.SpecAccess}
		} else {
			it.Default = ji.DefaultMask
		}
		items[i] = it
	}
	l.mu.Lock()
	l.items = items
	l.mu.Unlock()
	return nil
}
