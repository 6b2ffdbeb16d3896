package acl

import (
	"testing"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

func testDec(tag string) ids.ObjectId {
	return ids.NewObjectId(ids.ObjectTypeUser, []byte(tag))
}

// TestSpecifiedOverridesDefaultAtSamePath reproduces spec.md §8's ACL
// path-prefix scenario: a Default(Others=None) rule and a
// Specified(dec=X, Read) rule share a path. X is granted read because the
// Specified rule is consulted first; a different dec falls through to the
// Default rule and is denied.
func TestSpecifiedOverridesDefaultAtSamePath(t *testing.T) {
	owner := testDec("owner")
	x := testDec("x")
	y := testDec("y")

	l := NewList()
	l.Add(Item{Path: "/d/a", Default: accessPtr(NewAccessString(map[Group]Permission{
		GroupOthersDec: 0,
	}))})
	l.Add(Item{Path: "/d/a", Specified: &SpecifiedRule{Dec: &x, Access: PermRead}})

	if err := l.Check(owner, "/d/a/c", Source{Dec: x}, PermRead); err != nil {
		t.Fatalf("expected dec=X to be allowed read, got %v", err)
	}
	if err := l.Check(owner, "/d/a/c", Source{Dec: y}, PermRead); err == nil {
		t.Fatal("expected dec=Y to be denied by the default rule")
	} else if cyfserr.KindOf(err) != cyfserr.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestNoMatchingRuleDeniesByDefault(t *testing.T) {
	l := NewList()
	owner := testDec("owner")
	if err := l.Check(owner, "/nowhere", Source{Dec: owner}, PermRead); err == nil {
		t.Fatal("expected deny when no rule's path prefix matches")
	}
}

func TestOwnerGroupGrantedReadWrite(t *testing.T) {
	owner := testDec("owner")
	l := NewList()
	// The owner sits in the current zone, so both the Owner and the
	// CurrentZone groups apply to it and both must grant read+write.
	l.Add(Item{Path: "/", Default: accessPtr(NewAccessString(map[Group]Permission{
		GroupOwner:       PermRead | PermWrite,
		GroupCurrentZone: PermRead | PermWrite,
		GroupOthersDec:   0,
	}))})
	src := Source{IsOwner: true, IsCurrentZone: true, Dec: owner}
	if err := l.Check(owner, "/x", src, PermRead|PermWrite); err != nil {
		t.Fatalf("expected owner to be granted read+write, got %v", err)
	}
}

func TestGroupMaskRequiresAllApplicableGroupsGranted(t *testing.T) {
	owner := testDec("owner")
	other := testDec("other")
	l := NewList()
	// CurrentZone is granted Read, but OthersZone (the actual applicable
	// group for a non-current-zone, non-owner, different-dec source) is
	// not granted anything: the request must be denied even though some
	// unrelated group in the same AccessString has the bit set.
	l.Add(Item{Path: "/", Default: accessPtr(NewAccessString(map[Group]Permission{
		GroupCurrentZone: PermRead,
	}))})
	src := Source{IsCurrentZone: false, Dec: other}
	if err := l.Check(owner, "/x", src, PermRead); err == nil {
		t.Fatal("expected deny: granted group does not apply to this source")
	}
}

func TestZoneCategoryPredicate(t *testing.T) {
	owner := testDec("owner")
	requester := testDec("requester")
	l := NewList()
	l.Add(Item{Path: "/", Specified: &SpecifiedRule{ZoneCategory: "current", Access: PermRead}})
	if err := l.Check(owner, "/x", Source{IsCurrentZone: true, Dec: requester}, PermRead); err != nil {
		t.Fatalf("expected current-zone requester allowed, got %v", err)
	}
	if err := l.Check(owner, "/x", Source{IsCurrentZone: false, Dec: requester}, PermRead); err == nil {
		t.Fatal("expected others-zone requester denied (no fallback rule)")
	}
}

func TestAddReplacesEqualItemAndSortsByPath(t *testing.T) {
	l := NewList()
	l.Add(Item{Path: "/b", Default: accessPtr(AccessString(0))})
	l.Add(Item{Path: "/a", Default: accessPtr(AccessString(0))})
	l.Add(Item{Path: "/b", Default: accessPtr(AccessString(1))}) // replaces

	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.items) != 2 {
		t.Fatalf("expected 2 items after replace, got %d", len(l.items))
	}
	if l.items[0].Path != "/a/" || l.items[1].Path != "/b/" {
		t.Fatalf("expected sorted [/a/ /b/], got %v", l.items)
	}
	if *l.items[1].Default != 1 {
		t.Fatal("expected the second /b item to have replaced the first")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	dec := testDec("dec")
	l := NewList()
	l.Add(Item{Path: "/p", Default: accessPtr(NewAccessString(map[Group]Permission{GroupOwner: PermRead}))})
	l.Add(Item{Path: "/p", Specified: &SpecifiedRule{Dec: &dec, Access: PermRead | PermCall}})

	data, err := l.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	restored := NewList()
	if err := restored.UnmarshalJSON(data); err != nil {
		t.Fatal(err)
	}
	if err := restored.Check(dec, "/p/x", Source{Dec: dec}, PermRead|PermCall); err != nil {
		t.Fatalf("expected restored list to grant via specified rule, got %v", err)
	}
}

func accessPtr(a AccessString) *AccessString { return &a }
