package perf

import (
	"testing"
	"time"
)

func TestBeginEndRequestRecordsSpend(t *testing.T) {
	p := New()
	tick := time.Unix(0, 0)
	p.now = func() time.Time { return tick }

	p.BeginRequest("get_object", "chunk-1")
	tick = tick.Add(50 * time.Millisecond)
	p.EndRequest("get_object", "chunk-1", "", 1024)

	snap := p.TakeData()
	items := snap.Requests["get_object"]
	if len(items) != 1 {
		t.Fatalf("expected 1 request item, got %d", len(items))
	}
	if items[0].SpendTime != 50*time.Millisecond {
		t.Fatalf("expected 50ms spend, got %v", items[0].SpendTime)
	}
	if items[0].Stat != 1024 {
		t.Fatalf("expected stat 1024, got %d", items[0].Stat)
	}
	if items[0].Err != "" {
		t.Fatalf("expected no error, got %q", items[0].Err)
	}
}

func TestEndRequestWithoutBeginHasZeroSpend(t *testing.T) {
	p := New()
	p.EndRequest("put_object", "x", "boom", 0)
	snap := p.TakeData()
	items := snap.Requests["put_object"]
	if len(items) != 1 || items[0].SpendTime != 0 || items[0].Err != "boom" {
		t.Fatalf("unexpected item: %+v", items)
	}
}

func TestAccAccumulates(t *testing.T) {
	p := New()
	p.Acc("bytes_in", 100)
	p.Acc("bytes_in", 50)
	snap := p.TakeData()
	a := snap.Accumulations["bytes_in"]
	if a.Count != 2 || a.Total != 150 {
		t.Fatalf("unexpected accumulation: %+v", a)
	}
}

func TestActionCounts(t *testing.T) {
	p := New()
	p.Action("cache_hit")
	p.Action("cache_hit")
	p.Action("cache_hit")
	snap := p.TakeData()
	if snap.Actions["cache_hit"].Count != 3 {
		t.Fatalf("expected 3, got %d", snap.Actions["cache_hit"].Count)
	}
}

func TestRecordAccumulatesPair(t *testing.T) {
	p := New()
	p.Record("chunks", 1, 4096)
	p.Record("chunks", 2, 8192)
	snap := p.TakeData()
	r := snap.Records["chunks"]
	if r.Total != 3 || r.TotalSize != 12288 {
		t.Fatalf("unexpected record: %+v", r)
	}
}

func TestTakeDataSwapsCleanly(t *testing.T) {
	p := New()
	p.Action("x")
	_ = p.TakeData()
	snap2 := p.TakeData()
	if len(snap2.Actions) != 0 {
		t.Fatalf("expected empty snapshot after swap, got %+v", snap2.Actions)
	}
}

func TestBeginRequestSurvivesSwapUntilEnded(t *testing.T) {
	p := New()
	p.BeginRequest("get_object", "in-flight")
	_ = p.TakeData()
	p.EndRequest("get_object", "in-flight", "", 1)
	snap := p.TakeData()
	if len(snap.Requests["get_object"]) != 1 {
		t.Fatalf("expected in-flight begin to still resolve after a swap")
	}
}
