package wireenc

import "testing"

type sample struct {
	B int    `cbor:"b"`
	A string `cbor:"a"`
}

func TestMarshalDeterministic(t *testing.T) {
	v := sample{B: 2, A: "x"}
	a, err := Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatal("canonical encoding should be deterministic across calls")
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	v := sample{B: 7, A: "hello"}
	data, err := Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var out sample
	if err := Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out != v {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, v)
	}
}

func TestFingerprintStableUnderFieldOrder(t *testing.T) {
	fp1, err := Fingerprint(sample{A: "x", B: 1})
	if err != nil {
		t.Fatal(err)
	}
	fp2, err := Fingerprint(sample{B: 1, A: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if fp1 != fp2 {
		t.Fatal("fingerprint should be stable regardless of Go struct literal field order")
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	fp1, _ := Fingerprint(sample{A: "x", B: 1})
	fp2, _ := Fingerprint(sample{A: "y", B: 1})
	if fp1 == fp2 {
		t.Fatal("fingerprint should differ when content differs")
	}
}
