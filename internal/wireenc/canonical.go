// Package wireenc provides the canonical CBOR encoding used for ObjectMap
// nodes and router-handler fingerprints, adapted
// from the teacher's pkg/codec/cborcanon (same deterministic-encoding need:
// two semantically-equal values must produce byte-identical encodings so
// content hashes and replace-in-place comparisons are stable).
package wireenc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// canonicalMode is fxamacker/cbor's canonical encode mode (RFC 7049
// canonical CBOR): deterministic key ordering, floats in their shortest
// exact form, and no indefinite-length encodings.
var canonicalMode cbor.EncMode

func init() {
	var err error
	canonicalMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wireenc: failed to build canonical CBOR mode: %v", err))
	}
}

// Marshal encodes v into canonical CBOR.
func Marshal(v interface{}) ([]byte, error) {
	return canonicalMode.Marshal(v)
}

// Unmarshal decodes canonical CBOR data into v.
func Unmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}

// MustMarshal is Marshal for call sites that have already validated v is
// encodable (e.g. well-known internal structs) and want to fail loudly on
// a programming error rather than thread an err return through.
func MustMarshal(v interface{}) []byte {
	data, err := Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("wireenc: marshal failed: %v", err))
	}
	return data
}

// Fingerprint returns a short, stable digest of v's canonical encoding,
// used by the router registry to detect whether a re-registered handler's
// fields actually changed (spec.md §9 open question).
func Fingerprint(v interface{}) ([32]byte, error) {
	data, err := Marshal(v)
	if err != nil {
		return [32]byte{}, err
	}
	return sum256(data), nil
}
