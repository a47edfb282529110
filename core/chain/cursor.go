package chain

import (
	"encoding/base64"

	"github.com/fxamacker/cbor/v2"
)

// Cursor is the opaque resume token carried by clients: the last delivered
// block plus the finalized head known at that moment. Two cursors are equal
// iff both pairs are equal.
type Cursor struct {
	Last      HashAndHeight
	Finalized HashAndHeight
}

// wireCursor is the CBOR-serializable shape. A separate type (rather than
// tagging Cursor directly) keeps the wire encoding decoupled from any future
// change to Cursor's Go-side shape.
type wireCursor struct {
	LastHeight uint64 `cbor:"1,keyasint"`
	LastHash   string `cbor:"2,keyasint"`
	FinHeight  uint64 `cbor:"3,keyasint"`
	FinHash    string `cbor:"4,keyasint"`
}

var cborEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(err) // fixed, compile-time-known options; cannot fail at runtime
	}
	return mode
}()

// Emit serializes a Cursor to its opaque, RPC-field-safe string form: CBOR,
// then base64url without padding.
func Emit(c Cursor) string {
	w := wireCursor{
		LastHeight: c.Last.Height,
		LastHash:   c.Last.Hash,
		FinHeight:  c.Finalized.Height,
		FinHash:    c.Finalized.Hash,
	}
	data, err := cborEncMode.Marshal(w)
	if err != nil {
		// w is a fixed, entirely scalar struct; Marshal cannot fail for it.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// Parse decodes a Cursor previously produced by Emit. Any other input
// (malformed base64, malformed CBOR, or a well-formed CBOR value of the
// wrong shape) is an InvalidInput error naming the "cursor" field.
func Parse(token string) (Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, NewInvalidInput("cursor", token)
	}
	var w wireCursor
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Cursor{}, NewInvalidInput("cursor", token)
	}
	return Cursor{
		Last:      HashAndHeight{Height: w.LastHeight, Hash: w.LastHash},
		Finalized: HashAndHeight{Height: w.FinHeight, Hash: w.FinHash},
	}, nil
}
