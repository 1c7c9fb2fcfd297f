// Package bitmap converts coverage sets to and from the compact byte
// representation stored in the asset_coverage_bitmap BLOB column.
//
// The wire format is the standard portable roaring serialization, so
// blobs written here can be read by any roaring implementation.
package bitmap

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"
)

// ToBytes serializes the set into its portable byte form.
func ToBytes(rb *roaring.Bitmap) ([]byte, error) {
	b, err := rb.ToBytes()
	if err != nil {
		return nil, errors.Wrap(err, "serialize bitmap")
	}
	return b, nil
}

// FromBytes deserializes bytes previously produced by ToBytes.
func FromBytes(b []byte) (*roaring.Bitmap, error) {
	rb := roaring.New()
	if err := rb.UnmarshalBinary(b); err != nil {
		return nil, errors.Wrap(err, "deserialize bitmap")
	}
	return rb, nil
}

// EmptyBytes returns the serialized form of the empty set. It is
// non-empty and deterministic, so freshly materialized coverage rows
// compare equal byte-for-byte.
func EmptyBytes() []byte {
	b, err := roaring.New().ToBytes()
	if err != nil {
		// Serializing into an in-memory buffer cannot fail.
		panic(err)
	}
	return b
}
