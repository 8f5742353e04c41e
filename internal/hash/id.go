package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of the given string.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}

// BlockID derives a custom data-block ID from a block name. The hash
// is folded into the positive int64 range and bumped past the
// trajectory range so it can never collide with a reserved ID.
func BlockID(name string) int64 {
	const firstCustom = 20000

	id := int64(ID(name) & 0x7fffffffffffffff) //nolint:gosec
	if id < firstCustom {
		id += firstCustom
	}

	return id
}
