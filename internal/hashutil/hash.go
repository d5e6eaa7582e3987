// Package hashutil defines the context-hash alphabet shared by the
// Block/Slice Tree, the Environment Store, and the Environment Context:
// 64-character lowercase hex hashes plus the two opaque sentinels
// ZeroHash and MainContextHash.
package hashutil

import (
	"encoding/hex"
	"strings"
)

// Len is the length in characters of a well-formed block/slice hash.
const Len = 64

// ZeroHash is the sentinel parent hash of a genesis block.
var ZeroHash = strings.Repeat("0", Len)

// MainContextHash is the reserved literal addressing the flat,
// consolidated view of confirmed state. It can never collide with a
// real hash because it isn't hex and isn't 64 characters long.
const MainContextHash = "main_context"

// Valid reports whether h is one of the three shapes consumers must
// accept: a 64-hex hash, ZeroHash, or MainContextHash.
func Valid(h string) bool {
	if h == MainContextHash {
		return true
	}
	return IsHex(h)
}

// IsHex reports whether h is a syntactically well-formed 64-character
// lowercase hex hash (this also matches ZeroHash).
func IsHex(h string) bool {
	if len(h) != Len {
		return false
	}
	if strings.ToLower(h) != h {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil
}

// IsSentinel reports whether h is one of the two non-block/slice
// sentinels.
func IsSentinel(h string) bool {
	return h == ZeroHash || h == MainContextHash
}
