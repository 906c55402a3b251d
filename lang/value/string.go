package value

import "hash/fnv"

// ObjString is the String heap object of spec §3: immutable, interned (equal
// bytes share one heap object so equality is pointer/identity comparison).
type ObjString struct {
	ObjHeader
	Chars string // Go strings are immutable, so the byte sequence is simply owned here
	Hash  uint32
}

var _ Object = (*ObjString)(nil)

func (s *ObjString) Kind() ObjKind { return ObjKindString }
func (s *ObjString) String() string { return s.Chars }
func (s *ObjString) Len() int       { return len(s.Chars) }

// HashBytes computes the FNV-1a hash used throughout for interning and table
// lookups, matching clox's hashString.
func HashBytes(b []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(b)
	return h.Sum32()
}

// HashString is HashBytes over a Go string, for the common case of hashing a
// literal already held as a string.
func HashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// NewString allocates a fresh, not-yet-interned ObjString. Callers that need
// interning (the compiler and VM, via their shared Heap.InternString) must
// route through the interning table instead of calling this directly.
func NewString(chars string) *ObjString {
	return &ObjString{Chars: chars, Hash: HashString(chars)}
}
