// Package table implements the open-addressed, string-keyed hash table of
// spec §4.D, used for string interning, globals, class methods, and instance
// fields. Keys are compared by pointer identity, which is sound because
// lang/value's strings are always interned before being used as a key.
package table

import "github.com/mna/clox/lang/value"

const maxLoad = 0.75

// Entry is one slot of the table. A tombstone is {Key: nil, Value:
// value.BoolValue(true)}; a true-empty slot is {Key: nil, Value:
// value.NilValue}.
type Entry struct {
	Key   *value.ObjString
	Value value.Value
}

// Table is described in spec §4.D: linear probing, load-factor ceiling 0.75,
// tombstone-aware deletion.
type Table struct {
	count    int // live entries + tombstones
	entries  []Entry
}

// New returns an empty table. The zero value is also ready to use.
func New() *Table { return &Table{} }

// Len reports the number of live (non-tombstone) entries. It is O(n) in the
// table's capacity since tombstones are not tracked separately from live
// entries in count; callers needing this on a hot path should avoid it.
func (t *Table) Len() int {
	n := 0
	for _, e := range t.entries {
		if e.Key != nil {
			n++
		}
	}
	return n
}

// findSlot returns the first matching slot for key, else the first
// tombstone passed over, else the first true-empty slot — per spec §4.D.
func findSlot(entries []Entry, key *value.ObjString) int {
	capacity := uint32(len(entries))
	index := key.Hash % capacity
	var tombstone = -1
	for {
		e := &entries[index]
		if e.Key == nil {
			if e.Value.IsNil() {
				// true empty slot
				if tombstone != -1 {
					return tombstone
				}
				return int(index)
			}
			// tombstone
			if tombstone == -1 {
				tombstone = int(index)
			}
		} else if e.Key == key {
			return int(index)
		}
		index = (index + 1) % capacity
	}
}

func (t *Table) adjustCapacity(newCap int) {
	entries := make([]Entry, newCap)
	for i := range entries {
		entries[i].Value = value.NilValue
	}

	t.count = 0
	for _, e := range t.entries {
		if e.Key == nil {
			continue
		}
		idx := findSlot(entries, e.Key)
		entries[idx].Key = e.Key
		entries[idx].Value = e.Value
		t.count++
	}
	t.entries = entries
}

// Get looks up key, returning its value and whether it was found.
func (t *Table) Get(key *value.ObjString) (value.Value, bool) {
	if t.count == 0 {
		return value.NilValue, false
	}
	idx := findSlot(t.entries, key)
	e := &t.entries[idx]
	if e.Key == nil {
		return value.NilValue, false
	}
	return e.Value, true
}

// Set stores key -> v, growing the table first if needed. It reports
// whether this inserted a brand-new key (as opposed to overwriting one).
func (t *Table) Set(key *value.ObjString, v value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*maxLoad {
		newCap := growCapacity(len(t.entries))
		t.adjustCapacity(newCap)
	}

	idx := findSlot(t.entries, key)
	e := &t.entries[idx]
	isNewKey := e.Key == nil
	// A fresh (non-tombstone) insertion counts toward the load factor; reusing
	// a tombstone slot does not increase count, since the tombstone was
	// already counted.
	if isNewKey && e.Value.IsNil() {
		t.count++
	}
	e.Key = key
	e.Value = v
	return isNewKey
}

// Delete removes key, leaving a tombstone in its place so later probes for
// other keys that hashed past it still succeed.
func (t *Table) Delete(key *value.ObjString) bool {
	if t.count == 0 {
		return false
	}
	idx := findSlot(t.entries, key)
	e := &t.entries[idx]
	if e.Key == nil {
		return false
	}
	e.Key = nil
	e.Value = value.BoolValue(true)
	return true
}

// AddAll copies every live entry of src into dst.
func AddAll(src, dst *Table) {
	for _, e := range src.entries {
		if e.Key != nil {
			dst.Set(e.Key, e.Value)
		}
	}
}

// FindByBytes is the unique operation used during string interning (spec
// §4.D): it walks the probe sequence comparing length+hash+bytes, excluding
// tombstones, stopping at a true empty slot. It returns nil if no interned
// string with these exact bytes exists yet.
func (t *Table) FindByBytes(chars string, hash uint32) *value.ObjString {
	if t.count == 0 || len(t.entries) == 0 {
		return nil
	}
	capacity := uint32(len(t.entries))
	index := hash % capacity
	for {
		e := &t.entries[index]
		if e.Key == nil {
			if e.Value.IsNil() {
				return nil
			}
			// tombstone: keep probing
		} else if e.Key.Hash == hash && e.Key.Chars == chars {
			return e.Key
		}
		index = (index + 1) % capacity
	}
}

// RemoveUnmarked is a GC hook (spec §4.I phase 3): drop every entry whose
// key is unmarked. Used on the interning table before sweep so dangling
// interned keys are never observed.
func (t *Table) RemoveUnmarked() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Key != nil && !value.Header(e.Key).Marked {
			e.Key = nil
			e.Value = value.BoolValue(true)
		}
	}
}

// Each calls fn for every live entry, for GC root marking (spec §4.I phase
// 1) and for iteration needs elsewhere.
func (t *Table) Each(fn func(key *value.ObjString, v value.Value)) {
	for _, e := range t.entries {
		if e.Key != nil {
			fn(e.Key, e.Value)
		}
	}
}

func growCapacity(cap int) int {
	if cap < 8 {
		return 8
	}
	return cap * 2
}
