package tcp

import "math/bits"

// Descriptor is an opaque handle into a Table. Guests never see the values
// stored behind a Descriptor directly, only the handle itself.
type Descriptor uint32

const noParent Descriptor = ^Descriptor(0)

type tableEntry[Object any] struct {
	value     Object
	parent    Descriptor
	hasParent bool
}

// Table is a generic resource table mapping Descriptor to Object, following
// the same dense bitmask layout the host's descriptor table uses: a
// separate occupancy bitset keeps Len and iteration cheap without scanning
// for zero values, trading a little insertion-time bookkeeping for O(1)
// lookups.
//
// Table additionally supports push_child semantics: an object can be
// inserted with a record of which other descriptor it was derived from
// (e.g. a half-stream's descriptor records the socket it reads or writes).
// The parent link is bookkeeping only - it does not pin the parent's
// lifetime, since half-streams are specified to be able to outlive the
// socket they were created from.
type Table[Object any] struct {
	masks []uint64
	table []tableEntry[Object]
}

func (t *Table[Object]) Len() (n int) {
	for _, mask := range t.masks {
		n += bits.OnesCount64(mask)
	}
	return n
}

func (t *Table[Object]) grow(n int) {
	n = (n*64 + 63) / 64
	if n > len(t.masks) {
		masks := make([]uint64, n)
		copy(masks, t.masks)
		table := make([]tableEntry[Object], n*64)
		copy(table, t.table)
		t.masks = masks
		t.table = table
	}
}

func (t *Table[Object]) insert(object Object, parent Descriptor, hasParent bool) (desc Descriptor) {
	offset := 0
	for {
		for index, mask := range t.masks[offset:] {
			if ^mask != 0 {
				shift := bits.TrailingZeros64(^mask)
				index += offset
				desc = Descriptor(index)*64 + Descriptor(shift)
				t.table[desc] = tableEntry[Object]{value: object, parent: parent, hasParent: hasParent}
				t.masks[index] = mask | uint64(1<<shift)
				return desc
			}
		}
		offset = len(t.masks)
		n := 2 * len(t.masks)
		if n == 0 {
			n = 1
		}
		t.grow(n)
	}
}

// Push inserts object with no parent, returning the descriptor it is mapped
// to.
func (t *Table[Object]) Push(object Object) Descriptor {
	return t.insert(object, 0, false)
}

// PushChild inserts object recording parent as its provenance.
func (t *Table[Object]) PushChild(object Object, parent Descriptor) Descriptor {
	return t.insert(object, parent, true)
}

func (t *Table[Object]) occupied(desc Descriptor) bool {
	i := int(desc)
	if i < 0 || i >= len(t.table) {
		return false
	}
	index, shift := uint(desc)/64, uint(desc)%64
	return (t.masks[index] & (1 << shift)) != 0
}

// Get returns the object stored at desc.
func (t *Table[Object]) Get(desc Descriptor) (object Object, found bool) {
	if t.occupied(desc) {
		return t.table[desc].value, true
	}
	return object, false
}

// GetMut returns a pointer to the object stored at desc, or nil if desc is
// not occupied.
func (t *Table[Object]) GetMut(desc Descriptor) *Object {
	if t.occupied(desc) {
		return &t.table[desc].value
	}
	return nil
}

// Parent returns the descriptor object was pushed with via PushChild.
func (t *Table[Object]) Parent(desc Descriptor) (parent Descriptor, ok bool) {
	if t.occupied(desc) && t.table[desc].hasParent {
		return t.table[desc].parent, true
	}
	return 0, false
}

// Delete removes the object stored at desc, returning it.
func (t *Table[Object]) Delete(desc Descriptor) (object Object, found bool) {
	if !t.occupied(desc) {
		return object, false
	}
	index, shift := desc/64, desc%64
	object = t.table[desc].value
	var zero tableEntry[Object]
	t.table[desc] = zero
	t.masks[index] &= ^uint64(1 << shift)
	return object, true
}

// Range calls f for each descriptor and object in the table, stopping early
// if f returns false.
func (t *Table[Object]) Range(f func(Descriptor, Object) bool) {
	for i, mask := range t.masks {
		if mask == 0 {
			continue
		}
		for j := Descriptor(0); j < 64; j++ {
			if (mask & (1 << j)) == 0 {
				continue
			}
			desc := Descriptor(i)*64 + j
			if !f(desc, t.table[desc].value) {
				return
			}
		}
	}
}
