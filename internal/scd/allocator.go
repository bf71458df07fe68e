package scd

// KeyAllocator hands out surrogate keys for one batch run. It is seeded once from the
// largest key in the snapshot and only moves forward.
type KeyAllocator struct {
	next int64
}

// NewKeyAllocator returns an allocator whose first key is existingMax+1 (1 for an empty
// dimension, where existingMax is 0).
func NewKeyAllocator(existingMax int64) *KeyAllocator {
	if existingMax < 0 {
		existingMax = 0
	}

	return &KeyAllocator{next: existingMax + 1}
}

// Next returns an unused surrogate key.
func (a *KeyAllocator) Next() int64 {
	key := a.next
	a.next++

	return key
}

// Peek returns the key the next call to Next will hand out.
func (a *KeyAllocator) Peek() int64 {
	return a.next
}

// MaxSurrogateKey returns the largest surrogate key in records, or 0 when empty.
func MaxSurrogateKey(records []Record) int64 {
	var highest int64

	for _, r := range records {
		if r.SurrogateKey > highest {
			highest = r.SurrogateKey
		}
	}

	return highest
}
