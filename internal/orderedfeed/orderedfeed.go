// Package orderedfeed holds an in-memory feed kept sorted by an integer key.
//
// Feeds grow a page at a time from either end of an already sorted sequence,
// so every mutation is a binary search plus one slice shift instead of a re-sort.
package orderedfeed

import "slices"

// Feed is a sequence of items ordered by key with no duplicate keys.
// It is not safe for concurrent use.
type Feed[T any] struct {
	items      []T
	key        func(T) int64
	descending bool
}

// New creates an empty feed ordered by key. Descending puts the largest key first.
func New[T any](key func(T) int64, descending bool) *Feed[T] {
	return &Feed[T]{key: key, descending: descending}
}

// Len returns the number of items.
func (f *Feed[T]) Len() int {
	return len(f.items)
}

// Get returns the item at index i and whether i was in range.
func (f *Feed[T]) Get(i int) (T, bool) {
	if i < 0 || i >= len(f.items) {
		var zero T
		return zero, false
	}
	return f.items[i], true
}

// GetOrZero returns the item at index i, or the zero value when out of range.
func (f *Feed[T]) GetOrZero(i int) T {
	item, _ := f.Get(i)
	return item
}

// Items returns a copy of the items in order.
func (f *Feed[T]) Items() []T {
	return slices.Clone(f.items)
}

// Add inserts item at its ordered position and returns that index.
// An item whose key is already present replaces the existing one in place,
// and inserted is false.
func (f *Feed[T]) Add(item T) (index int, inserted bool) {
	if len(f.items) == 0 {
		f.items = append(f.items, item)
		return 0, true
	}
	i, found := f.search(f.key(item))
	if found {
		f.items[i] = item
		return i, false
	}
	f.items = slices.Insert(f.items, i, item)
	return i, true
}

// IndexOf returns the index of the item with key k, or -1.
func (f *Feed[T]) IndexOf(k int64) int {
	if len(f.items) == 0 {
		return -1
	}
	i, found := f.search(k)
	if !found {
		return -1
	}
	return i
}

// Remove deletes the item with the same key as item.
func (f *Feed[T]) Remove(item T) bool {
	return f.RemoveKey(f.key(item))
}

// RemoveKey deletes the item with key k.
func (f *Feed[T]) RemoveKey(k int64) bool {
	i := f.IndexOf(k)
	if i < 0 {
		return false
	}
	return f.RemoveAt(i)
}

// RemoveAt deletes the item at index i.
func (f *Feed[T]) RemoveAt(i int) bool {
	if i < 0 || i >= len(f.items) {
		return false
	}
	f.items = slices.Delete(f.items, i, i+1)
	return true
}

// Clear removes every item.
func (f *Feed[T]) Clear() {
	clear(f.items)
	f.items = f.items[:0]
}

// search returns the first index whose key does not sort before k,
// and whether that index holds k exactly.
func (f *Feed[T]) search(k int64) (int, bool) {
	lo, hi := 0, len(f.items)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if f.before(f.key(f.items[mid]), k) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(f.items) && f.key(f.items[lo]) == k
}

// before reports whether key a sorts ahead of key b.
func (f *Feed[T]) before(a, b int64) bool {
	if f.descending {
		return a > b
	}
	return a < b
}
