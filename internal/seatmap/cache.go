// Package seatmap caches, per room, the mapping from printed seat labels to
// the platform's internal seat ids so bookings can skip the seat search.
package seatmap

import (
	"strconv"
	"sync"
)

// Map is room id to seat label to seat id.
type Map map[int]map[string]int64

// Cache is read concurrently and written by a single refresher. Room maps are
// never mutated after publication; Merge swaps in a fresh copy.
type Cache struct {
	mu    sync.RWMutex
	rooms Map
}

// NewCache seeds empty maps for rooms and overlays initial.
func NewCache(rooms []int, initial Map) *Cache {
	c := &Cache{rooms: Map{}}
	for _, id := range rooms {
		c.rooms[id] = map[string]int64{}
	}
	for id, seats := range initial {
		c.Merge(id, seats)
	}
	return c
}

// Room returns the label map for room. The result must not be modified.
func (c *Cache) Room(room int) map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[room]
}

// Lookup returns the seat id for label in room.
func (c *Cache) Lookup(room int, label string) (string, bool) {
	id, ok := c.Room(room)[label]
	if !ok {
		return "", false
	}
	return strconv.FormatInt(id, 10), true
}

// LookupSeat is Lookup for a numeric seat label.
func (c *Cache) LookupSeat(room, seat int) (string, bool) {
	return c.Lookup(room, strconv.Itoa(seat))
}

// Merge adds or overwrites pairs in room; labels not in pairs are kept.
func (c *Cache) Merge(room int, pairs map[string]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.rooms[room]
	next := make(map[string]int64, len(old)+len(pairs))
	for k, v := range old {
		next[k] = v
	}
	for k, v := range pairs {
		next[k] = v
	}
	c.rooms[room] = next
}

// Snapshot returns the current room maps. Inner maps are shared and must not
// be modified.
func (c *Cache) Snapshot() Map {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(Map, len(c.rooms))
	for k, v := range c.rooms {
		out[k] = v
	}
	return out
}
