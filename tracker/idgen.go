package tracker

import "sync"

// IDGenerator is a struct to hold a counter for generating the next
// incremental feature id.  Ids are never reused, also after Reset of a
// tracker, so a single generator may be shared by several trackers
type IDGenerator struct {
	id int
	sync.Mutex
}

// NewIDGenerator returns a generator whose first id is 0
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{id: -1}
}

// GetNext returns the next incremental id
func (id *IDGenerator) GetNext() int {
	id.Lock()
	defer id.Unlock()
	id.id++
	return id.id
}

// Last returns the most recently issued id, -1 if none
func (id *IDGenerator) Last() int {
	id.Lock()
	defer id.Unlock()
	return id.id
}
