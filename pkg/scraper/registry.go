package scraper

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Constructor creates the vendor part of a scraper.
type Constructor func() Source

type registration struct {
	id     string
	vendor string
	ctor   Constructor
}

var (
	registrations = make(map[string]registration)
	mu            sync.RWMutex
)

// Register adds a vendor scraper to the global registry. Vendor packages call
// it from init; importing pkg/vendors/all registers every known vendor.
// id names the scraper, vendor namespaces its output directories. A second
// registration of the same id is ignored.
func Register(id, vendor string, ctor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registrations[id]; ok {
		return
	}
	if vendor == "" {
		vendor = id
	}
	registrations[id] = registration{
		id:     id,
		vendor: vendor,
		ctor:   ctor,
	}
}

// Registered returns the sorted ids of every registered scraper.
func Registered() []string {
	mu.RLock()
	ids := lo.Keys(registrations)
	mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func lookup(id string) (registration, bool) {
	mu.RLock()
	defer mu.RUnlock()
	reg, ok := registrations[id]
	return reg, ok
}
