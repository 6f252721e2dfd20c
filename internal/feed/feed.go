// Package feed reconciles a dashboard's local ride collection with the live
// change feed. The collection is ordered most recent first and a ride's
// position is fixed at first-seen; updates replace the record in place.
// Applying the same record twice is a no-op, so redelivered notifications
// never disturb the view.
package feed

import (
	"reflect"

	"github.com/example/keke-hail/internal/models"
)

type Outcome int

const (
	Unchanged Outcome = iota
	Added
	Updated
)

type Feed struct {
	rides []models.Ride
	index map[string]int
}

// New seeds a feed from an initial fetch, assumed newest-first.
func New(initial []models.Ride) *Feed {
	f := &Feed{
		rides: make([]models.Ride, len(initial)),
		index: make(map[string]int, len(initial)),
	}
	copy(f.rides, initial)
	for i, r := range f.rides {
		f.index[r.ID] = i
	}
	return f
}

// Apply reconciles one re-fetched ride into the collection.
func (f *Feed) Apply(r models.Ride) Outcome {
	if i, ok := f.index[r.ID]; ok {
		if reflect.DeepEqual(f.rides[i], r) {
			return Unchanged
		}
		f.rides[i] = r
		return Updated
	}
	f.rides = append([]models.Ride{r}, f.rides...)
	for id, i := range f.index {
		f.index[id] = i + 1
	}
	f.index[r.ID] = 0
	return Added
}

// Remove drops a ride from the collection, e.g. when it leaves the pending
// pool on a driver's pending view. Returns false if the id was not present.
func (f *Feed) Remove(id string) bool {
	i, ok := f.index[id]
	if !ok {
		return false
	}
	f.rides = append(f.rides[:i], f.rides[i+1:]...)
	delete(f.index, id)
	for rid, j := range f.index {
		if j > i {
			f.index[rid] = j - 1
		}
	}
	return true
}

func (f *Feed) Len() int { return len(f.rides) }

// Rides returns a copy of the collection in display order.
func (f *Feed) Rides() []models.Ride {
	out := make([]models.Ride, len(f.rides))
	copy(out, f.rides)
	return out
}
