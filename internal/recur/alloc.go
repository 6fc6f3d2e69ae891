package recur

import (
	"strconv"
	"time"

	"zoocal/internal/model"
)

// instanceAllocator hands out "<id>:<n>" ids for one definition's
// expansion, n counting the instances already produced, from 0.
type instanceAllocator struct {
	def  *model.EventDefinition
	next int
}

func newInstanceAllocator(def *model.EventDefinition) *instanceAllocator {
	return &instanceAllocator{def: def}
}

// allocate builds the next instance with the given concrete times.
func (a *instanceAllocator) allocate(start, end time.Time) model.EventInstance {
	inst := model.EventInstance{
		ID:         a.def.ID + ":" + strconv.Itoa(a.next),
		ParentID:   a.def.ID,
		StartDate:  start,
		EndDate:    end,
		AllDay:     a.def.AllDay,
		Recurrence: a.def.Recurrence,
		Attributes: a.def.Attributes,
	}
	a.next++
	return inst
}

// allocated returns how many ids have been handed out.
func (a *instanceAllocator) allocated() int {
	return a.next
}
