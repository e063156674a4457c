package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/trigsync/internal/daq"
)

// Describe returns a human-readable summary of the engine: state, run,
// registered sources with their offsets, pool occupancy and drop counts.
func (e *Engine) Describe() string {
	var b strings.Builder

	fmt.Fprintf(&b, "run %d (%s) state=%s seq=%d\n", e.settings.RunNumber, e.runToken, e.state, e.seq.Current())
	fmt.Fprintf(&b, "pool depth=%d buffered=%d dropped=%d\n", e.pool.Depth(), e.pool.Len(), e.pool.DroppedTotal())

	ref, _ := e.reg.Reference()
	dropped := e.pool.DroppedBySource()
	for _, ent := range e.reg.Entries() {
		marker := " "
		if ent.Handle == ref {
			marker = "*"
		}
		live := "live"
		if !ent.Live {
			live = "drained"
		}
		offset := "-"
		if e.tracker.Frozen() {
			offset = fmt.Sprintf("%+d", e.tracker.Offset(ent.Handle))
		}
		fmt.Fprintf(&b, "%s[%d] %-16s %-8s %-8s offset=%s dropped=%d\n",
			marker, ent.Handle, ent.Name, ent.Category, live, offset, dropped[ent.Handle])
	}

	for _, c := range daq.Categories() {
		if n := e.pool.CategoryLen(c); n > 0 {
			fmt.Fprintf(&b, "category %-8s slots=%d\n", c, n)
		}
	}

	byID := e.pool.Dropped()
	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "packet %d dropped %d\n", id, byID[id])
	}

	return b.String()
}
