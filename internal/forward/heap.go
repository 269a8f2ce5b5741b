package forward

import (
	"github.com/kezhuw/lsmtail/internal/keys"
)

// slotHeap is a min heap of positioned immutable slots.
type slotHeap struct {
	cmp   keys.Comparer
	slots []*slot
}

func (h *slotHeap) Len() int { return len(h.slots) }
func (h *slotHeap) Less(i, j int) bool {
	return h.cmp.Compare(h.slots[i].key(), h.slots[j].key()) < 0
}
func (h *slotHeap) Swap(i, j int) { h.slots[i], h.slots[j] = h.slots[j], h.slots[i] }
func (h *slotHeap) Push(x interface{}) {
	h.slots = append(h.slots, x.(*slot))
}
func (h *slotHeap) Pop() interface{} {
	n := len(h.slots) - 1
	s := h.slots[n]
	h.slots[n] = nil
	h.slots = h.slots[:n]
	return s
}

func (h *slotHeap) top() *slot {
	return h.slots[0]
}

func (h *slotHeap) clear() {
	for i := range h.slots {
		h.slots[i] = nil
	}
	h.slots = h.slots[:0]
}
