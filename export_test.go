package lsmtail

// DeletedSlots counts trimmed and live file slots of a tailing iterator.
func DeletedSlots(it Iterator) (deleted, live int) {
	slots := it.(*dbIterator).iter.(interface{ DeletedSlots() (int, int) })
	return slots.DeletedSlots()
}
