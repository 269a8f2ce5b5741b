package batch

// Group merges concurrent writes into one batch. Writes that refuse to
// stall are never grouped with writes that may stall.
type Group struct {
	NoSlowdown bool
	Batch      *Batch

	replys []chan error
	first  Batch
	fixed  Batch

	pendingNoSlowdown bool
	pendingBatch      []byte
	pendingReplyc     chan error

	batchSize    int
	maxBatchSize int
}

func (g *Group) Empty() bool {
	return len(g.replys) == 0
}

// Len returns number of grouped writes.
func (g *Group) Len() int {
	return len(g.replys)
}

func (g *Group) setFirst(noSlowdown bool, batch []byte, replyc chan error) {
	g.NoSlowdown = noSlowdown
	g.first.Reset(batch)
	g.replys = append(g.replys, replyc)
	g.Batch = &g.first
	g.batchSize = len(batch)
	switch {
	case g.batchSize <= (128 << 10):
		g.maxBatchSize = g.batchSize + (128 << 10)
	default:
		g.maxBatchSize = 1 << 20
	}
}

// HasPending reports whether a write was held back for the next group.
// No more writes can join until Rewind.
func (g *Group) HasPending() bool {
	return g.pendingReplyc != nil
}

func (g *Group) Push(noSlowdown bool, batch []byte, replyc chan error) {
	switch {
	case len(g.replys) == 0:
		g.setFirst(noSlowdown, batch, replyc)
	case g.NoSlowdown != noSlowdown, g.batchSize > g.maxBatchSize:
		g.pendingNoSlowdown = noSlowdown
		g.pendingBatch = batch
		g.pendingReplyc = replyc
	default:
		if g.fixed.Empty() {
			g.fixed.Append(g.first.Bytes())
			g.Batch = &g.fixed
		}
		if !g.fixed.Append(batch) {
			g.pendingNoSlowdown = noSlowdown
			g.pendingBatch = batch
			g.pendingReplyc = replyc
			return
		}
		g.batchSize += len(batch)
		g.replys = append(g.replys, replyc)
	}
}

// Rewind empties the group and starts the next one from the pending write.
func (g *Group) Rewind() {
	g.fixed.Clear()
	g.first.Reset(nil)
	g.Batch = nil
	g.replys = g.replys[:0]
	if g.pendingReplyc != nil {
		g.setFirst(g.pendingNoSlowdown, g.pendingBatch, g.pendingReplyc)
		g.pendingBatch = nil
		g.pendingReplyc = nil
	}
}

// Send replies err to all grouped writes.
func (g *Group) Send(err error) {
	for i, replyc := range g.replys {
		replyc <- err
		g.replys[i] = nil
	}
}
