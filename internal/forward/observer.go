package forward

// Renewal is the fate of a slot whose source survives a superversion change.
type Renewal int

const (
	// Rebuild opens a fresh slot for a source new to the superversion.
	Rebuild Renewal = iota
	// DeferRebuild keeps a trimmed slot trimmed. It is rebuilt only if a
	// later seek moves backward.
	DeferRebuild
	// CarryForward moves an open slot into the new slot set.
	CarryForward
)

func (r Renewal) String() string {
	switch r {
	case Rebuild:
		return "rebuild"
	case DeferRebuild:
		return "defer"
	case CarryForward:
		return "carry"
	}
	return "unknown"
}

// decideRenewal decides what to do with old, the slot of a source. inBoth
// tells whether the source is in both the old and the new superversion.
func decideRenewal(old *slot, inBoth bool) Renewal {
	switch {
	case !inBoth || old == nil:
		return Rebuild
	case old.deleted():
		return DeferRebuild
	default:
		return CarryForward
	}
}

// Observer watches slot management of tailing iterators. Methods are
// called synchronously from iterator methods.
type Observer interface {
	// Rebuilt is called when all slots are built from scratch.
	Rebuilt()

	// Renewed is called once per file or level slot on a superversion
	// change.
	Renewed(r Renewal)

	// ImmutableSeeked is called when a seek repositions immutable slots.
	ImmutableSeeked()
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) Rebuilt()         {}
func (NopObserver) Renewed(Renewal)  {}
func (NopObserver) ImmutableSeeked() {}

// Observers fans calls out to all observers.
type Observers []Observer

func (os Observers) Rebuilt() {
	for _, o := range os {
		o.Rebuilt()
	}
}

func (os Observers) Renewed(r Renewal) {
	for _, o := range os {
		o.Renewed(r)
	}
}

func (os Observers) ImmutableSeeked() {
	for _, o := range os {
		o.ImmutableSeeked()
	}
}
