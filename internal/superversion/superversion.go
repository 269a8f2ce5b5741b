// Package superversion publishes consistent snapshots of the memtables and
// the file version. Readers pin a snapshot without taking locks and see
// either the old or the new one across a concurrent install, never a mix.
package superversion

import (
	"sync/atomic"

	"github.com/kezhuw/lsmtail/internal/memtable"
	"github.com/kezhuw/lsmtail/internal/version"
)

// SuperVersion is an immutable view of the engine.
type SuperVersion struct {
	// Number grows by one on every install. Equal numbers imply equal
	// memtables and files.
	Number uint64

	Mem *memtable.MemTable
	// Imms are immutable memtables, oldest first.
	Imms    []*memtable.MemTable
	Version *version.Version

	refs atomic.Int64
}

// Retain pins sv again. sv must already be pinned.
func (sv *SuperVersion) Retain() *SuperVersion {
	if sv.refs.Add(1) <= 1 {
		panic("lsmtail: retain of retired superversion")
	}
	return sv
}

// tryRetain pins sv unless it is already retired.
func (sv *SuperVersion) tryRetain() bool {
	for {
		n := sv.refs.Load()
		if n <= 0 {
			return false
		}
		if sv.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release unpins sv. The last release unpins its version.
func (sv *SuperVersion) Release() {
	switch n := sv.refs.Add(-1); {
	case n == 0:
		sv.Version.Release()
	case n < 0:
		panic("lsmtail: superversion released too many times")
	}
}

// Memtables returns all memtables, newest first.
func (sv *SuperVersion) Memtables() []*memtable.MemTable {
	mems := make([]*memtable.MemTable, 0, len(sv.Imms)+1)
	mems = append(mems, sv.Mem)
	for i := len(sv.Imms) - 1; i >= 0; i-- {
		mems = append(mems, sv.Imms[i])
	}
	return mems
}

// Registry holds the latest published superversion.
type Registry struct {
	current atomic.Pointer[SuperVersion]
	// number is guarded by the caller serializing Install.
	number uint64
}

// NewRegistry publishes the first superversion, taking over the caller's
// pin on v.
func NewRegistry(mem *memtable.MemTable, v *version.Version) *Registry {
	r := &Registry{}
	r.Install(mem, nil, v)
	return r
}

// Current returns the latest superversion pinned, or nil after Close.
func (r *Registry) Current() *SuperVersion {
	for {
		sv := r.current.Load()
		if sv == nil || sv.tryRetain() {
			return sv
		}
	}
}

// Number returns the number of the latest superversion, or 0 after Close.
func (r *Registry) Number() uint64 {
	if sv := r.current.Load(); sv != nil {
		return sv.Number
	}
	return 0
}

// Install publishes a superversion, taking over the caller's pin on v, and
// drops the registry's pin on the previous one. Calls must not run
// concurrently.
func (r *Registry) Install(mem *memtable.MemTable, imms []*memtable.MemTable, v *version.Version) *SuperVersion {
	r.number++
	sv := &SuperVersion{
		Number:  r.number,
		Mem:     mem,
		Imms:    append([]*memtable.MemTable(nil), imms...),
		Version: v,
	}
	sv.refs.Store(1)
	if old := r.current.Swap(sv); old != nil {
		old.Release()
	}
	return sv
}

// Close drops the registry's pin on the latest superversion.
func (r *Registry) Close() {
	if sv := r.current.Swap(nil); sv != nil {
		sv.Release()
	}
}
