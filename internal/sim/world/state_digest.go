package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// StateDigest hashes the deterministic world state: tick, agents, rosters,
// vendor ledgers and the event sequence.
func (w *World) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteI64(h, &tmp, int64(w.tick))
	digestWriteU64(h, &tmp, w.events.LastSeq())
	w.digestAgents(h, &tmp)
	w.digestPlaces(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (w *World) digestAgents(h hashWriter, tmp *[8]byte) {
	for _, id := range w.order {
		a := w.agents[id]
		digestWriteString(h, tmp, id)
		digestWriteString(h, tmp, w.locations[id])
		digestWriteI64(h, tmp, int64(a.BusyUntil))
		h.Write([]byte{boolByte(a.Alive)})
		p := a.Physio
		for _, v := range []float64{p.Energy, p.Hunger, p.Stress, p.Social, p.Fun, p.Hygiene, p.Comfort, p.Bladder} {
			digestWriteU64(h, tmp, math.Float64bits(v))
		}
		writeIntMap(h, tmp, a.Inventory.Counts())
		writeIntMap(h, tmp, p.Moodlets)
		digestWriteI64(h, tmp, int64(a.Memory.Len()))
		digestWriteI64(h, tmp, int64(len(a.Plan)))
		for _, s := range a.Plan {
			digestWriteString(h, tmp, s)
		}
	}
}

func (w *World) digestPlaces(h hashWriter, tmp *[8]byte) {
	names := w.graph.Names()
	sort.Strings(names)
	for _, name := range names {
		p, _ := w.graph.Get(name)
		digestWriteString(h, tmp, name)
		for _, id := range p.Present() {
			digestWriteString(h, tmp, id)
		}
		writeIntMap(h, tmp, p.Inventory.Counts())
		if p.Vendor == nil {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})
		writeIntMap(h, tmp, p.Vendor.Stock)
		for _, k := range sortedKeys(p.Vendor.Prices) {
			digestWriteString(h, tmp, k)
			digestWriteU64(h, tmp, math.Float64bits(p.Vendor.Prices[k]))
		}
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func writeIntMap(h hashWriter, tmp *[8]byte, m map[string]int) {
	for _, k := range sortedKeys(m) {
		if m[k] == 0 {
			continue
		}
		digestWriteString(h, tmp, k)
		digestWriteI64(h, tmp, int64(m[k]))
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
