package crdt

import "sort"

// ID identifies a single operation. Clock values are Lamport timestamps:
// every operation created by a site carries a clock strictly greater than
// any clock that site has observed.
type ID struct {
	Site  uint64
	Clock uint64
}

// zeroID marks "no origin", i.e. an insert at the head of the document.
var zeroID = ID{}

// Less orders IDs clock-first, site as tie break. Integration relies on
// this order being total.
func (a ID) Less(b ID) bool {
	if a.Clock != b.Clock {
		return a.Clock < b.Clock
	}
	return a.Site < b.Site
}

// StateVector maps each known site to the highest operation clock
// integrated from it.
type StateVector map[uint64]uint64

// Covers reports whether an operation with the given id is already
// reflected in the vector.
func (sv StateVector) Covers(id ID) bool {
	return id.Clock <= sv[id.Site]
}

func (sv StateVector) merge(id ID) {
	if id.Clock > sv[id.Site] {
		sv[id.Site] = id.Clock
	}
}

// Clone returns an independent copy.
func (sv StateVector) Clone() StateVector {
	out := make(StateVector, len(sv))
	for site, clock := range sv {
		out[site] = clock
	}
	return out
}

// Encode serializes the vector as varint pairs, sites in ascending order so
// equal vectors produce equal bytes.
func (sv StateVector) Encode() []byte {
	sites := make([]uint64, 0, len(sv))
	for site := range sv {
		sites = append(sites, site)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })

	w := newWriter()
	w.uvarint(uint64(len(sites)))
	for _, site := range sites {
		w.uvarint(site)
		w.uvarint(sv[site])
	}
	return w.bytes()
}

// DecodeStateVector parses the output of Encode. Empty input decodes to an
// empty vector.
func DecodeStateVector(data []byte) (StateVector, error) {
	sv := make(StateVector)
	if len(data) == 0 {
		return sv, nil
	}
	r := newReader(data)
	count, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < count; i++ {
		site, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		clock, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		if clock > sv[site] {
			sv[site] = clock
		}
	}
	return sv, nil
}
