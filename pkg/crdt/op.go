package crdt

import "fmt"

type opKind byte

const (
	opInsert opKind = 1
	opDelete opKind = 2
)

// op is one unit of replicated change. Inserts carry the rune and the ID of
// the node that was immediately to the left when the insert was created;
// deletes carry the ID of the node being tombstoned. Delete operations have
// their own IDs so they participate in state vectors and deltas.
type op struct {
	Kind   opKind
	ID     ID
	Origin ID // insert only; zeroID anchors at the document head
	Target ID // delete only
	Ch     rune
}

func encodeOps(ops []op) []byte {
	if len(ops) == 0 {
		return nil
	}
	w := newWriter()
	w.uvarint(uint64(len(ops)))
	for _, o := range ops {
		w.byte(byte(o.Kind))
		w.uvarint(o.ID.Site)
		w.uvarint(o.ID.Clock)
		switch o.Kind {
		case opInsert:
			w.uvarint(o.Origin.Site)
			w.uvarint(o.Origin.Clock)
			w.uvarint(uint64(uint32(o.Ch)))
		case opDelete:
			w.uvarint(o.Target.Site)
			w.uvarint(o.Target.Clock)
		}
	}
	return w.bytes()
}

func decodeOps(update []byte) ([]op, error) {
	if len(update) == 0 {
		return nil, nil
	}
	r := newReader(update)
	count, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	ops := make([]op, 0, count)
	for i := uint64(0); i < count; i++ {
		kind, err := r.byte()
		if err != nil {
			return nil, err
		}
		o := op{Kind: opKind(kind)}
		if o.ID.Site, err = r.uvarint(); err != nil {
			return nil, err
		}
		if o.ID.Clock, err = r.uvarint(); err != nil {
			return nil, err
		}
		switch o.Kind {
		case opInsert:
			if o.Origin.Site, err = r.uvarint(); err != nil {
				return nil, err
			}
			if o.Origin.Clock, err = r.uvarint(); err != nil {
				return nil, err
			}
			ch, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			o.Ch = rune(uint32(ch))
		case opDelete:
			if o.Target.Site, err = r.uvarint(); err != nil {
				return nil, err
			}
			if o.Target.Clock, err = r.uvarint(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("crdt: unknown op kind %d", kind)
		}
		ops = append(ops, o)
	}
	if !r.done() {
		return nil, fmt.Errorf("crdt: %d trailing bytes after %d ops", len(update)-r.off, count)
	}
	return ops, nil
}
