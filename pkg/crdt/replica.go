package crdt

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
)

// node is one rune in document order. Tombstoned nodes stay linked so later
// concurrent inserts can still resolve their origins.
type node struct {
	id      ID
	origin  ID
	ch      rune
	deleted bool
	next    *node
}

// Doc is a single-register text replica. All methods are safe for
// concurrent use. Observers registered with OnUpdate fire outside the
// structural lock, in commit order, for both local transactions and
// remotely applied updates.
type Doc struct {
	mu       sync.Mutex
	notifyMu sync.Mutex

	site  uint64
	clock uint64

	head      node // sentinel; head.next is the first node
	nodes     map[ID]*node
	deletes   map[ID]struct{}
	deleteOps []op
	sv        StateVector
	pending   []op
	visible   int

	obsMu     sync.Mutex
	obsNextID int
	observers map[int]func(update []byte)
}

// NewDoc creates an empty replica with a random site identity.
func NewDoc() *Doc {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("crdt: reading random site id: %v", err))
	}
	// Site 0 is reserved so zeroID can never collide with a real op.
	site := binary.LittleEndian.Uint64(b[:])
	if site == 0 {
		site = 1
	}
	return NewDocWithSite(site)
}

// NewDocWithSite creates an empty replica with an explicit site identity.
// Tests use this to make merges deterministic.
func NewDocWithSite(site uint64) *Doc {
	if site == 0 {
		site = 1
	}
	return &Doc{
		site:      site,
		nodes:     make(map[ID]*node),
		deletes:   make(map[ID]struct{}),
		sv:        make(StateVector),
		observers: make(map[int]func([]byte)),
	}
}

// Site returns the replica's site identity.
func (d *Doc) Site() uint64 {
	return d.site
}

// OnUpdate registers an observer invoked with the raw update bytes after
// every transaction that changed the replica. The returned function cancels
// the registration.
func (d *Doc) OnUpdate(fn func(update []byte)) (cancel func()) {
	d.obsMu.Lock()
	id := d.obsNextID
	d.obsNextID++
	d.observers[id] = fn
	d.obsMu.Unlock()
	return func() {
		d.obsMu.Lock()
		delete(d.observers, id)
		d.obsMu.Unlock()
	}
}

func (d *Doc) notify(update []byte) {
	d.obsMu.Lock()
	fns := make([]func([]byte), 0, len(d.observers))
	for _, fn := range d.observers {
		fns = append(fns, fn)
	}
	d.obsMu.Unlock()
	for _, fn := range fns {
		fn(update)
	}
}

// Tx batches edits into a single update. Edits apply immediately to the
// replica; the batch is what observers and the wire see.
type Tx struct {
	d   *Doc
	ops []op
}

// Len returns the visible rune count.
func (t *Tx) Len() int {
	return t.d.visible
}

// Text returns the visible text.
func (t *Tx) Text() string {
	return t.d.textLocked()
}

// Insert places text at the given visible rune index.
func (t *Tx) Insert(index int, text string) error {
	if index < 0 || index > t.d.visible {
		return fmt.Errorf("crdt: insert index %d out of range [0,%d]", index, t.d.visible)
	}
	left := t.d.visibleNodeBefore(index)
	origin := zeroID
	if left != nil {
		origin = left.id
	}
	for _, ch := range text {
		t.d.clock++
		o := op{
			Kind:   opInsert,
			ID:     ID{Site: t.d.site, Clock: t.d.clock},
			Origin: origin,
			Ch:     ch,
		}
		t.d.integrate(o)
		t.ops = append(t.ops, o)
		origin = o.ID
	}
	return nil
}

// Delete tombstones length visible runes starting at index.
func (t *Tx) Delete(index, length int) error {
	if index < 0 || length < 0 || index+length > t.d.visible {
		return fmt.Errorf("crdt: delete range [%d,%d) out of range [0,%d]", index, index+length, t.d.visible)
	}
	targets := make([]ID, 0, length)
	n := t.d.visibleNodeAt(index)
	for i := 0; i < length && n != nil; n = n.next {
		if n.deleted {
			continue
		}
		targets = append(targets, n.id)
		i++
	}
	for _, target := range targets {
		t.d.clock++
		o := op{
			Kind:   opDelete,
			ID:     ID{Site: t.d.site, Clock: t.d.clock},
			Target: target,
		}
		t.d.integrate(o)
		t.ops = append(t.ops, o)
	}
	return nil
}

// Update runs fn as one transaction and returns the encoded update, which
// is empty when fn made no changes. Observers fire once per non-empty
// transaction, in commit order.
func (d *Doc) Update(fn func(tx *Tx) error) ([]byte, error) {
	d.mu.Lock()
	tx := &Tx{d: d}
	err := fn(tx)
	var payload []byte
	if len(tx.ops) > 0 {
		payload = encodeOps(tx.ops)
	}
	// notifyMu is taken before mu is released so observers see
	// transactions in the order they committed.
	d.notifyMu.Lock()
	d.mu.Unlock()
	if payload != nil {
		d.notify(payload)
	}
	d.notifyMu.Unlock()
	return payload, err
}

// InsertText inserts at a visible rune index.
func (d *Doc) InsertText(index int, text string) error {
	_, err := d.Update(func(tx *Tx) error {
		return tx.Insert(index, text)
	})
	return err
}

// DeleteRange removes length visible runes starting at index.
func (d *Doc) DeleteRange(index, length int) error {
	_, err := d.Update(func(tx *Tx) error {
		return tx.Delete(index, length)
	})
	return err
}

// ApplyUpdate merges a remote update into the replica. Already-integrated
// operations are skipped; operations whose origins have not arrived are
// parked and retried as dependencies land. Observers fire only when the
// update changed the replica.
func (d *Doc) ApplyUpdate(update []byte) error {
	ops, err := decodeOps(update)
	if err != nil {
		return fmt.Errorf("crdt: apply update: %w", err)
	}
	if len(ops) == 0 {
		return nil
	}
	d.mu.Lock()
	applied := 0
	for _, o := range ops {
		if d.integrate(o) {
			applied++
		}
	}
	applied += d.drainPending()
	d.notifyMu.Lock()
	d.mu.Unlock()
	if applied > 0 {
		d.notify(update)
	}
	d.notifyMu.Unlock()
	return nil
}

// integrate merges one op into the structure. It returns false for
// duplicates and for ops parked in the pending buffer. Callers hold d.mu.
func (d *Doc) integrate(o op) bool {
	switch o.Kind {
	case opInsert:
		if _, ok := d.nodes[o.ID]; ok {
			return false
		}
		left := &d.head
		if o.Origin != zeroID {
			anchor, ok := d.nodes[o.Origin]
			if !ok {
				d.pending = append(d.pending, o)
				return false
			}
			left = anchor
		}
		// RGA: concurrent ops to the right of the origin carry larger
		// Lamport clocks; skip past them so siblings order by
		// descending ID.
		cur := left.next
		for cur != nil && o.ID.Less(cur.id) {
			left = cur
			cur = cur.next
		}
		n := &node{id: o.ID, origin: o.Origin, ch: o.Ch, next: cur}
		left.next = n
		d.nodes[o.ID] = n
		d.visible++
		d.afterIntegrate(o.ID)
		return true
	case opDelete:
		if _, ok := d.deletes[o.ID]; ok {
			return false
		}
		n, ok := d.nodes[o.Target]
		if !ok {
			d.pending = append(d.pending, o)
			return false
		}
		if !n.deleted {
			n.deleted = true
			d.visible--
		}
		d.deletes[o.ID] = struct{}{}
		d.deleteOps = append(d.deleteOps, o)
		d.afterIntegrate(o.ID)
		return true
	default:
		return false
	}
}

func (d *Doc) afterIntegrate(id ID) {
	d.sv.merge(id)
	if id.Clock > d.clock {
		d.clock = id.Clock
	}
}

// drainPending retries parked ops until no further progress is made and
// returns how many were applied.
func (d *Doc) drainPending() int {
	total := 0
	for {
		if len(d.pending) == 0 {
			return total
		}
		queue := d.pending
		d.pending = nil
		applied := 0
		for _, o := range queue {
			if d.integrate(o) {
				applied++
			}
		}
		if applied == 0 {
			return total
		}
		total += applied
	}
}

// StateVector returns a copy of the replica's current state vector.
func (d *Doc) StateVector() StateVector {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sv.Clone()
}

// EncodeStateAsUpdate returns an update containing every operation not
// covered by remote. A nil remote yields the full state. Inserts are
// emitted in document order, which guarantees origins precede their
// dependents on replay.
func (d *Doc) EncodeStateAsUpdate(remote StateVector) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ops []op
	for n := d.head.next; n != nil; n = n.next {
		if remote.Covers(n.id) {
			continue
		}
		ops = append(ops, op{Kind: opInsert, ID: n.id, Origin: n.origin, Ch: n.ch})
	}
	for _, o := range d.deleteOps {
		if remote.Covers(o.ID) {
			continue
		}
		ops = append(ops, o)
	}
	return encodeOps(ops)
}

// Text returns the visible text.
func (d *Doc) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.textLocked()
}

// Len returns the visible rune count.
func (d *Doc) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visible
}

func (d *Doc) textLocked() string {
	var b strings.Builder
	for n := d.head.next; n != nil; n = n.next {
		if !n.deleted {
			b.WriteRune(n.ch)
		}
	}
	return b.String()
}

// visibleNodeBefore returns the node immediately left of the given visible
// index, or nil when index is 0. Callers hold d.mu.
func (d *Doc) visibleNodeBefore(index int) *node {
	if index == 0 {
		return nil
	}
	seen := 0
	var last *node
	for n := d.head.next; n != nil; n = n.next {
		if n.deleted {
			continue
		}
		seen++
		last = n
		if seen == index {
			return last
		}
	}
	return last
}

// visibleNodeAt returns the visible node at the given index. Callers hold
// d.mu.
func (d *Doc) visibleNodeAt(index int) *node {
	seen := 0
	for n := d.head.next; n != nil; n = n.next {
		if n.deleted {
			continue
		}
		if seen == index {
			return n
		}
		seen++
	}
	return nil
}
