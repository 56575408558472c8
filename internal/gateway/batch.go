package gateway

// WriteKind identifies the mutation a Write performs.
type WriteKind int

const (
	WriteCreate WriteKind = iota
	WriteUpdate
	WriteDelete
)

func (k WriteKind) String() string {
	switch k {
	case WriteCreate:
		return "create"
	case WriteUpdate:
		return "update"
	case WriteDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Write is a single queued mutation.
type Write struct {
	Kind       WriteKind
	Collection string
	ID         string
	Fields     Fields
}

// Batch collects writes that a Gateway applies all-or-nothing.
type Batch struct {
	writes []Write
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Create queues a document creation. An empty id is generated immediately so
// callers can reference the document before commit.
func (b *Batch) Create(collection, id string, fields Fields) string {
	if id == "" {
		id = NewID()
	}
	b.writes = append(b.writes, Write{Kind: WriteCreate, Collection: collection, ID: id, Fields: fields})
	return id
}

// Update queues a partial update of an existing document.
func (b *Batch) Update(collection, id string, fields Fields) *Batch {
	b.writes = append(b.writes, Write{Kind: WriteUpdate, Collection: collection, ID: id, Fields: fields})
	return b
}

// Delete queues a document removal.
func (b *Batch) Delete(collection, id string) *Batch {
	b.writes = append(b.writes, Write{Kind: WriteDelete, Collection: collection, ID: id})
	return b
}

// Len reports the number of queued writes.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.writes)
}

// Writes returns the queued writes in order.
func (b *Batch) Writes() []Write {
	if b == nil {
		return nil
	}
	return b.writes
}

// Change describes the effect of one committed write. Before is nil for
// creations and After is nil for deletions.
type Change struct {
	Collection string
	Before     *Document
	After      *Document
}
