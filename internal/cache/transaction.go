package cache

// Transaction is the snapshot / apply / persist / restore cycle behind every optimistic
// write. The snapshot is the whole collection, so Rollback restores it exactly.
type Transaction[T Entity[T]] struct {
	store    *Store[T]
	snapshot []T
	applied  bool
}

// Begin snapshots the current collection.
func (s *Store[T]) Begin() *Transaction[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Transaction[T]{store: s, snapshot: copyItems(s.items)}
}

// Apply runs fn over a copy of the live collection and stores the result.
func (tx *Transaction[T]) Apply(fn func(items []T) []T) {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = fn(copyItems(s.items))
	tx.applied = true
}

// Rollback restores the snapshot taken by Begin.
func (tx *Transaction[T]) Rollback() {
	if !tx.applied {
		return
	}
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = copyItems(tx.snapshot)
}

// Snapshot returns a copy of the state captured by Begin
func (tx *Transaction[T]) Snapshot() []T {
	return copyItems(tx.snapshot)
}
