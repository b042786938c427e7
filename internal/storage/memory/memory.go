// Package memory is a concurrency-safe in-memory storage backend with the same
// atomic-unit and row-locking semantics as the Postgres backend. It backs the
// development server and the test suites.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/storage"
)

// Options tunes the in-memory backend.
type Options struct {
	// LockTimeout bounds blocking lock acquisition. Zero waits until the
	// caller's context is done.
	LockTimeout time.Duration
}

type uniqueIndex struct {
	table   string
	name    string
	key     func(row any) string
	message string
}

type reference struct {
	child    string
	parent   string
	parentID func(row any) string
	message  string
}

// DB holds committed rows per table. Writes are staged in a unit and applied
// together on commit, so readers never observe half of a unit.
type DB struct {
	mu      sync.RWMutex
	tables  map[string]map[string]any
	uniques []uniqueIndex
	refs    []reference
	locks   *lockTable
}

// New creates an empty database.
func New(opts Options) *DB {
	return &DB{
		tables: make(map[string]map[string]any),
		locks:  newLockTable(opts.LockTimeout),
	}
}

// Unique declares a unique index over key(row). Rows with an empty key are
// not indexed. Declaring the same table and name again replaces the index.
func (db *DB) Unique(table, name string, key func(row any) string, message string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	idx := uniqueIndex{table: table, name: name, key: key, message: message}
	for i, existing := range db.uniques {
		if existing.table == table && existing.name == name {
			db.uniques[i] = idx
			return
		}
	}
	db.uniques = append(db.uniques, idx)
}

// References declares a restricting foreign key from child rows to parent rows.
// Deleting a parent that is still referenced fails with message. Declaring
// the same child and parent again replaces the reference.
func (db *DB) References(child, parent string, parentID func(row any) string, message string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	ref := reference{child: child, parent: parent, parentID: parentID, message: message}
	for i, existing := range db.refs {
		if existing.child == child && existing.parent == parent {
			db.refs[i] = ref
			return
		}
	}
	db.refs = append(db.refs, ref)
}

type unitKey struct{}

type change struct {
	row     any
	deleted bool
}

type unit struct {
	db     *DB
	held   map[string]struct{}
	order  []string
	staged map[string]map[string]change
}

func unitFrom(ctx context.Context, db *DB) *unit {
	u, _ := ctx.Value(unitKey{}).(*unit)
	if u == nil || u.db != db {
		return nil
	}
	return u
}

// InTx implements storage.Transactor. Nested calls join the outer unit.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if unitFrom(ctx, db) != nil {
		return fn(ctx)
	}

	u := &unit{
		db:     db,
		held:   make(map[string]struct{}),
		staged: make(map[string]map[string]change),
	}
	defer u.release()

	if err := fn(context.WithValue(ctx, unitKey{}, u)); err != nil {
		return err
	}
	u.commit()
	return nil
}

func (u *unit) lock(ctx context.Context, key string, mode storage.LockMode) error {
	if _, ok := u.held[key]; ok {
		return nil
	}
	if err := u.db.locks.acquire(ctx, key, mode); err != nil {
		return err
	}
	u.held[key] = struct{}{}
	u.order = append(u.order, key)
	return nil
}

func (u *unit) release() {
	for i := len(u.order) - 1; i >= 0; i-- {
		u.db.locks.release(u.order[i])
	}
	u.order = nil
	u.held = nil
}

func (u *unit) stage(table, id string, c change) {
	rows, ok := u.staged[table]
	if !ok {
		rows = make(map[string]change)
		u.staged[table] = rows
	}
	rows[id] = c
}

func (u *unit) commit() {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	for table, rows := range u.staged {
		committed, ok := u.db.tables[table]
		if !ok {
			committed = make(map[string]any)
			u.db.tables[table] = committed
		}
		for id, c := range rows {
			if c.deleted {
				delete(committed, id)
				continue
			}
			committed[id] = c.row
		}
	}
	u.staged = nil
}

// Lock takes an exclusive lock on table/id for the rest of the unit in ctx.
func (db *DB) Lock(ctx context.Context, table, id string, mode storage.LockMode) error {
	u := unitFrom(ctx, db)
	if u == nil {
		return storage.ErrNoUnit
	}
	return u.lock(ctx, "row:"+table+":"+id, mode)
}

// Get reads a row as seen by the unit in ctx, or the committed row outside a unit.
func (db *DB) Get(ctx context.Context, table, id string) (any, bool) {
	if u := unitFrom(ctx, db); u != nil {
		if c, ok := u.staged[table][id]; ok {
			if c.deleted {
				return nil, false
			}
			return c.row, true
		}
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	row, ok := db.tables[table][id]
	return row, ok
}

// Scan returns every row of table as seen by the unit in ctx.
func (db *DB) Scan(ctx context.Context, table string) []any {
	merged := db.view(ctx, table)
	rows := make([]any, 0, len(merged))
	for _, row := range merged {
		rows = append(rows, row)
	}
	return rows
}

func (db *DB) view(ctx context.Context, table string) map[string]any {
	db.mu.RLock()
	merged := make(map[string]any, len(db.tables[table]))
	for id, row := range db.tables[table] {
		merged[id] = row
	}
	db.mu.RUnlock()

	if u := unitFrom(ctx, db); u != nil {
		for id, c := range u.staged[table] {
			if c.deleted {
				delete(merged, id)
				continue
			}
			merged[id] = c.row
		}
	}
	return merged
}

// Insert adds a new row. Outside a unit the write commits on its own.
func (db *DB) Insert(ctx context.Context, table, id string, row any) error {
	return db.InTx(ctx, func(ctx context.Context) error {
		if _, exists := db.Get(ctx, table, id); exists {
			return apperr.Duplicate(fmt.Sprintf("%s %s already exists", table, id))
		}
		return db.put(ctx, table, id, row)
	})
}

// Update replaces an existing row.
func (db *DB) Update(ctx context.Context, table, id string, row any) error {
	return db.InTx(ctx, func(ctx context.Context) error {
		if _, exists := db.Get(ctx, table, id); !exists {
			return apperr.NotFound(fmt.Sprintf("%s %s not found", table, id))
		}
		return db.put(ctx, table, id, row)
	})
}

// Delete removes a row, refusing while other rows still reference it.
func (db *DB) Delete(ctx context.Context, table, id string) error {
	return db.InTx(ctx, func(ctx context.Context) error {
		if _, exists := db.Get(ctx, table, id); !exists {
			return apperr.NotFound(fmt.Sprintf("%s %s not found", table, id))
		}
		for _, ref := range db.constraints().refs {
			if ref.parent != table {
				continue
			}
			for _, child := range db.Scan(ctx, ref.child) {
				if ref.parentID(child) == id {
					return apperr.Protected(ref.message)
				}
			}
		}
		unitFrom(ctx, db).stage(table, id, change{deleted: true})
		return nil
	})
}

func (db *DB) put(ctx context.Context, table, id string, row any) error {
	u := unitFrom(ctx, db)
	c := db.constraints()

	for _, ref := range c.refs {
		if ref.child != table {
			continue
		}
		parentID := ref.parentID(row)
		if _, ok := db.Get(ctx, ref.parent, parentID); !ok {
			return apperr.NotFound(fmt.Sprintf("%s %s not found", ref.parent, parentID))
		}
	}

	for _, idx := range c.uniques {
		if idx.table != table {
			continue
		}
		key := idx.key(row)
		if key == "" {
			continue
		}
		// Concurrent writers of the same key serialize here; the loser sees
		// the winner's committed row.
		if err := u.lock(ctx, "unique:"+table+"."+idx.name+":"+key, storage.LockWait); err != nil {
			return err
		}
		for otherID, other := range db.view(ctx, table) {
			if otherID != id && idx.key(other) == key {
				return apperr.Duplicate(idx.message)
			}
		}
	}

	u.stage(table, id, change{row: row})
	return nil
}

type constraintSet struct {
	uniques []uniqueIndex
	refs    []reference
}

func (db *DB) constraints() constraintSet {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return constraintSet{uniques: db.uniques, refs: db.refs}
}
