// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package lockvault implements the Lock Vault (spec §3, §4.8): exclusive,
// lease-based locks on named resources, held by session identifier with an
// absolute wall-clock expiry. Staleness is checked lazily on each lock
// attempt rather than swept periodically, per spec §4.8.
//
// Entries persist in SQLite (modernc.org/sqlite, the teacher's own choice
// in internal/analytics/store.go and internal/state) so a lock held across
// a daemon restart is not silently lost; an in-memory map mirrors the table
// for the hot path and is rebuilt from it on Open.
package lockvault

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"nipart.dev/nipart/internal/nerr"
)

// Entry names a single lockable resource (spec §4.8's LockEntry).
type Entry string

// Hold is one held lock: which session holds it, and when it expires.
type Hold struct {
	Session string
	Expiry  time.Time
}

func (h Hold) expired(now time.Time) bool {
	return now.After(h.Expiry)
}

// Vault is the lock table: mapping from Entry to Hold, backed by SQLite.
type Vault struct {
	db *sql.DB

	mu     sync.Mutex
	holds  map[Entry]Hold
}

// Open opens or creates the lock vault database at path.
func Open(path string) (*Vault, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, nerr.Wrapf(err, nerr.KindBug, "lock vault: opening %s", path)
	}
	v := &Vault{db: db, holds: make(map[Entry]Hold)}
	if err := v.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := v.loadHolds(); err != nil {
		db.Close()
		return nil, err
	}
	return v, nil
}

func (v *Vault) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS lock_entries (
		name TEXT PRIMARY KEY,
		session TEXT NOT NULL,
		expiry INTEGER NOT NULL
	);
	`
	if _, err := v.db.Exec(schema); err != nil {
		return nerr.Wrapf(err, nerr.KindBug, "lock vault: creating schema")
	}
	return nil
}

func (v *Vault) loadHolds() error {
	rows, err := v.db.Query(`SELECT name, session, expiry FROM lock_entries`)
	if err != nil {
		return nerr.Wrapf(err, nerr.KindBug, "lock vault: loading holds")
	}
	defer rows.Close()

	for rows.Next() {
		var name, session string
		var expiryUnix int64
		if err := rows.Scan(&name, &session, &expiryUnix); err != nil {
			return nerr.Wrapf(err, nerr.KindBug, "lock vault: scanning hold")
		}
		v.holds[Entry(name)] = Hold{Session: session, Expiry: time.Unix(expiryUnix, 0).UTC()}
	}
	return rows.Err()
}

// Close closes the underlying database.
func (v *Vault) Close() error { return v.db.Close() }

// Options carries per-call lock parameters (spec §4.8's Lock(entries, options)).
type Options struct {
	Timeout time.Duration
}

// ConflictError reports which entry is held by which session, blocking a
// Lock call (spec §4.8: "fails with the identity of the blocking session").
type ConflictError struct {
	Entry   Entry
	Session string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("entry %s held by session %s", e.Entry, e.Session)
}

var nowFunc = func() time.Time { return time.Now().UTC() }

// Lock attempts to acquire every entry atomically for session, expiring at
// now+opts.Timeout. It succeeds iff every entry is unheld, held by an
// expired holder, or already held by session itself (in which case the
// hold is renewed with the new expiry); otherwise no entry is acquired and the
// returned error is a *ConflictError naming the first blocking holder
// (spec §4.8, and §9's "lock mutual exclusion" invariant).
func (v *Vault) Lock(entries []Entry, session string, opts Options) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := nowFunc()
	for _, e := range entries {
		if hold, held := v.holds[e]; held && !hold.expired(now) && hold.Session != session {
			return &ConflictError{Entry: e, Session: hold.Session}
		}
	}

	expiry := now.Add(opts.Timeout)
	tx, err := v.db.Begin()
	if err != nil {
		return nerr.Wrapf(err, nerr.KindBug, "lock vault: beginning transaction")
	}
	stmt, err := tx.Prepare(`INSERT INTO lock_entries(name, session, expiry) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET session = excluded.session, expiry = excluded.expiry`)
	if err != nil {
		tx.Rollback()
		return nerr.Wrapf(err, nerr.KindBug, "lock vault: preparing insert")
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(string(e), session, expiry.Unix()); err != nil {
			tx.Rollback()
			return nerr.Wrapf(err, nerr.KindBug, "lock vault: persisting hold on %s", e)
		}
	}
	if err := tx.Commit(); err != nil {
		return nerr.Wrapf(err, nerr.KindBug, "lock vault: committing holds")
	}

	for _, e := range entries {
		v.holds[e] = Hold{Session: session, Expiry: expiry}
	}
	return nil
}

// Unlock releases every entry in entries that is still held by session;
// entries reassigned to a different session after expiry are silently
// skipped (spec §4.8).
func (v *Vault) Unlock(entries []Entry, session string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := nowFunc()
	var toRelease []Entry
	for _, e := range entries {
		hold, held := v.holds[e]
		if !held || hold.expired(now) || hold.Session != session {
			continue
		}
		toRelease = append(toRelease, e)
	}
	if len(toRelease) == 0 {
		return nil
	}

	tx, err := v.db.Begin()
	if err != nil {
		return nerr.Wrapf(err, nerr.KindBug, "lock vault: beginning transaction")
	}
	stmt, err := tx.Prepare(`DELETE FROM lock_entries WHERE name = ? AND session = ?`)
	if err != nil {
		tx.Rollback()
		return nerr.Wrapf(err, nerr.KindBug, "lock vault: preparing delete")
	}
	defer stmt.Close()

	for _, e := range toRelease {
		if _, err := stmt.Exec(string(e), session); err != nil {
			tx.Rollback()
			return nerr.Wrapf(err, nerr.KindBug, "lock vault: releasing %s", e)
		}
	}
	if err := tx.Commit(); err != nil {
		return nerr.Wrapf(err, nerr.KindBug, "lock vault: committing release")
	}

	for _, e := range toRelease {
		delete(v.holds, e)
	}
	return nil
}

// Holder reports the current session holding entry, if any and unexpired.
func (v *Vault) Holder(e Entry) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	hold, held := v.holds[e]
	if !held || hold.expired(nowFunc()) {
		return "", false
	}
	return hold.Session, true
}
