// Package association implements the session / pageview / activity
// identifier lifecycle of spec.md §4.2, durable across the keys "sid",
// "at", and "ac".
package association

import (
	"fmt"
	"sync"

	"github.com/eventplatform/epc/internal/platform"
	"github.com/eventplatform/epc/internal/store"
)

const (
	keySessionID     = "sid"
	keyActivityTable = "at"
	keyActivityCount = "ac"
)

// Controller owns pageview/session/activity identifier state. All methods
// are safe for concurrent use, though spec.md §5 only requires the single
// confinement the owning Client already provides.
type Controller struct {
	store store.KVStore
	ids   platform.IDGenerator

	mu          sync.Mutex
	pageviewID  string // empty until first use
	sessionID   string // empty until loaded/generated
	activityTbl map[string]int
	activityCnt int
	tableLoaded bool
}

// New creates a Controller backed by s for durable state and ids for
// identifier generation.
func New(s store.KVStore, ids platform.IDGenerator) *Controller {
	return &Controller{store: s, ids: ids}
}

// PageviewID returns the in-memory pageview identity, generating it lazily
// on first use. It is never persisted (spec.md §3 Pageview Identity).
func (c *Controller) PageviewID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageviewIDLocked()
}

func (c *Controller) pageviewIDLocked() (string, error) {
	if c.pageviewID != "" {
		return c.pageviewID, nil
	}
	id, err := c.ids.GenerateID()
	if err != nil {
		return "", fmt.Errorf("generate pageview id: %w", err)
	}
	c.pageviewID = id
	return id, nil
}

// SessionID returns the durable session identity, loading it from the
// store on first use or generating and persisting a fresh one if absent.
// A store read error is treated as "absent" per spec.md §7 StoreError.
func (c *Controller) SessionID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionIDLocked()
}

func (c *Controller) sessionIDLocked() (string, error) {
	if c.sessionID != "" {
		return c.sessionID, nil
	}

	var loaded string
	if ok, err := c.store.Get(keySessionID, &loaded); err == nil && ok {
		c.sessionID = loaded
		return loaded, nil
	}

	id, err := c.ids.GenerateID()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	if err := c.store.Set(keySessionID, id); err != nil {
		// Write errors keep the in-memory value authoritative for this
		// process (spec.md §7 StoreError).
		_ = err
	}
	c.sessionID = id
	return id, nil
}

// ScopeID resolves a scope to its anchoring identifier: the session id for
// "session" scope, the pageview id for everything else (spec.md §4.1
// step 6).
func (c *Controller) ScopeID(scope string) (string, error) {
	if scope == "session" {
		return c.SessionID()
	}
	return c.PageviewID()
}

// ActivityID returns the activity identity for (stream, scopeID): the
// 20-hex scope id concatenated with a 4-hex zero-padded sequence number
// that is assigned once per (scope lifetime, stream) and then stable
// (spec.md §3 Activity Table, §4.2).
func (c *Controller) ActivityID(stream, scopeID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureActivityTableLocked(); err != nil {
		return "", err
	}

	seq, ok := c.activityTbl[stream]
	if !ok {
		seq = c.activityCnt
		c.activityTbl[stream] = seq
		c.activityCnt++
		if err := c.persistActivityLocked(); err != nil {
			_ = err // write errors keep in-memory state authoritative
		}
	}

	return scopeID + hex4(seq), nil
}

// ensureActivityTableLocked loads "at"/"ac" from the store on first
// reference, initialising both to empty/1 if absent. Caller must hold
// c.mu.
func (c *Controller) ensureActivityTableLocked() error {
	if c.tableLoaded {
		return nil
	}

	var tbl map[string]int
	tblOK, tblErr := c.store.Get(keyActivityTable, &tbl)
	var cnt int
	cntOK, cntErr := c.store.Get(keyActivityCount, &cnt)

	if tblErr == nil && cntErr == nil && tblOK && cntOK {
		c.activityTbl = tbl
		c.activityCnt = cnt
		c.tableLoaded = true
		return nil
	}

	// Absent, or a read error treated as absent (spec.md §7): start fresh.
	c.activityTbl = make(map[string]int)
	c.activityCnt = 1
	c.tableLoaded = true
	if err := c.persistActivityLocked(); err != nil {
		_ = err // write errors keep in-memory state authoritative
	}
	return nil
}

// persistActivityLocked writes both "at" and "ac". Order is unspecified by
// spec.md §4.2 as long as both land before the call returns; write errors
// are non-fatal (in-memory state stays authoritative for this process).
func (c *Controller) persistActivityLocked() error {
	if err := c.store.Set(keyActivityCount, c.activityCnt); err != nil {
		return fmt.Errorf("persist activity count: %w", err)
	}
	if err := c.store.Set(keyActivityTable, c.activityTbl); err != nil {
		return fmt.Errorf("persist activity table: %w", err)
	}
	return nil
}

// BeginNewSession clears session and pageview identity (in-memory and
// durable for the session id) and the whole activity table, per spec.md
// §4.2.
func (c *Controller) BeginNewSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Delete(keySessionID); err != nil {
		_ = err
	}
	c.sessionID = ""
	c.pageviewID = ""

	if err := c.store.Delete(keyActivityTable); err != nil {
		_ = err
	}
	if err := c.store.Delete(keyActivityCount); err != nil {
		_ = err
	}
	c.activityTbl = nil
	c.activityCnt = 0
	c.tableLoaded = false

	return nil
}

// BeginNewActivity removes only stream's entry from the activity table,
// leaving the session/pageview identity and every other stream's entry
// untouched (spec.md §4.2).
func (c *Controller) BeginNewActivity(stream string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureActivityTableLocked(); err != nil {
		return err
	}
	delete(c.activityTbl, stream)
	return c.persistActivityLocked()
}

// hex4 renders n's low 16 bits as exactly four lowercase hex digits. Per
// SPEC_FULL.md §5.2, a sequence number at or beyond 0x10000 wraps instead
// of panicking: a stream seeing more than 65535 activities within one
// scope degrades to colliding activity ids rather than crashing the host.
func hex4(n int) string {
	return fmt.Sprintf("%04x", uint16(n&0xFFFF))
}
