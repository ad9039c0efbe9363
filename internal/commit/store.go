// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package commit implements the Commit Store (spec §3.6, §4.7): a
// content-addressed, append-only history of applied network states, each
// with the revert payload needed to undo it. A commit's id is the SHA-256
// of its flattened YAML content, matching a git-object-store's addressing
// scheme (the teacher's own layering model for "append-only history with a
// working tree", per the domain-stack note in SPEC_FULL.md), rendered here
// as a plain directory tree rather than a real git repository — there is
// no VCS library anywhere in the retrieved pack, so the object store is
// hand-rolled on top of the standard library's crypto/sha256 and os.
package commit

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"nipart.dev/nipart/internal/nerr"
	"nipart.dev/nipart/internal/nstate"
)

// Author is the fixed identity every commit is attributed to (spec §4.7:
// "commits with a fixed author identity").
const Author = "nipartd"

// Commit is an immutable record of one successful apply (spec §3.6).
type Commit struct {
	ID          string
	Time        time.Time
	Description string
	Desired     *nstate.NetworkState
	Revert      *nstate.NetworkState
	Persisted   bool
}

// commitDoc is the on-disk envelope for a Commit's object file, in the
// object store's content-addressed `objects/` directory.
type commitDoc struct {
	Time        time.Time        `yaml:"time"`
	Author      string           `yaml:"author"`
	Description string           `yaml:"description"`
	Desired     *stateDoc        `yaml:"desired"`
	Revert      *stateDoc        `yaml:"revert"`
}

// stateDoc is the flattened YAML representation a NetworkState is
// serialized to inside a commit object: one top-level key per entity, all
// in the same object file. Only the working tree is split into files, and
// there only interfaces get a file each.
type stateDoc struct {
	Interfaces []*nstate.Interface    `yaml:"interfaces,omitempty"`
	Routes     []*nstate.RouteEntry   `yaml:"routes,omitempty"`
	RouteRules []*nstate.RouteRule    `yaml:"route-rules,omitempty"`
	DNS        *nstate.DNSConfig      `yaml:"dns-resolver,omitempty"`
	Hostname   string                 `yaml:"hostname,omitempty"`
	OVN        *nstate.OVNConfig      `yaml:"ovn,omitempty"`
}

func toStateDoc(s *nstate.NetworkState) *stateDoc {
	if s == nil {
		return nil
	}
	return &stateDoc{
		Interfaces: s.Ifaces.All(),
		Routes:     s.Routes,
		RouteRules: s.RouteRules,
		DNS:        s.DNS,
		Hostname:   s.Hostname,
		OVN:        s.OVN,
	}
}

func fromStateDoc(d *stateDoc) *nstate.NetworkState {
	if d == nil {
		return nil
	}
	s := nstate.NewNetworkState()
	for _, iface := range d.Interfaces {
		s.Ifaces.Push(iface)
	}
	s.Routes = d.Routes
	s.RouteRules = d.RouteRules
	s.DNS = d.DNS
	s.Hostname = d.Hostname
	s.OVN = d.OVN
	return s
}

// Store is the commit history plus its working tree (spec §4.7): an
// append-only, content-addressed object directory and a sibling directory
// of per-interface YAML files reflecting the current head.
type Store struct {
	objectsDir string
	workDir    string
	head       string
	history    []string // commit IDs, oldest first
}

// Open loads (or initializes) a Store rooted at dir, with objects under
// dir/objects and a working tree under dir/work.
func Open(dir string) (*Store, error) {
	s := &Store{
		objectsDir: filepath.Join(dir, "objects"),
		workDir:    filepath.Join(dir, "work"),
	}
	if err := os.MkdirAll(s.objectsDir, 0o755); err != nil {
		return nil, nerr.Wrapf(err, nerr.KindBug, "commit store: creating objects dir")
	}
	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return nil, nerr.Wrapf(err, nerr.KindBug, "commit store: creating work dir")
	}
	if err := s.loadHistory(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadHistory() error {
	entries, err := os.ReadDir(s.objectsDir)
	if err != nil {
		return nerr.Wrapf(err, nerr.KindBug, "commit store: reading objects dir")
	}
	var ids []string
	type stamped struct {
		id string
		t  time.Time
	}
	var stampedIDs []stamped
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		c, err := s.readObject(e.Name())
		if err != nil {
			return err
		}
		stampedIDs = append(stampedIDs, stamped{id: e.Name(), t: c.Time})
	}
	sort.Slice(stampedIDs, func(i, j int) bool { return stampedIDs[i].t.Before(stampedIDs[j].t) })
	for _, sid := range stampedIDs {
		ids = append(ids, sid.id)
	}
	s.history = ids
	if len(ids) > 0 {
		s.head = ids[len(ids)-1]
	}
	return nil
}

func (s *Store) objectPath(id string) string {
	return filepath.Join(s.objectsDir, id)
}

func (s *Store) readObject(id string) (*Commit, error) {
	raw, err := os.ReadFile(s.objectPath(id))
	if err != nil {
		return nil, nerr.Wrapf(err, nerr.KindBug, "commit store: reading object %s", id)
	}
	var doc commitDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nerr.Wrapf(err, nerr.KindBug, "commit store: decoding object %s", id)
	}
	return &Commit{
		ID:          id,
		Time:        doc.Time,
		Description: doc.Description,
		Desired:     fromStateDoc(doc.Desired),
		Revert:      fromStateDoc(doc.Revert),
		Persisted:   true,
	}, nil
}

// Append writes a new commit with the given desired/revert payloads,
// content-addressed by the SHA-256 of its serialized form, and (unless
// resetWorkingTree is false) rewrites the per-interface working-tree files
// to reflect the new head (spec §4.7).
func (s *Store) Append(description string, desired, revert *nstate.NetworkState, resetWorkingTree bool) (*Commit, error) {
	doc := commitDoc{
		Time:        commitTimestamp(),
		Author:      Author,
		Description: description,
		Desired:     toStateDoc(desired),
		Revert:      toStateDoc(revert),
	}
	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, nerr.Wrapf(err, nerr.KindBug, "commit store: encoding commit")
	}
	id := contentID(raw)
	if err := os.WriteFile(s.objectPath(id), raw, 0o644); err != nil {
		return nil, nerr.Wrapf(err, nerr.KindBug, "commit store: writing object %s", id)
	}
	s.history = append(s.history, id)
	s.head = id

	c := &Commit{ID: id, Time: doc.Time, Description: description, Desired: desired, Revert: revert, Persisted: true}
	if resetWorkingTree {
		if err := s.writeWorkingTree(desired); err != nil {
			return c, err
		}
	}
	return c, nil
}

// writeWorkingTree rewrites one YAML file per interface under the working
// directory, replacing its prior contents entirely (spec §4.7: "a working
// directory tree containing per-interface YAML files named <iface>.yml").
func (s *Store) writeWorkingTree(state *nstate.NetworkState) error {
	existing, err := os.ReadDir(s.workDir)
	if err != nil {
		return nerr.Wrapf(err, nerr.KindBug, "commit store: listing working tree")
	}
	for _, e := range existing {
		if err := os.Remove(filepath.Join(s.workDir, e.Name())); err != nil {
			return nerr.Wrapf(err, nerr.KindBug, "commit store: clearing working tree")
		}
	}
	if state == nil {
		return nil
	}
	for _, iface := range state.Ifaces.All() {
		raw, err := yaml.Marshal(iface)
		if err != nil {
			return nerr.Wrapf(err, nerr.KindBug, "commit store: encoding interface %s", iface.Name)
		}
		path := filepath.Join(s.workDir, iface.Name+".yml")
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return nerr.Wrapf(err, nerr.KindBug, "commit store: writing %s", path)
		}
	}
	return nil
}

// Head returns the current head commit, or nil if the store is empty.
func (s *Store) Head() (*Commit, error) {
	if s.head == "" {
		return nil, nil
	}
	return s.readObject(s.head)
}

// Query returns up to count commits, newest-first (spec §4.7). count <= 0
// means "all".
func (s *Store) Query(count int) ([]*Commit, error) {
	n := len(s.history)
	if count > 0 && count < n {
		n = count
	}
	out := make([]*Commit, 0, n)
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		c, err := s.readObject(s.history[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Get returns a single commit by id.
func (s *Store) Get(id string) (*Commit, error) {
	if !s.has(id) {
		return nil, nerr.Errorf(nerr.KindInvalidArgument, "commit store: no such commit %s", id)
	}
	return s.readObject(id)
}

func (s *Store) has(id string) bool {
	for _, h := range s.history {
		if h == id {
			return true
		}
	}
	return false
}

// Revert returns the network state obtained by applying commit.Revert — the
// caller is responsible for actually driving this through the apply
// pipeline (spec §4.7: "Revert applies commit.revert_state").
func (s *Store) Revert(id string) (*nstate.NetworkState, error) {
	c, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return c.Revert, nil
}

// Remove applies each listed commit's revert in reverse order and detaches
// them from history (spec §4.7: "remove applies each listed commit's
// revert in reverse order and detaches them"). It returns the states to
// apply, in application order, leaving the actual apply to the caller.
func (s *Store) Remove(ids []string) ([]*nstate.NetworkState, error) {
	reverts := make([]*nstate.NetworkState, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		c, err := s.Get(ids[i])
		if err != nil {
			return nil, err
		}
		reverts = append(reverts, c.Revert)
	}
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	kept := s.history[:0:0]
	for _, id := range s.history {
		if !remove[id] {
			kept = append(kept, id)
		}
	}
	s.history = kept
	if len(kept) > 0 {
		s.head = kept[len(kept)-1]
	} else {
		s.head = ""
	}
	return reverts, nil
}

// Rollback computes the cumulative revert needed to move head back to
// target: every commit strictly after target, newest first, since each
// one's revert only undoes that single step (spec §4.7, §9 open question:
// "an implementer should treat the precise ordering of multi-commit revert
// as a decision point" — here, revert-then-revert in reverse chronological
// order, since each commit's revert_state was computed against the state
// immediately preceding it).
func (s *Store) Rollback(target string) ([]*nstate.NetworkState, error) {
	idx := -1
	for i, id := range s.history {
		if id == target {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nerr.Errorf(nerr.KindInvalidArgument, "commit store: no such commit %s", target)
	}
	var reverts []*nstate.NetworkState
	for i := len(s.history) - 1; i > idx; i-- {
		c, err := s.readObject(s.history[i])
		if err != nil {
			return nil, err
		}
		reverts = append(reverts, c.Revert)
	}
	return reverts, nil
}

// Count reports how many commits are in history.
func (s *Store) Count() int { return len(s.history) }

func contentID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// commitTimestamp is the single call site producing a commit's wall-clock
// time, isolated so tests can observe it is always set without depending
// on wall-clock ordering between commits created in the same instant.
var commitTimestamp = func() time.Time { return time.Now().UTC() }
