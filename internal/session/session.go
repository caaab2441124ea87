// Package session provides the per-user, per-page view state of embedded
// table instances behind a pluggable store. State is scoped by the page's
// content revision: when the revision changes, all state of that page is
// dropped wholesale.
package session

import (
	"sync"
)

// FilterComponent is one persisted filter condition of a table instance.
type FilterComponent struct {
	Column string
	Op     string
	Arg    string
	Mode   string // "AND" or "OR", empty on the first component
}

// ViewState is the session state of one table instance on one page:
// filtering, sorting, paging, editor drafts, lock awareness and media-link
// salts.
type ViewState struct {
	// Filter is the ordered list of filter components. Initialized marks
	// whether the filter was ever set up, so a base filter seeds it only
	// once.
	Filter      []FilterComponent
	Initialized bool

	Sort string
	Skip int
	Num  int

	// Nav remembers the last navigation direction of the record editor.
	Nav string

	// Drafts holds the editor's pending field values keyed by column,
	// including in-flight file uploads. A nil map means no editor is
	// open.
	Drafts map[string]any

	// EditIndex is the ordered position of the record currently edited,
	// used for previous/next navigation.
	EditIndex int

	// RowACL caches resolved per-row access rules keyed by row id.
	RowACL map[int64]map[string]string

	// MediaSalts holds per-link salts keyed by selector digest, bound to
	// media capability tokens handed out for this instance.
	MediaSalts map[string]string
}

// ResetEditor discards all draft state.
func (v *ViewState) ResetEditor() {
	v.Drafts = nil
	v.EditIndex = 0
}

// DropRowACL invalidates the cached rules of one row.
func (v *ViewState) DropRowACL(rowID int64) {
	delete(v.RowACL, rowID)
}

// Store is the session backend. Implementations must drop all state of a
// page when it is requested under a new revision.
type Store interface {
	// View returns the state of one table instance, creating it on first
	// access. The same pointer is returned within a revision.
	View(sessionID, page, revision string, index int) *ViewState

	// ResetPage drops all table state of a page.
	ResetPage(sessionID, page string)
}

type pageState struct {
	revision string
	tables   map[int]*ViewState
}

// MemoryStore is the in-process Store used by the demo host. State lives per
// host session ID.
type MemoryStore struct {
	mu    sync.Mutex
	pages map[string]map[string]*pageState // sessionID -> page -> state
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pages: make(map[string]map[string]*pageState)}
}

// View implements Store.
func (s *MemoryStore) View(sessionID, page, revision string, index int) *ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()

	byPage := s.pages[sessionID]
	if byPage == nil {
		byPage = make(map[string]*pageState)
		s.pages[sessionID] = byPage
	}

	ps := byPage[page]
	if ps == nil || ps.revision != revision {
		ps = &pageState{revision: revision, tables: make(map[int]*ViewState)}
		byPage[page] = ps
	}

	vs := ps.tables[index]
	if vs == nil {
		vs = &ViewState{}
		ps.tables[index] = vs
	}
	return vs
}

// ResetPage implements Store.
func (s *MemoryStore) ResetPage(sessionID, page string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if byPage := s.pages[sessionID]; byPage != nil {
		delete(byPage, page)
	}
}
