// Package playlist implements the ordered sequence of image references
// the Playlist Server plays through: shuffling, cursor-preserving merges,
// and the skip-set used to hide the second half of a portrait splice.
package playlist

import (
	"math/rand"
	"sync"
)

// Layout is the orientation of an image, memoised the first time it's
// processed.
type Layout int

const (
	Unknown Layout = iota
	Landscape
	Portrait
)

// Reference is one entry in the playlist.
type Reference struct {
	SourcePath string
	URLPath    string
	Layout     Layout
}

// Playlist is the ordered sequence of References plus a cursor and
// skip-set. All mutating and reading operations are guarded by a single
// mutex: the model is iterated by index, not by snapshot, so lazily
// memoised layouts are visible to the very loop doing the memoising.
type Playlist struct {
	mu    sync.Mutex
	items []Reference
	// cursor is the index of the item most recently served, or 0 when empty.
	cursor int
	skip   map[string]struct{}
	rng    *rand.Rand
}

// New creates an empty playlist. rngSeed should come from a
// non-reproducible source (e.g. time.Now().UnixNano()); no ordering
// guarantee is exposed across runs.
func New(rngSeed int64) *Playlist {
	return &Playlist{
		skip: make(map[string]struct{}),
		rng:  rand.New(rand.NewSource(rngSeed)),
	}
}

// Len returns the number of items currently in the playlist.
func (p *Playlist) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Cursor returns the current cursor position.
func (p *Playlist) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// At returns a copy of the reference at index i and whether i was in range.
func (p *Playlist) At(i int) (Reference, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.items) {
		return Reference{}, false
	}
	return p.items[i], true
}

// SnapshotWindow returns copies of the references in [from, to), clamped to
// the playlist's bounds, for the HTTP state endpoint.
func (p *Playlist) SnapshotWindow(from, to int) []Reference {
	p.mu.Lock()
	defer p.mu.Unlock()

	if from < 0 {
		from = 0
	}
	if to > len(p.items) {
		to = len(p.items)
	}
	if from >= to {
		return nil
	}

	out := make([]Reference, to-from)
	copy(out, p.items[from:to])
	return out
}

// MemoiseLayout sets the layout for the entry at index i if it is
// currently Unknown. Subsequent calls for an already-memoised entry are a
// no-op: layout is immutable once set.
func (p *Playlist) MemoiseLayout(i int, layout Layout) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.items) {
		return
	}
	if p.items[i].Layout == Unknown {
		p.items[i].Layout = layout
	}
}

// SetURLPath sets the served URL for the entry at index i, used once an
// artifact has been generated for it.
func (p *Playlist) SetURLPath(i int, urlPath string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.items) {
		return
	}
	p.items[i].URLPath = urlPath
}

// AddSkip marks path as consumed by a portrait splice: it must not be
// shown on its own when the loop later reaches it.
func (p *Playlist) AddSkip(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skip[path] = struct{}{}
}

// TakeSkip reports whether path is in the skip-set and removes it if so.
func (p *Playlist) TakeSkip(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.skip[path]; ok {
		delete(p.skip, path)
		return true
	}
	return false
}

// HasSkip reports whether path is in the skip-set without consuming it.
func (p *Playlist) HasSkip(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.skip[path]
	return ok
}

// ClearSkips empties the skip-set.
func (p *Playlist) ClearSkips() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skip = make(map[string]struct{})
}

// Merge splices newRefs into the playlist. Past items (indices < cursor)
// keep their order and position; everything from cursor onward, plus
// newRefs, is reshuffled together. The item currently at cursor is pinned
// into the past half (unless cursor==0) so a concurrent merge never
// displaces the image mid-play.
func (p *Playlist) Merge(newRefs []Reference) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pastEnd := p.cursor
	if p.cursor > 0 {
		pastEnd = p.cursor + 1 // pin the currently-playing item into the past half
	}
	if pastEnd > len(p.items) {
		pastEnd = len(p.items)
	}

	past := append([]Reference(nil), p.items[:pastEnd]...)
	future := append([]Reference(nil), p.items[pastEnd:]...)
	future = append(future, newRefs...)

	p.shuffleLocked(future)

	p.items = append(past, future...)
	// cursor is untouched: when pinned (cursor > 0) it still indexes the
	// same item, now the last element of past; when cursor == 0 nothing
	// was pinned and 0 remains correct.
}

// Advance moves the cursor to the next item.
func (p *Playlist) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor++
}

// ReshuffleAll shuffles the entire list, resets the cursor to 0, and
// clears the skip-set. Called once a full pass completes without
// interruption.
func (p *Playlist) ReshuffleAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shuffleLocked(p.items)
	p.cursor = 0
	p.skip = make(map[string]struct{})
}

// AppendUnknown appends a reference for each of paths at the end of the
// list with layout Unknown, without reshuffling. Scanner batches do not
// come through here; the engine adds them with Merge.
func (p *Playlist) AppendUnknown(paths []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, path := range paths {
		p.items = append(p.items, Reference{SourcePath: path, Layout: Unknown})
	}
}

func (p *Playlist) shuffleLocked(s []Reference) {
	p.rng.Shuffle(len(s), func(i, j int) {
		s[i], s[j] = s[j], s[i]
	})
}
