package state

import (
	"context"
	"log/slog"
	"maps"
	"rssreader/internal/domain"
	"slices"
	"sync"
	"time"
)

type Path string

const (
	PathFeeds               Path = "feeds"
	PathPosts               Path = "posts"
	PathProcessState        Path = "processState"
	PathProcessStateError   Path = "processStateError"
	PathLastUpdateWatermark Path = "lastUpdateWatermark"
	PathFeedWatermarks      Path = "feedWatermarks"
	PathFormValid           Path = "form.valid"
	PathFormProcessState    Path = "form.processState"
	PathFormErrorKind       Path = "form.errorKind"
	PathFormURL             Path = "form.url"
	PathViewedPostIDs       Path = "uiState.viewedPostIds"
	PathPreviewPostID       Path = "uiState.previewPostId"
)

// Listener receives a snapshot taken right after the update that changed its path.
// The snapshot is shared by every listener of that update and must be treated as read-only.
type Listener func(path Path, s domain.AppState)

type subscription struct {
	path     Path
	listener Listener
}

// Store owns the AppState. Updates are applied one at a time and their listeners run
// synchronously before Update returns, so a listener must not call Update or UpdateFunc.
type Store struct {
	updateMu sync.Mutex

	mu    sync.RWMutex
	state domain.AppState

	subsMu sync.RWMutex
	subs   []subscription

	log *slog.Logger
}

func New(log *slog.Logger) *Store {
	return &Store{
		state: domain.NewAppState(),
		log:   log,
	}
}

func (s *Store) Subscribe(path Path, listener Listener) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.subs = append(s.subs, subscription{path: path, listener: listener})
}

func (s *Store) Snapshot() domain.AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return clone(s.state)
}

// Update merges p into the state and returns the leaf paths whose value changed.
func (s *Store) Update(p Patch) []Path {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	return s.apply(p)
}

// UpdateFunc computes a patch from the current state and applies it atomically:
// no other update can land between the read and the write.
func (s *Store) UpdateFunc(fn func(current domain.AppState) Patch) []Path {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	return s.apply(fn(s.Snapshot()))
}

func (s *Store) apply(p Patch) []Path {
	s.mu.Lock()
	changed := merge(&s.state, p)
	var snapshot domain.AppState
	if len(changed) > 0 {
		snapshot = clone(s.state)
	}
	s.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}

	if s.log != nil {
		s.log.DebugContext(context.Background(), "State is updated",
			"paths", changed)
	}

	s.subsMu.RLock()
	subs := slices.Clone(s.subs)
	s.subsMu.RUnlock()

	for _, sub := range subs {
		if slices.Contains(changed, sub.path) {
			sub.listener(sub.path, snapshot)
		}
	}

	return changed
}

func merge(st *domain.AppState, p Patch) []Path {
	var changed []Path

	if p.Feeds != nil {
		if !slices.Equal(st.Feeds, *p.Feeds) {
			changed = append(changed, PathFeeds)
		}
		st.Feeds = slices.Clone(*p.Feeds)
	}

	if p.Posts != nil {
		if !slices.EqualFunc(st.Posts, *p.Posts, postsEqual) {
			changed = append(changed, PathPosts)
		}
		st.Posts = slices.Clone(*p.Posts)
	}

	changed = mergeLeaf(&st.ProcessState, p.ProcessState, PathProcessState, changed)
	changed = mergeLeaf(&st.ProcessStateError, p.ProcessStateError, PathProcessStateError, changed)

	if p.LastUpdateWatermark != nil {
		if !st.LastUpdateWatermark.Equal(*p.LastUpdateWatermark) {
			changed = append(changed, PathLastUpdateWatermark)
		}
		st.LastUpdateWatermark = *p.LastUpdateWatermark
	}

	if p.FeedWatermarks != nil {
		if st.FeedWatermarks == nil {
			st.FeedWatermarks = make(map[string]time.Time, len(p.FeedWatermarks))
		}

		var watermarksChanged bool
		for feedID, mark := range p.FeedWatermarks {
			if current, ok := st.FeedWatermarks[feedID]; !ok || !current.Equal(mark) {
				watermarksChanged = true
			}
			st.FeedWatermarks[feedID] = mark
		}

		if watermarksChanged {
			changed = append(changed, PathFeedWatermarks)
		}
	}

	if f := p.Form; f != nil {
		changed = mergeLeaf(&st.Form.Valid, f.Valid, PathFormValid, changed)
		changed = mergeLeaf(&st.Form.ProcessState, f.ProcessState, PathFormProcessState, changed)
		changed = mergeLeaf(&st.Form.ErrorKind, f.ErrorKind, PathFormErrorKind, changed)
		changed = mergeLeaf(&st.Form.URL, f.URL, PathFormURL, changed)
	}

	if u := p.UIState; u != nil {
		if u.ViewedPostIDs != nil {
			if st.UIState.ViewedPostIDs == nil {
				st.UIState.ViewedPostIDs = make(map[string]struct{}, len(u.ViewedPostIDs))
			}

			before := len(st.UIState.ViewedPostIDs)
			maps.Copy(st.UIState.ViewedPostIDs, u.ViewedPostIDs)

			if len(st.UIState.ViewedPostIDs) != before {
				changed = append(changed, PathViewedPostIDs)
			}
		}

		changed = mergeLeaf(&st.UIState.PreviewPostID, u.PreviewPostID, PathPreviewPostID, changed)
	}

	return changed
}

func mergeLeaf[T comparable](dst *T, src *T, path Path, changed []Path) []Path {
	if src == nil {
		return changed
	}

	if *dst != *src {
		changed = append(changed, path)
	}
	*dst = *src

	return changed
}

func postsEqual(a, b domain.Post) bool {
	return a.ID == b.ID &&
		a.FeedID == b.FeedID &&
		a.Title == b.Title &&
		a.Link == b.Link &&
		a.Description == b.Description &&
		a.Summary == b.Summary &&
		a.PublishedAt.Equal(b.PublishedAt)
}

func clone(st domain.AppState) domain.AppState {
	st.Feeds = slices.Clone(st.Feeds)
	st.Posts = slices.Clone(st.Posts)
	st.FeedWatermarks = maps.Clone(st.FeedWatermarks)
	st.UIState.ViewedPostIDs = maps.Clone(st.UIState.ViewedPostIDs)

	return st
}
