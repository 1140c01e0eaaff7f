package state

import (
	"rssreader/internal/domain"
	"time"
)

// Patch is a partial AppState. Nil fields are left untouched; nested patches and maps
// are merged key by key; sequences replace the current value wholesale.
type Patch struct {
	Feeds               *[]domain.Feed
	Posts               *[]domain.Post
	ProcessState        *domain.ProcessState
	ProcessStateError   *domain.ErrorKind
	LastUpdateWatermark *time.Time
	FeedWatermarks      map[string]time.Time
	Form                *FormPatch
	UIState             *UIPatch
}

type FormPatch struct {
	Valid        *bool
	ProcessState *domain.ProcessState
	ErrorKind    *domain.ErrorKind
	URL          *string
}

type UIPatch struct {
	// ViewedPostIDs is merged into the current set, read marks are never removed.
	ViewedPostIDs map[string]struct{}
	PreviewPostID *string
}

func Set[T any](v T) *T {
	return &v
}

func Viewed(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	return set
}
