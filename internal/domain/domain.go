package domain

import "time"

type ProcessState string

const (
	ProcessInitial  ProcessState = "initial"
	ProcessFilling  ProcessState = "filling"
	ProcessSending  ProcessState = "sending"
	ProcessFailed   ProcessState = "failed"
	ProcessFinished ProcessState = "finished"
)

type Feed struct {
	ID          string
	URL         string
	Title       string
	Description string
}

type Post struct {
	ID          string
	FeedID      string
	Title       string
	Link        string
	Description string
	Summary     string
	PublishedAt time.Time
}

type FormState struct {
	Valid        bool
	ProcessState ProcessState
	ErrorKind    ErrorKind
	// URL is the last submitted value, cleared once the submission finishes.
	URL string
}

type UIState struct {
	ViewedPostIDs map[string]struct{}
	PreviewPostID string
}

// Viewed reports whether the post has been opened in the preview during this session.
func (u UIState) Viewed(postID string) bool {
	_, ok := u.ViewedPostIDs[postID]
	return ok
}

type AppState struct {
	// Feeds and Posts are ordered newest first.
	Feeds []Feed
	Posts []Post

	ProcessState      ProcessState
	ProcessStateError ErrorKind

	LastUpdateWatermark time.Time
	// FeedWatermarks maps a feed id to the newest publication time known for it.
	FeedWatermarks map[string]time.Time

	Form    FormState
	UIState UIState
}

func NewAppState() AppState {
	return AppState{
		Feeds:          []Feed{},
		Posts:          []Post{},
		ProcessState:   ProcessInitial,
		FeedWatermarks: map[string]time.Time{},
		Form: FormState{
			Valid:        true,
			ProcessState: ProcessFilling,
		},
		UIState: UIState{
			ViewedPostIDs: map[string]struct{}{},
		},
	}
}

func (s AppState) FeedByURL(url string) (Feed, bool) {
	for _, f := range s.Feeds {
		if f.URL == url {
			return f, true
		}
	}

	return Feed{}, false
}

func (s AppState) PostByID(id string) (Post, bool) {
	for _, p := range s.Posts {
		if p.ID == id {
			return p, true
		}
	}

	return Post{}, false
}
