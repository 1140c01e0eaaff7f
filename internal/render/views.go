package render

import (
	"rssreader/internal/domain"

	"github.com/samber/lo"
)

type formData struct {
	Value     string
	Invalid   bool
	Disabled  bool
	Autofocus bool
}

func formView(f domain.FormState) formData {
	d := formData{
		Value:    f.URL,
		Invalid:  !f.Valid,
		Disabled: f.ProcessState == domain.ProcessSending,
	}

	if f.ProcessState == domain.ProcessFinished {
		d.Value = ""
		d.Autofocus = true
	}

	return d
}

type feedbackData struct {
	Message string
	Class   string
}

// feedbackView picks the single message to show: a form validation failure wins
// over a global failure, which wins over a global success.
func feedbackView(s domain.AppState) feedbackData {
	switch {
	case s.Form.ProcessState == domain.ProcessFailed && !s.Form.Valid:
		return feedbackData{
			Message: "messages.form." + string(s.Form.ErrorKind),
			Class:   "text-danger",
		}
	case s.ProcessState == domain.ProcessFailed:
		kind := s.ProcessStateError
		if kind == domain.ErrorNone {
			kind = domain.ErrorUnknown
		}

		return feedbackData{
			Message: "messages.app." + string(kind),
			Class:   "text-danger",
		}
	case s.ProcessState == domain.ProcessFinished:
		return feedbackData{
			Message: "messages.app.addRSS",
			Class:   "text-success",
		}
	default:
		return feedbackData{}
	}
}

type postData struct {
	ID     string
	Title  string
	Link   string
	Viewed bool
}

func postViews(s domain.AppState) []postData {
	return lo.Map(s.Posts, func(p domain.Post, _ int) postData {
		return postData{
			ID:     p.ID,
			Title:  p.Title,
			Link:   p.Link,
			Viewed: s.UIState.Viewed(p.ID),
		}
	})
}
