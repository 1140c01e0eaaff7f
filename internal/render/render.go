// Package render turns AppState into the HTML fragments of the page regions and
// re-renders a region whenever one of the state paths it depends on changes.
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"rssreader/internal/domain"
	"rssreader/internal/i18n"
	"rssreader/internal/metrics"
	"rssreader/internal/state"
	"sync"

	"github.com/samber/lo"
)

//go:embed templates/*.html
var templatesFS embed.FS

type Region string

const (
	RegionForm     Region = "form"
	RegionFeedback Region = "feedback"
	RegionFeeds    Region = "feeds"
	RegionPosts    Region = "posts"
	RegionModal    Region = "modal"
)

// Regions lists every region in page order.
var Regions = []Region{RegionForm, RegionFeedback, RegionFeeds, RegionPosts, RegionModal}

func ParseRegion(s string) (Region, bool) {
	r := Region(s)
	return r, lo.Contains(Regions, r)
}

type dependency struct {
	path    state.Path
	regions []Region
}

// dependencies lists, in subscription order, the regions re-rendered when a state path changes.
var dependencies = []dependency{
	{path: state.PathFeeds, regions: []Region{RegionFeeds}},
	{path: state.PathPosts, regions: []Region{RegionPosts}},
	{path: state.PathViewedPostIDs, regions: []Region{RegionPosts}},
	{path: state.PathFormProcessState, regions: []Region{RegionForm, RegionFeedback}},
	{path: state.PathFormValid, regions: []Region{RegionForm, RegionFeedback}},
	{path: state.PathProcessState, regions: []Region{RegionFeedback}},
	{path: state.PathProcessStateError, regions: []Region{RegionFeedback}},
	{path: state.PathPreviewPostID, regions: []Region{RegionModal}},
}

// Publisher receives every freshly rendered fragment.
type Publisher interface {
	Publish(region Region, fragment string)
}

type Renderer struct {
	tmpl    *template.Template
	catalog *i18n.Catalog

	mu        sync.RWMutex
	fragments map[Region]string
	publisher Publisher

	log *slog.Logger
}

func New(catalog *i18n.Catalog, log *slog.Logger) (*Renderer, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"t": catalog.T,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	return &Renderer{
		tmpl:      tmpl,
		catalog:   catalog,
		fragments: make(map[Region]string, len(Regions)),
		log:       log,
	}, nil
}

// SetPublisher replaces the fragment sink. A nil publisher disables pushing.
func (r *Renderer) SetPublisher(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.publisher = p
}

// Bind renders every region from the current state and subscribes to the paths
// each region depends on.
func (r *Renderer) Bind(store *state.Store) {
	snapshot := store.Snapshot()
	for _, region := range Regions {
		r.renderRegion(region, snapshot)
	}

	for _, dep := range dependencies {
		store.Subscribe(dep.path, func(_ state.Path, s domain.AppState) {
			for _, region := range dep.regions {
				r.renderRegion(region, s)
			}
		})
	}
}

// Fragment returns the latest rendered fragment of a region.
func (r *Renderer) Fragment(region Region) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fragments[region]
	return f, ok
}

// Page writes the full document with the latest fragment of every region.
func (r *Renderer) Page(w io.Writer) error {
	r.mu.RLock()
	data := struct {
		Lang     string
		Form     template.HTML
		Feedback template.HTML
		Feeds    template.HTML
		Posts    template.HTML
		Modal    template.HTML
	}{
		Lang:     r.catalog.Locale(),
		Form:     r.trusted(RegionForm),
		Feedback: r.trusted(RegionFeedback),
		Feeds:    r.trusted(RegionFeeds),
		Posts:    r.trusted(RegionPosts),
		Modal:    r.trusted(RegionModal),
	}
	r.mu.RUnlock()

	if err := r.tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		return fmt.Errorf("execute layout: %w", err)
	}

	return nil
}

// Render produces the fragment of region for s without storing or publishing it.
func (r *Renderer) Render(region Region, s domain.AppState) (string, error) {
	var data any

	switch region {
	case RegionForm:
		data = formView(s.Form)
	case RegionFeedback:
		data = feedbackView(s)
	case RegionFeeds:
		data = s.Feeds
	case RegionPosts:
		if len(s.Posts) == 0 {
			return "", nil
		}
		data = postViews(s)
	case RegionModal:
		post, ok := s.PostByID(s.UIState.PreviewPostID)
		if s.UIState.PreviewPostID == "" || !ok {
			return "", nil
		}
		data = post
	default:
		return "", fmt.Errorf("unknown region %q", region)
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, string(region), data); err != nil {
		return "", fmt.Errorf("execute %s template: %w", region, err)
	}

	return buf.String(), nil
}

// trusted must be called with r.mu held.
func (r *Renderer) trusted(region Region) template.HTML {
	//nolint:gosec // fragments are produced by html/template
	return template.HTML(r.fragments[region])
}

func (r *Renderer) renderRegion(region Region, s domain.AppState) {
	fragment, err := r.Render(region, s)
	if err != nil {
		r.log.ErrorContext(context.Background(), "Failed to render region",
			"error", err,
			"region", region)
		return
	}

	r.mu.Lock()
	r.fragments[region] = fragment
	publisher := r.publisher
	r.mu.Unlock()

	metrics.Renders.WithLabelValues(string(region)).Inc()

	if publisher != nil {
		publisher.Publish(region, fragment)
	}
}
