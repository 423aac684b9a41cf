package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ErrMissingParent is returned by LinkGraph.Update when the parent URL
// resolves to an id that has no Link behind it. It indicates a corrupted
// graph and is never expected in practice.
var ErrMissingParent = errors.New("could not find parent link")

// Link is one crawled page.
//
// A Link is created the first time its URL is registered and is then only
// ever extended: ids are added to Parents and Children, images and titles
// are appended.
type Link struct {
	// ID is a random UUID assigned when the URL is first registered.
	ID string

	// URL is the normalized page URL, fragment stripped.
	URL string

	// Parents holds the ids of pages this page was discovered from.
	Parents map[string]struct{}

	// Children holds the ids of pages this page links to.
	// Only pages that were already registered at update time are recorded.
	Children map[string]struct{}

	// Images holds the images found on the page in first-seen order,
	// deduplicated by Image.Link.
	Images []Image

	// Titles holds the title texts found on the page in first-seen order.
	Titles []string
}

func newLink(id, url string) *Link {
	return &Link{
		ID:       id,
		URL:      url,
		Parents:  make(map[string]struct{}),
		Children: make(map[string]struct{}),
	}
}

// ParentIDs returns the parent ids in sorted order.
func (l *Link) ParentIDs() []string {
	return sortedKeys(l.Parents)
}

// ChildIDs returns the child ids in sorted order.
func (l *Link) ChildIDs() []string {
	return sortedKeys(l.Children)
}

// MarshalJSON encodes the parent and child sets as sorted arrays so the
// graph file is stable between runs over the same site.
func (l *Link) MarshalJSON() ([]byte, error) {
	images := l.Images
	if images == nil {
		images = []Image{}
	}
	titles := l.Titles
	if titles == nil {
		titles = []string{}
	}
	return json.Marshal(struct {
		ID       string   `json:"id"`
		URL      string   `json:"url"`
		Parents  []string `json:"parents"`
		Children []string `json:"children"`
		Images   []Image  `json:"images"`
		Titles   []string `json:"titles"`
	}{
		ID:       l.ID,
		URL:      l.URL,
		Parents:  l.ParentIDs(),
		Children: l.ChildIDs(),
		Images:   images,
		Titles:   titles,
	})
}

func (l *Link) addImages(images []Image) {
	for _, img := range images {
		if l.hasImage(img.Link) {
			continue
		}
		l.Images = append(l.Images, img)
	}
}

func (l *Link) hasImage(link string) bool {
	for _, img := range l.Images {
		if img.Link == link {
			return true
		}
	}
	return false
}

func (l *Link) addTitles(titles []string) {
	for _, title := range titles {
		if l.hasTitle(title) {
			continue
		}
		l.Titles = append(l.Titles, title)
	}
}

func (l *Link) hasTitle(title string) bool {
	for _, t := range l.Titles {
		if t == title {
			return true
		}
	}
	return false
}

// LinkGraph is the deduplicated set of crawled pages.
//
// Every normalized URL maps to exactly one Link. The graph only grows:
// nothing is ever removed.
//
// LinkGraph is not safe for concurrent use. The crawler guards it with
// its own lock.
type LinkGraph struct {
	links   map[string]*Link
	linkIDs map[string]string
	newID   func() string
}

// NewLinkGraph creates an empty LinkGraph that assigns UUID v4 ids.
func NewLinkGraph() *LinkGraph {
	return &LinkGraph{
		links:   make(map[string]*Link),
		linkIDs: make(map[string]string),
		newID:   uuid.NewString,
	}
}

// Update records a crawled page.
//
// The url is registered if it is new. If parentURL is already registered,
// the parent edge is recorded on both sides. Child URLs that are already
// registered are added to the page's children; unknown children are
// ignored. Images are appended deduplicated by link and titles
// deduplicated by value, keeping first-seen order.
//
// Calling Update again for the same url extends the existing Link.
func (g *LinkGraph) Update(url, parentURL string, childURLs []string, images []Image, titles []string) error {
	parentID, hasParent := g.linkIDs[parentURL]
	if parentURL == "" {
		hasParent = false
	}

	// Children are resolved before this url is registered so a page never
	// becomes its own child on first registration.
	childIDs := make([]string, 0, len(childURLs))
	for _, child := range childURLs {
		if id, ok := g.linkIDs[child]; ok {
			childIDs = append(childIDs, id)
		}
	}

	link := g.register(url)
	for _, id := range childIDs {
		link.Children[id] = struct{}{}
	}
	link.addImages(images)
	link.addTitles(titles)

	if !hasParent {
		return nil
	}
	parent, ok := g.links[parentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingParent, parentURL)
	}
	link.Parents[parentID] = struct{}{}
	parent.Children[link.ID] = struct{}{}
	return nil
}

// register returns the Link for url, creating it if needed.
func (g *LinkGraph) register(url string) *Link {
	if id, ok := g.linkIDs[url]; ok {
		if link, ok := g.links[id]; ok {
			return link
		}
	}
	link := newLink(g.newID(), url)
	g.links[link.ID] = link
	g.linkIDs[url] = link.ID
	return link
}

// Visited reports whether url has been registered.
func (g *LinkGraph) Visited(url string) bool {
	_, ok := g.linkIDs[url]
	return ok
}

// Len returns the number of registered pages.
func (g *LinkGraph) Len() int {
	return len(g.links)
}

// ID returns the id registered for url.
func (g *LinkGraph) ID(url string) (string, bool) {
	id, ok := g.linkIDs[url]
	return id, ok
}

// Link returns the Link with the given id.
func (g *LinkGraph) Link(id string) (*Link, bool) {
	link, ok := g.links[id]
	return link, ok
}

// Each calls fn for every Link ordered by URL.
// Iteration stops when fn returns false.
func (g *LinkGraph) Each(fn func(*Link) bool) {
	urls := sortedKeys(g.linkIDs)
	for _, url := range urls {
		link, ok := g.links[g.linkIDs[url]]
		if !ok {
			continue
		}
		if !fn(link) {
			return
		}
	}
}

// ImageCount returns the number of (page, image) pairs in the graph.
func (g *LinkGraph) ImageCount() int {
	n := 0
	for _, link := range g.links {
		n += len(link.Images)
	}
	return n
}

// MarshalJSON encodes the graph as {"links": {id: Link}, "link_ids": {url: id}}.
func (g *LinkGraph) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Links   map[string]*Link  `json:"links"`
		LinkIDs map[string]string `json:"link_ids"`
	}{
		Links:   g.links,
		LinkIDs: g.linkIDs,
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
