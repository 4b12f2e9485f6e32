package visibility

import (
	"strings"
	"sync"
)

type TargetKind int

const (
	TargetID TargetKind = iota
	TargetClass
)

// Target names host-page elements by id or class.
type Target struct {
	Kind TargetKind
	Name string
}

// Targets builds the target list from configured ids and classes.
func Targets(ids []string, classes []string) []Target {
	out := make([]Target, 0, len(ids)+len(classes))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, Target{Kind: TargetID, Name: id})
		}
	}
	for _, c := range classes {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, Target{Kind: TargetClass, Name: c})
		}
	}
	return out
}

// Element is a host-page element whose inline display can be changed.
type Element interface {
	Key() string
	Display() string
	SetDisplay(display string)
}

// Host looks up host-page elements.
type Host interface {
	Find(target Target) []Element
}

// HideTracker hides and restores the hide targets. It remembers each hidden
// element's prior inline display so restoring is exact; hiding twice or
// restoring twice does nothing.
type HideTracker struct {
	host    Host
	targets []Target

	mu     sync.Mutex
	hidden map[string]hiddenElement
}

type hiddenElement struct {
	el    Element
	prior string
}

func NewHideTracker(host Host, targets []Target) *HideTracker {
	return &HideTracker{host: host, targets: targets, hidden: map[string]hiddenElement{}}
}

// Apply hides the targets when hide is true and restores them otherwise.
func (h *HideTracker) Apply(hide bool) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if hide {
		h.hideLocked()
		return
	}
	for key, he := range h.hidden {
		he.el.SetDisplay(he.prior)
		delete(h.hidden, key)
	}
}

func (h *HideTracker) hideLocked() {
	if h.host == nil {
		return
	}
	for _, t := range h.targets {
		for _, el := range h.host.Find(t) {
			key := el.Key()
			if _, ok := h.hidden[key]; ok {
				continue
			}
			h.hidden[key] = hiddenElement{el: el, prior: el.Display()}
			el.SetDisplay("none")
		}
	}
}

// Hidden reports how many elements are currently hidden.
func (h *HideTracker) Hidden() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hidden)
}
