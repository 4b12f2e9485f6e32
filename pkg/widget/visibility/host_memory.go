package visibility

import (
	"fmt"
	"slices"
	"sync"
)

// MemoryElement is an element of a MemoryHost.
type MemoryElement struct {
	ID      string
	Classes []string

	mu      sync.Mutex
	display string
}

func NewMemoryElement(id string, display string, classes ...string) *MemoryElement {
	return &MemoryElement{ID: id, Classes: classes, display: display}
}

// Key is the element's identity. Ids are optional and not unique on a host
// page, so the pointer identifies the element.
func (e *MemoryElement) Key() string { return fmt.Sprintf("%p", e) }

func (e *MemoryElement) Display() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.display
}

func (e *MemoryElement) SetDisplay(display string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.display = display
}

// MemoryHost is an in-memory host page.
type MemoryHost struct {
	Elements []*MemoryElement
}

var _ Host = &MemoryHost{}

func (h *MemoryHost) Find(t Target) []Element {
	var out []Element
	for _, el := range h.Elements {
		switch t.Kind {
		case TargetID:
			if el.ID == t.Name {
				out = append(out, el)
			}
		case TargetClass:
			if slices.Contains(el.Classes, t.Name) {
				out = append(out, el)
			}
		}
	}
	return out
}
