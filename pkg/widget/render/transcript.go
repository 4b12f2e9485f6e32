package render

import (
	"slices"
	"sync"
)

// Transcript is an in-memory Chrome. It records every state change so the
// widget can be driven and inspected without a real surface.
type Transcript struct {
	mu sync.Mutex

	title   string
	mounted bool

	order    []string
	messages map[string]Message
	upserts  []Message

	thinking      bool
	submitEnabled bool
	inputClears   int
	active        bool
	launcher      bool
	backdrop      bool
	alerts        []string
}

var _ Chrome = &Transcript{}

func NewTranscript() *Transcript {
	return &Transcript{messages: map[string]Message{}, submitEnabled: true}
}

func (t *Transcript) Mount(title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.title = title
	t.mounted = true
}

func (t *Transcript) Unmount() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mounted = false
}

func (t *Transcript) Mounted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mounted
}

func (t *Transcript) Title() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.title
}

func (t *Transcript) HasMessage(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.messages[id]
	return ok
}

func (t *Transcript) UpsertMessage(m Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.messages[m.ID]; !ok {
		t.order = append(t.order, m.ID)
	}
	t.messages[m.ID] = m
	t.upserts = append(t.upserts, m)
}

func (t *Transcript) ClearMessages() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = nil
	t.messages = map[string]Message{}
}

func (t *Transcript) MessageCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Messages returns the rendered list in display order.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.messages[id])
	}
	return out
}

// Upserts returns every UpsertMessage call in order.
func (t *Transcript) Upserts() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.upserts)
}

func (t *Transcript) ShowThinking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.thinking = true
}

func (t *Transcript) HideThinking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.thinking = false
}

func (t *Transcript) Thinking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.thinking
}

func (t *Transcript) SetSubmitEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.submitEnabled = enabled
}

func (t *Transcript) SubmitEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.submitEnabled
}

func (t *Transcript) ClearInput() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputClears++
}

func (t *Transcript) InputClears() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputClears
}

func (t *Transcript) SetActiveIndicator(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = active
}

func (t *Transcript) ActiveIndicator() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Transcript) SetLauncherVisible(visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.launcher = visible
}

func (t *Transcript) LauncherVisible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.launcher
}

func (t *Transcript) SetBackdropVisible(visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.backdrop = visible
}

func (t *Transcript) BackdropVisible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.backdrop
}

func (t *Transcript) Alert(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alerts = append(t.alerts, text)
}

func (t *Transcript) Alerts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.alerts)
}
