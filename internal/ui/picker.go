package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"
)

// Picker is the fuzzy session picker overlay.
type Picker struct {
	items   []string
	query   string
	matches []string
	cursor  int
}

// NewPicker creates a picker over the given session keys.
func NewPicker(items []string) *Picker {
	p := &Picker{items: items}
	p.refilter()
	return p
}

func (p *Picker) refilter() {
	if p.query == "" {
		p.matches = append([]string(nil), p.items...)
	} else {
		p.matches = p.matches[:0]
		for _, m := range fuzzy.Find(p.query, p.items) {
			p.matches = append(p.matches, m.Str)
		}
	}
	if p.cursor >= len(p.matches) {
		p.cursor = len(p.matches) - 1
	}
	if p.cursor < 0 {
		p.cursor = 0
	}
}

// Selected returns the highlighted session key, or "".
func (p *Picker) Selected() string {
	if p.cursor < len(p.matches) {
		return p.matches[p.cursor]
	}
	return ""
}

// HandleKey processes one key. done=true means the overlay should close;
// choice is non-empty when a session was picked.
func (p *Picker) HandleKey(msg tea.KeyMsg) (choice string, done bool) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		return "", true
	case tea.KeyEnter:
		return p.Selected(), true
	case tea.KeyUp, tea.KeyCtrlP:
		if p.cursor > 0 {
			p.cursor--
		}
	case tea.KeyDown, tea.KeyCtrlN:
		if p.cursor < len(p.matches)-1 {
			p.cursor++
		}
	case tea.KeyBackspace:
		if p.query != "" {
			p.query = p.query[:len(p.query)-1]
			p.refilter()
		}
	case tea.KeyRunes:
		p.query += string(msg.Runes)
		p.refilter()
	case tea.KeySpace:
		p.query += " "
		p.refilter()
	}
	return "", false
}

// View renders the overlay.
func (p *Picker) View(width int) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("switch session"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("> %s\n", p.query))
	if len(p.matches) == 0 {
		b.WriteString(styleHint.Render("no matches"))
	}
	for i, key := range p.matches {
		line := key
		if i == p.cursor {
			line = stylePickerSel.Render(line)
		}
		b.WriteString(line)
		if i < len(p.matches)-1 {
			b.WriteString("\n")
		}
	}
	return stylePicker.Width(width).Render(b.String())
}
