// Package ui hosts the terminal front-end: one tab per session, a
// viewport pane for the active session's output, and key bindings that
// drive scrolling, follow mode and session lifecycle.
package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/termdeck/internal/activity"
	"github.com/asheshgoplani/termdeck/internal/clipboard"
	"github.com/asheshgoplani/termdeck/internal/controller"
	"github.com/asheshgoplani/termdeck/internal/follow"
	"github.com/asheshgoplani/termdeck/internal/render"
)

// repaintInterval drives output flushes into the viewport widget.
const repaintInterval = 100 * time.Millisecond

// chrome rows: tab bar + status bar + pane border
const chromeRows = 4

// StatusMsg is sent by the supervisor when a session's activity changes.
type StatusMsg struct {
	Key    string
	Status activity.Status
}

// PlanMsg is sent when a plan file path is detected on an agent channel.
type PlanMsg struct {
	Key  string
	Path string
}

// SessionClosedMsg removes a tab after an external close.
type SessionClosedMsg struct {
	Key string
}

type tickMsg time.Time

// App is the root bubbletea model.
type App struct {
	ctrl   *controller.Controller
	frames *TeaFrames

	portsMu sync.Mutex
	ports   map[string]*render.Viewport

	order  []string
	active int

	statuses  map[string]activity.Status
	notice    string
	inputMode bool
	picker    *Picker

	width      int
	height     int
	scrollback int

	quitting bool
}

// NewApp creates the root model. Ports for sessions opened through the
// controller come from MakePort.
func NewApp(ctrl *controller.Controller, frames *TeaFrames, scrollback int) *App {
	return &App{
		ctrl:       ctrl,
		frames:     frames,
		ports:      make(map[string]*render.Viewport),
		statuses:   make(map[string]activity.Status),
		scrollback: scrollback,
		width:      80,
		height:     24,
	}
}

// SetController wires the controller after construction; the controller
// needs MakePort, so the app has to exist first.
func (a *App) SetController(c *controller.Controller) {
	a.ctrl = c
}

// MakePort is the controller's PortFactory: each session gets its own
// viewport sized to the current pane.
func (a *App) MakePort(key string) render.Port {
	a.portsMu.Lock()
	defer a.portsMu.Unlock()
	vp := render.NewViewport(a.paneWidth(), a.paneHeight(), a.scrollback)
	a.ports[key] = vp
	if !contains(a.order, key) {
		a.order = append(a.order, key)
	}
	return vp
}

// AddSession registers a tab for an already-opened session key.
func (a *App) AddSession(key string) {
	a.portsMu.Lock()
	defer a.portsMu.Unlock()
	if !contains(a.order, key) {
		a.order = append(a.order, key)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (a *App) paneWidth() int {
	w := a.width - 2
	if w < 1 {
		w = 1
	}
	return w
}

func (a *App) paneHeight() int {
	h := a.height - chromeRows
	if h < 1 {
		h = 1
	}
	return h
}

func (a *App) activeKey() string {
	if a.active >= 0 && a.active < len(a.order) {
		return a.order[a.active]
	}
	return ""
}

func (a *App) activePort() *render.Viewport {
	a.portsMu.Lock()
	defer a.portsMu.Unlock()
	return a.ports[a.activeKey()]
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(tick(), tea.EnableMouseCellMotion)
}

func tick() tea.Cmd {
	return tea.Tick(repaintInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		msg.fn()
		return a, nil

	case tickMsg:
		if vp := a.activePort(); vp != nil {
			vp.Flush()
		}
		return a, tick()

	case StatusMsg:
		a.statuses[msg.Key] = msg.Status
		return a, nil

	case PlanMsg:
		a.notice = fmt.Sprintf("%s: plan %s", msg.Key, msg.Path)
		return a, nil

	case SessionClosedMsg:
		a.removeSession(msg.Key)
		return a, nil

	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.portsMu.Lock()
		for _, vp := range a.ports {
			vp.SetSize(a.paneWidth(), a.paneHeight())
		}
		a.portsMu.Unlock()
		for _, key := range a.order {
			a.ctrl.Resize(key, a.paneWidth(), a.paneHeight())
		}
		return a, nil

	case tea.MouseMsg:
		return a.handleMouse(msg)

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a *App) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	key := a.activeKey()
	if key == "" {
		return a, nil
	}
	switch msg.Type {
	case tea.MouseWheelUp:
		a.ctrl.HandleScroll(key, follow.DirUp, 3)
	case tea.MouseWheelDown:
		a.ctrl.HandleScroll(key, follow.DirDown, 3)
	case tea.MouseLeft:
		a.ctrl.NoteInteraction(key)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.picker != nil {
		choice, done := a.picker.HandleKey(msg)
		if done {
			a.picker = nil
			if choice != "" {
				a.switchTo(choice)
			}
		}
		return a, nil
	}

	if a.inputMode {
		return a.handleInputKey(msg)
	}

	key := a.activeKey()
	switch msg.String() {
	case "q", "ctrl+c":
		a.quitting = true
		return a, tea.Quit

	case "tab":
		a.cycle(1)
	case "shift+tab":
		a.cycle(-1)
	case "/":
		a.picker = NewPicker(append([]string(nil), a.order...))

	case "i", "enter":
		if key != "" {
			a.inputMode = true
			a.ctrl.NoteInteraction(key)
		}

	case "up", "k":
		if key != "" {
			a.ctrl.HandleScroll(key, follow.DirUp, 1)
		}
	case "down", "j":
		if key != "" {
			a.ctrl.HandleScroll(key, follow.DirDown, 1)
		}
	case "pgup":
		if key != "" {
			a.ctrl.HandleScroll(key, follow.DirUp, a.paneHeight())
		}
	case "pgdown":
		if key != "" {
			a.ctrl.HandleScroll(key, follow.DirDown, a.paneHeight())
		}
	case "G", "end":
		if key != "" {
			a.ctrl.ScrollToBottom(key)
		}

	case "y":
		if vp := a.activePort(); vp != nil {
			text := strings.Join(vp.Lines(), "\n")
			if res, err := clipboard.Copy(text, true); err != nil {
				a.notice = fmt.Sprintf("copy failed: %v", err)
			} else {
				a.notice = fmt.Sprintf("copied %d lines via %s", res.LineCount, res.Method)
			}
		}

	case "ctrl+r":
		if key != "" {
			_ = a.ctrl.Restart(key)
		}
	case "ctrl+d":
		if key != "" {
			a.ctrl.Close(key)
			a.removeSession(key)
		}
	}
	return a, nil
}

func (a *App) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEsc {
		a.inputMode = false
		return a, nil
	}
	key := a.activeKey()
	if key == "" {
		a.inputMode = false
		return a, nil
	}
	if b := keyToBytes(msg); len(b) > 0 {
		a.ctrl.SendInput(key, b)
	}
	return a, nil
}

// keyToBytes maps a key event to the byte sequence a terminal would send.
func keyToBytes(msg tea.KeyMsg) []byte {
	switch msg.Type {
	case tea.KeyRunes:
		return []byte(string(msg.Runes))
	case tea.KeyEnter:
		return []byte("\r")
	case tea.KeySpace:
		return []byte(" ")
	case tea.KeyTab:
		return []byte("\t")
	case tea.KeyBackspace:
		return []byte{0x7f}
	case tea.KeyCtrlC:
		return []byte{0x03}
	case tea.KeyCtrlD:
		return []byte{0x04}
	case tea.KeyCtrlZ:
		return []byte{0x1a}
	case tea.KeyUp:
		return []byte("\x1b[A")
	case tea.KeyDown:
		return []byte("\x1b[B")
	case tea.KeyRight:
		return []byte("\x1b[C")
	case tea.KeyLeft:
		return []byte("\x1b[D")
	}
	return nil
}

func (a *App) cycle(delta int) {
	if len(a.order) == 0 {
		return
	}
	a.active = (a.active + delta + len(a.order)) % len(a.order)
	if key := a.activeKey(); key != "" {
		a.ctrl.NoteInteraction(key)
	}
}

func (a *App) switchTo(key string) {
	for i, k := range a.order {
		if k == key {
			a.active = i
			a.ctrl.NoteInteraction(key)
			return
		}
	}
}

func (a *App) removeSession(key string) {
	a.portsMu.Lock()
	delete(a.ports, key)
	a.portsMu.Unlock()
	for i, k := range a.order {
		if k == key {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	if a.active >= len(a.order) && a.active > 0 {
		a.active = len(a.order) - 1
	}
	delete(a.statuses, key)
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(a.tabBar())
	b.WriteString("\n")

	if vp := a.activePort(); vp != nil {
		b.WriteString(stylePaneBorder.Width(a.paneWidth()).Render(vp.View()))
	} else {
		empty := styleHint.Render("no sessions — configure [sessions] in config.toml")
		b.WriteString(stylePaneBorder.Width(a.paneWidth()).Height(a.paneHeight()).Render(empty))
	}
	b.WriteString("\n")
	b.WriteString(a.statusBar())

	if a.picker != nil {
		return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center,
			a.picker.View(a.width/2))
	}
	return b.String()
}

func (a *App) tabBar() string {
	if len(a.order) == 0 {
		return styleTab.Render("termdeck")
	}
	tabs := make([]string, 0, len(a.order))
	for i, key := range a.order {
		label := fmt.Sprintf("%s %s", statusGlyph(a.statuses[key]), key)
		if i == a.active {
			tabs = append(tabs, styleTabActive.Render(label))
		} else {
			tabs = append(tabs, styleTab.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func statusGlyph(st activity.Status) string {
	if st == activity.StatusWorking {
		return styleWorking.Render("●")
	}
	return styleIdle.Render("○")
}

func (a *App) statusBar() string {
	key := a.activeKey()
	left := ""
	if key != "" {
		mode := "scroll"
		if a.inputMode {
			mode = "input"
		}
		followState := "following"
		if !a.ctrl.Following(key) {
			followState = "scrolled up"
		}
		left = fmt.Sprintf(" %s │ %s │ %s", key, mode, followState)
	}

	right := "i:input /:switch G:bottom y:copy ctrl+r:restart q:quit "
	if a.inputMode {
		right = "esc:leave input "
	}
	if a.notice != "" {
		right = runewidth.Truncate(a.notice, a.width/2, "…") + " │ " + right
	}

	pad := a.width - runewidth.StringWidth(left) - runewidth.StringWidth(right)
	if pad < 1 {
		pad = 1
	}
	return styleStatusBar.Width(a.width).Render(left + strings.Repeat(" ", pad) + right)
}
