package main

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/asheshgoplani/termdeck/internal/activity"
	"github.com/asheshgoplani/termdeck/internal/config"
	"github.com/asheshgoplani/termdeck/internal/ui"
)

func TestOrderedSessionKeys(t *testing.T) {
	cfg := &config.Config{Sessions: map[string]config.SessionDef{
		"zeta":  {},
		"alpha": {},
		"mid":   {},
	}}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, orderedSessionKeys(cfg))
}

func TestSupervisorBridgeQueuesUntilBound(t *testing.T) {
	sup := newSupervisorBridge()

	sup.SessionStatus("s1", activity.StatusWorking)
	sup.PlanFileDetected("s1", "docs/plan.md")

	var got []tea.Msg
	sup.bind(func(msg tea.Msg) { got = append(got, msg) })

	assert.Equal(t, []tea.Msg{
		ui.StatusMsg{Key: "s1", Status: activity.StatusWorking},
		ui.PlanMsg{Key: "s1", Path: "docs/plan.md"},
	}, got)

	// After bind, messages pass through directly
	sup.SessionStatus("s1", activity.StatusIdle)
	assert.Len(t, got, 3)
}
