package wizard

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brcamerge/brcamerge/internal/mapping"
)

// Review runs the suggestion review screen and returns the accepted groups.
// A cancelled review returns an error.
func Review(groups []mapping.Group, sourceKeys, existing []string) ([]mapping.Group, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	m := NewReviewModel(groups, sourceKeys, existing)
	p := tea.NewProgram(m, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("running review: %w", err)
	}

	rm := finalModel.(ReviewModel)
	if rm.Cancelled() {
		return nil, fmt.Errorf("cancelled")
	}
	return rm.Accepted(), nil
}
