package subs

// fastBuffer is the margin added to the raw visible-row sum when computing
// the unlocked fast-tier capacity, so minor scroll fluctuations don't churn
// subscriptions at the boundary.
const fastBuffer = 6

// paneCounts holds one pane's current row counts as reported by the viewport
// tracker. visible is the on-screen rows; rendered is visible plus the
// off-screen buffer rows the pane keeps mounted.
type paneCounts struct {
	visible  int
	rendered int
}

// paneRegistry tracks row counts per named pane. Panes are created on first
// write and removed only by a full reset.
type paneRegistry struct {
	panes map[string]paneCounts
}

func newPaneRegistry() *paneRegistry {
	return &paneRegistry{panes: make(map[string]paneCounts)}
}

// setVisible upserts the visible-row count for pane, clamping n to >= 0.
func (r *paneRegistry) setVisible(pane string, n int) {
	if n < 0 {
		n = 0
	}
	pc := r.panes[pane]
	pc.visible = n
	r.panes[pane] = pc
}

// setRendered upserts the rendered-row count for pane, clamping n to >= 0.
func (r *paneRegistry) setRendered(pane string, n int) {
	if n < 0 {
		n = 0
	}
	pc := r.panes[pane]
	pc.rendered = n
	r.panes[pane] = pc
}

// normalFastLimit is the unlocked fast-tier capacity: the visible-row sum
// across all panes plus the fixed buffer.
func (r *paneRegistry) normalFastLimit() int {
	total := 0
	for _, pc := range r.panes {
		total += pc.visible
	}
	return total + fastBuffer
}

// slowLimit is the slow-tier capacity: the rendered-row sum across all panes.
func (r *paneRegistry) slowLimit() int {
	total := 0
	for _, pc := range r.panes {
		total += pc.rendered
	}
	return total
}
