package subs

import "testing"

func TestPaneRegistry_EmptyLimits(t *testing.T) {
	r := newPaneRegistry()
	if got := r.normalFastLimit(); got != fastBuffer {
		t.Errorf("normalFastLimit: got %d, want %d", got, fastBuffer)
	}
	if got := r.slowLimit(); got != 0 {
		t.Errorf("slowLimit: got %d, want 0", got)
	}
}

func TestPaneRegistry_SumsAcrossPanes(t *testing.T) {
	r := newPaneRegistry()
	r.setVisible("trending", 5)
	r.setVisible("new", 5)
	r.setRendered("trending", 30)
	r.setRendered("new", 30)

	if got := r.normalFastLimit(); got != 16 {
		t.Errorf("normalFastLimit: got %d, want 16", got)
	}
	if got := r.slowLimit(); got != 60 {
		t.Errorf("slowLimit: got %d, want 60", got)
	}
}

func TestPaneRegistry_UpsertReplaces(t *testing.T) {
	r := newPaneRegistry()
	r.setVisible("trending", 10)
	r.setVisible("trending", 3)

	if got := r.normalFastLimit(); got != 3+fastBuffer {
		t.Errorf("normalFastLimit: got %d, want %d", got, 3+fastBuffer)
	}
}

func TestPaneRegistry_NegativeClampsToZero(t *testing.T) {
	r := newPaneRegistry()
	r.setVisible("trending", -7)
	r.setRendered("trending", -1)

	if got := r.normalFastLimit(); got != fastBuffer {
		t.Errorf("normalFastLimit: got %d, want %d", got, fastBuffer)
	}
	if got := r.slowLimit(); got != 0 {
		t.Errorf("slowLimit: got %d, want 0", got)
	}
}

func TestPaneRegistry_VisibleAndRenderedIndependent(t *testing.T) {
	r := newPaneRegistry()
	r.setVisible("trending", 5)
	r.setRendered("trending", 40)
	r.setVisible("trending", 8)

	if got := r.slowLimit(); got != 40 {
		t.Errorf("slowLimit after visible update: got %d, want 40", got)
	}
	if got := r.normalFastLimit(); got != 8+fastBuffer {
		t.Errorf("normalFastLimit: got %d, want %d", got, 8+fastBuffer)
	}
}
