package shell

import (
	"github.com/IcebergThings/railshell/internal/compositor"
	"github.com/IcebergThings/railshell/internal/rail"
)

// Layer is the stacking stratum a surface resides in. Every managed
// surface is in exactly one layer; top-down order is Cursor, Fullscreen,
// Normal (single workspace), Minimized.
type Layer int

const (
	LayerNone Layer = iota
	LayerCursor
	LayerFullscreen
	LayerNormal
	LayerMinimized
)

// layerOrder is the top-down traversal order for z-order reporting.
var layerOrder = []Layer{LayerCursor, LayerFullscreen, LayerNormal, LayerMinimized}

// layerList is an ordered stack of surfaces, index 0 on top.
type layerList struct {
	surfaces []*Surface
}

func (l *layerList) remove(s *Surface) {
	for i, cur := range l.surfaces {
		if cur == s {
			l.surfaces = append(l.surfaces[:i], l.surfaces[i+1:]...)
			return
		}
	}
}

func (l *layerList) pushTop(s *Surface) {
	l.remove(s)
	l.surfaces = append([]*Surface{s}, l.surfaces...)
}

// targetLayer computes where a surface belongs: fullscreen-and-not-
// lowered wins the Fullscreen layer, minimized windows sink, everything
// else lives in the workspace's Normal layer.
func targetLayer(s *Surface) Layer {
	switch {
	case s.minimized:
		return LayerMinimized
	case s.fullscreen && !s.lowered:
		return LayerFullscreen
	default:
		return LayerNormal
	}
}

// recomputeLayer moves the surface into its target layer, propagating
// the layer to all children.
func (m *Manager) recomputeLayer(s *Surface) {
	m.moveToLayer(s, targetLayer(s))
}

// moveToLayer relocates a surface and drags its non-minimized children
// along: transients always share their parent's stratum.
func (m *Manager) moveToLayer(s *Surface, target Layer) {
	if s.layer == target {
		return
	}

	m.layers[s.layer].remove(s)
	s.layer = target
	m.layers[target].pushTop(s)
	s.view.Damage()

	for _, cid := range s.children {
		if child := m.surfaces[cid]; child != nil && !child.minimized {
			m.moveToLayer(child, target)
		}
	}
}

// promote raises the surface to the top of its own layer. Fullscreen
// views on other outputs keep their place: promotion never crosses
// layers and never demotes.
func (m *Manager) promote(s *Surface) {
	m.layers[s.layer].pushTop(s)
	s.view.Damage()
	m.notifyZOrder()
}

// notifyZOrder reports the full top-down window order to the channel.
func (m *Manager) notifyZOrder() {
	var ids []rail.WindowID
	for _, layer := range layerOrder {
		for _, s := range m.layers[layer].surfaces {
			if s.mapped && !s.destroying {
				ids = append(ids, rail.WindowID(s.ID()))
			}
		}
	}
	if err := m.channel.NotifyWindowZOrderChange(ids); err != nil {
		m.logChannelErr(err, "z-order notify failed")
	}
}

// surfacesOnOutput collects mapped surfaces whose view sits on the
// given output.
func (m *Manager) surfacesOnOutput(o compositor.Output) []*Surface {
	var out []*Surface
	for _, s := range m.surfaces {
		if s.mapped && s.view.Output() != nil && s.view.Output().Name() == o.Name() {
			out = append(out, s)
		}
	}
	return out
}
