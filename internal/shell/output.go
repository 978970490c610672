package shell

import (
	"github.com/IcebergThings/railshell/internal/compositor"
)

// ShellOutput is the per-display record: the output itself plus the
// desktop work area inside which maximized and default-positioned
// windows live.
type ShellOutput struct {
	output   compositor.Output
	workArea compositor.Rect

	cancelDestroy func()
}

// WorkArea returns the output's current work area.
func (o *ShellOutput) WorkArea() compositor.Rect {
	return o.workArea
}

// OutputAdded registers a display. The work area starts as the full
// output bounds until the remote side reports a smaller one.
func (m *Manager) OutputAdded(o compositor.Output) {
	so := &ShellOutput{
		output:   o,
		workArea: o.Bounds(),
	}
	so.cancelDestroy = o.OnDestroy(func() {
		m.OutputRemoved(o)
	})
	m.outputs[o.Name()] = so

	m.log.Debug().Str("output", o.Name()).Msg("Output added")
}

// OutputRemoved drops a display record and moves its surfaces to
// another output.
func (m *Manager) OutputRemoved(o compositor.Output) {
	so := m.outputs[o.Name()]
	if so == nil {
		return
	}
	so.cancelDestroy()
	delete(m.outputs, o.Name())

	fallback := m.pickOutput()
	if fallback == nil {
		return
	}
	for _, s := range m.surfacesOnOutput(o) {
		s.view.SetOutput(fallback)
	}
}

// SetWorkArea updates an output's work area and reflows the windows
// anchored to it.
func (m *Manager) SetWorkArea(outputName string, area compositor.Rect) {
	so := m.outputs[outputName]
	if so == nil {
		m.log.Debug().Str("output", outputName).Msg("Work area for unknown output")
		return
	}
	so.workArea = area

	for _, s := range m.surfacesOnOutput(so.output) {
		if s.maximized {
			m.placeMaximized(s, so)
		}
	}
}

// workAreaFor returns the work area of the output the surface sits on,
// falling back to the primary output.
func (m *Manager) workAreaFor(s *Surface) compositor.Rect {
	if out := s.view.Output(); out != nil {
		if so := m.outputs[out.Name()]; so != nil {
			return so.workArea
		}
	}
	if so := m.primaryShellOutput(); so != nil {
		return so.workArea
	}
	return compositor.Rect{}
}

// primaryShellOutput resolves the remote side's primary output, or any
// output.
func (m *Manager) primaryShellOutput() *ShellOutput {
	if name := m.channel.PrimaryOutput(); name != "" {
		if so := m.outputs[name]; so != nil {
			return so
		}
	}
	if primary := m.comp.PrimaryOutput(); primary != nil {
		if so := m.outputs[primary.Name()]; so != nil {
			return so
		}
	}
	for _, so := range m.outputs {
		return so
	}
	return nil
}

// pickOutput returns the primary output or any other.
func (m *Manager) pickOutput() compositor.Output {
	if so := m.primaryShellOutput(); so != nil {
		return so.output
	}
	return nil
}

// outputAt finds the shell output whose bounds contain the point.
func (m *Manager) outputAt(x, y float64) *ShellOutput {
	for _, so := range m.outputs {
		if so.output.Bounds().Contains(int(x), int(y)) {
			return so
		}
	}
	return nil
}
