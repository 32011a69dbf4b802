// SPDX-License-Identifier: MIT
package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Play      key.Binding
	Record    key.Binding
	Rewind    key.Binding
	Loop      key.Binding
	TempoUp   key.Binding
	TempoDown key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Play: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "play/stop"),
		),
		Record: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "record"),
		),
		Rewind: key.NewBinding(
			key.WithKeys("home", "backspace"),
			key.WithHelp("home", "rewind"),
		),
		Loop: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "loop"),
		),
		TempoUp: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+/-", "tempo"),
		),
		TempoDown: key.NewBinding(
			key.WithKeys("-", "_"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.Record, k.Rewind, k.Loop, k.TempoUp, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// setControls enables or disables every transport binding.
func (k *keyMap) setControls(enabled bool) {
	for _, b := range []*key.Binding{&k.Play, &k.Record, &k.Rewind, &k.Loop, &k.TempoUp, &k.TempoDown} {
		b.SetEnabled(enabled)
	}
}
