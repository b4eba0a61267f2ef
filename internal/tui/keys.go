package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Left     key.Binding
	Right    key.Binding
	Up       key.Binding
	Down     key.Binding
	NextSpan key.Binding
	PrevSpan key.Binding
	Reject   key.Binding
	Edit     key.Binding
	Select   key.Binding
	Add      key.Binding
	One      key.Binding
	All      key.Binding
	Cancel   key.Binding
	Undo     key.Binding
	Export   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Left: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "left"),
	),
	Right: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "right"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	NextSpan: key.NewBinding(
		key.WithKeys("n", "tab"),
		key.WithHelp("n/tab", "next redaction"),
	),
	PrevSpan: key.NewBinding(
		key.WithKeys("N", "shift+tab"),
		key.WithHelp("N/S-tab", "prev redaction"),
	),
	Reject: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "reject"),
	),
	Edit: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "edit mode"),
	),
	Select: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "select"),
	),
	Add: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter", "redact"),
	),
	One: key.NewBinding(
		key.WithKeys("1", "o"),
		key.WithHelp("1/o", "this one"),
	),
	All: key.NewBinding(
		key.WithKeys("a", "A"),
		key.WithHelp("a", "all"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	Undo: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "undo"),
	),
	Export: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "download"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
