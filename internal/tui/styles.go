package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	colorRed       = lipgloss.Color("#ff5555")
	colorGreen     = lipgloss.Color("#50fa7b")
	colorYellow    = lipgloss.Color("#f1fa8c")
	colorBlue      = lipgloss.Color("#8be9fd")
	colorPurple    = lipgloss.Color("#bd93f9")
	colorDim       = lipgloss.Color("#6272a4")
	colorBgLight   = lipgloss.Color("#343746")
	colorFg        = lipgloss.Color("#f8f8f2")
	colorOrange    = lipgloss.Color("#ffb86c")
	colorBorder    = lipgloss.Color("#44475a")
	colorHighlight = lipgloss.Color("#44475a")
)

// Style definitions.
var (
	// Document view
	docViewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	docHeaderStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true).
			Padding(0, 0, 1, 0)

	plainTextStyle = lipgloss.NewStyle().
			Foreground(colorFg)

	cursorStyle = lipgloss.NewStyle().
			Reverse(true)

	selectionStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorPurple)

	// Sidebar
	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	sidebarHeaderStyle = lipgloss.NewStyle().
				Foreground(colorPurple).
				Bold(true).
				Padding(0, 0, 1, 0)

	spanItemStyle = lipgloss.NewStyle().
			Foreground(colorFg)

	spanItemSelectedStyle = lipgloss.NewStyle().
				Foreground(colorFg).
				Background(colorHighlight).
				Bold(true)

	pageLabelStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	// Candidate popover
	popoverStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorOrange).
			Padding(0, 1)

	popoverTitleStyle = lipgloss.NewStyle().
				Foreground(colorOrange).
				Bold(true)

	// Status bar
	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorBgLight).
			Padding(0, 1)

	editModeStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Background(colorBgLight).
			Bold(true)

	undoNoticeStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Background(colorBgLight)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Background(colorBgLight).
			Bold(true)

	// Help
	helpHeaderStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true).
			Padding(0, 0, 1, 0)

	helpBarStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)
