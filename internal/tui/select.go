// Package tui provides interactive terminal UI components.
package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lakafior/aio-abs-providers/internal/metadata"
)

const (
	defaultListWidth  = 72
	defaultListHeight = 20
)

var runProgram = func(m tea.Model) (tea.Model, error) {
	return tea.NewProgram(m).Run()
}

// SelectionAction represents the user's action in the selection UI.
type SelectionAction int

const (
	// ActionNone indicates no action was taken.
	ActionNone SelectionAction = iota
	// ActionSelected indicates the user selected a result.
	ActionSelected
	// ActionSkipped indicates the user dismissed the selection.
	ActionSkipped
)

// SelectionResult holds the result of a TUI selection.
type SelectionResult struct {
	Action    SelectionAction
	Selection *metadata.EnrichedResult
}

type resultItem struct {
	metadata.EnrichedResult
}

func (i resultItem) Title() string {
	if i.PublishedYear != "" {
		return fmt.Sprintf("%s (%s)", i.EnrichedResult.Title, i.PublishedYear)
	}
	return i.EnrichedResult.Title
}

func (i resultItem) FilterValue() string {
	return i.EnrichedResult.Title
}

func (i resultItem) Description() string {
	return i.EnrichedResult.Description
}

type itemStyles struct {
	normal        lipgloss.Style
	selected      lipgloss.Style
	providerStyle lipgloss.Style
	titleStyle    lipgloss.Style
	scoreStyle    lipgloss.Style
	metadataStyle lipgloss.Style
}

func newItemStyles() itemStyles {
	asciiBorder := lipgloss.Border{
		Top:         "-",
		Bottom:      "-",
		Left:        "|",
		Right:       "|",
		TopLeft:     "+",
		TopRight:    "+",
		BottomLeft:  "+",
		BottomRight: "+",
	}

	container := lipgloss.NewStyle().
		Border(asciiBorder).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		Foreground(lipgloss.Color("252"))

	selected := container.Copy().
		BorderForeground(lipgloss.Color("214")).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("237"))

	return itemStyles{
		normal:   container,
		selected: selected,
		providerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("110")),
		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("254")),
		scoreStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("178")),
		metadataStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("247")).
			Faint(true),
	}
}

type resultDelegate struct {
	styles itemStyles
}

func newDelegate() resultDelegate {
	return resultDelegate{styles: newItemStyles()}
}

func (d resultDelegate) Height() int                         { return 5 }
func (d resultDelegate) Spacing() int                        { return 1 }
func (d resultDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

func (d resultDelegate) Render(w io.Writer, m list.Model, idx int, item list.Item) {
	result, ok := item.(resultItem)
	if !ok {
		return
	}

	providerLine := d.styles.providerStyle.Render(
		fmt.Sprintf("[%s] %s", strings.ToUpper(result.Provider), result.Type))
	titleLine := d.styles.titleStyle.Render(result.Title())
	scoreLine := d.styles.scoreStyle.Render(fmt.Sprintf("%.0f%% match", result.Similarity*100))
	metadataLine := d.styles.metadataStyle.Render(formatMetadata(result.EnrichedResult, m.Width()-4))

	content := lipgloss.JoinVertical(lipgloss.Left, providerLine, titleLine, scoreLine, metadataLine)

	container := d.styles.normal
	if idx == m.Index() {
		container = d.styles.selected
	}
	_, _ = fmt.Fprint(w, container.Render(content))
}

type model struct {
	list        list.Model
	searchQuery string
	result      SelectionResult
}

func newModel(query string, items []resultItem) *model {
	listItems := make([]list.Item, len(items))
	for i, item := range items {
		listItems[i] = item
	}

	delegate := newDelegate()
	l := list.New(listItems, delegate, defaultListWidth, defaultListHeight)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.SetShowPagination(false)
	l.DisableQuitKeybindings()
	l.Styles.NoItems = lipgloss.NewStyle()

	return &model{
		list:        l,
		searchQuery: query,
		result: SelectionResult{
			Action: ActionNone,
		},
	}
}

func (m *model) Init() tea.Cmd { return nil }

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if selected, ok := m.list.SelectedItem().(resultItem); ok {
				result := selected.EnrichedResult
				m.result = SelectionResult{
					Action:    ActionSelected,
					Selection: &result,
				}
				return m, tea.Quit
			}
		case "ctrl+c", "q", "esc", "s":
			m.result = SelectionResult{Action: ActionSkipped}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		width := clamp(defaultListWidth, msg.Width-4, 40)
		height := clamp(defaultListHeight, msg.Height-6, 5)
		m.list.SetSize(width, height)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	header := headerStyle.Render(fmt.Sprintf("Results for: %s", m.searchQuery))
	listView := m.list.View()
	help := helpStyle.Render("Up/Down navigate | Enter select | q skip")
	return lipgloss.JoinVertical(lipgloss.Left, header, listView, help)
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			MarginTop(1).
			Foreground(lipgloss.Color("244"))
)

// Select presents an interactive selection UI for aggregated results.
func Select(query string, results []metadata.EnrichedResult) (SelectionResult, error) {
	if len(results) == 0 {
		return SelectionResult{Action: ActionSkipped}, nil
	}

	items := make([]resultItem, len(results))
	for i, result := range results {
		items[i] = resultItem{EnrichedResult: result}
	}
	m := newModel(query, items)
	finalModel, err := runProgram(m)
	if err != nil {
		return SelectionResult{}, err
	}

	if typed, ok := finalModel.(*model); ok {
		return typed.result, nil
	}

	return SelectionResult{}, fmt.Errorf("unexpected program result")
}

func truncate(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	if width <= 0 || len(value) <= width {
		return value
	}
	if width <= 3 {
		return value[:width]
	}
	return value[:width-3] + "..."
}

// formatMetadata creates the metadata line with authors, publisher,
// rating, and merge provenance.
func formatMetadata(result metadata.EnrichedResult, availableWidth int) string {
	var parts []string

	if len(result.Authors) > 0 {
		parts = append(parts, strings.Join(result.Authors, ", "))
	}
	if result.Publisher != "" {
		parts = append(parts, result.Publisher)
	}
	if result.Rating > 0 {
		parts = append(parts, fmt.Sprintf("%.1f/5", result.Rating))
	}
	if len(result.MergedFrom) > 0 {
		parts = append(parts, fmt.Sprintf("merged from %d sources", len(result.MergedFrom)))
	}

	if len(parts) == 0 {
		return "No metadata available"
	}

	line := strings.Join(parts, " | ")
	if availableWidth > 0 && len(line) > availableWidth {
		line = truncate(line, availableWidth)
	}

	return line
}

func clamp(defaultValue, available, minimum int) int {
	width := defaultValue
	if available > 0 && available < defaultValue {
		width = available
	}
	if width < minimum {
		width = minimum
	}
	return width
}
