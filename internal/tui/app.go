// Package tui is an interactive terminal front end for a single copywriting run.
// It collects the brief, streams model output while the workflow runs and shows
// the scored summary at the end.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"copywriter/internal/copywriting"
	"copywriter/internal/domain/entity"
)

// Runner executes one brief and reports progress to obs.
type Runner interface {
	RunObserved(ctx context.Context, req entity.ProjectRequest, obs copywriting.Observer) (*entity.WorkflowState, error)
}

type step int

const (
	stepIdea step = iota
	stepAudience
	stepAge
	stepFormat
	stepGoal
	stepRunning
	stepDone
)

const (
	streamTailLines = 12
	eventBuffer     = 512
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	bestStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	streamBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
)

type eventMsg entity.Event

type runFinishedMsg struct {
	state *entity.WorkflowState
	err   error
}

type optionItem string

func (o optionItem) Title() string       { return string(o) }
func (o optionItem) Description() string { return "" }
func (o optionItem) FilterValue() string { return string(o) }

// App is the bubbletea model.
type App struct {
	runner Runner
	step   step

	input   textinput.Model
	choices map[step]*list.Model
	request entity.ProjectRequest
	err     error

	// run progress
	cancel context.CancelFunc
	events chan entity.Event
	done   chan runFinishedMsg
	status string
	stream strings.Builder
	calls  int
	final  *entity.WorkflowState
	runErr error
	width  int
	height int
}

func NewApp(runner Runner) *App {
	in := textinput.New()
	in.Placeholder = "Reusable coffee cups for commuters"
	in.CharLimit = 500
	in.Width = 60
	in.Focus()

	a := &App{
		runner: runner,
		step:   stepIdea,
		input:  in,
		choices: map[step]*list.Model{
			stepAge:    newChoiceList("Age range", entity.AgeBrackets),
			stepFormat: newChoiceList("Content format", entity.ContentFormats),
			stepGoal:   newChoiceList("Marketing goal", entity.ContentGoals),
		},
		width: 80,
	}
	return a
}

func newChoiceList(title string, options []string) *list.Model {
	items := make([]list.Item, len(options))
	for i, o := range options {
		items[i] = optionItem(o)
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	l := list.New(items, delegate, 40, len(options)+6)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	return &l
}

func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		for _, l := range a.choices {
			l.SetWidth(max(20, msg.Width-4))
		}
		return a, nil

	case eventMsg:
		a.handleEvent(entity.Event(msg))
		return a, a.waitForRun()

	case runFinishedMsg:
		a.step = stepDone
		a.final = msg.state
		a.runErr = msg.err
		a.cancel()
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if a.cancel != nil {
				a.cancel()
			}
			return a, tea.Quit
		case "q":
			if a.step == stepDone {
				return a, tea.Quit
			}
		case "enter":
			switch a.step {
			case stepRunning:
				return a, nil
			case stepDone:
				return a.reset()
			}
			return a.advance()
		}
	}

	switch a.step {
	case stepIdea, stepAudience:
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd
	case stepAge, stepFormat, stepGoal:
		l := a.choices[a.step]
		updated, cmd := l.Update(msg)
		*l = updated
		return a, cmd
	}
	return a, nil
}

// advance stores the current answer and moves to the next question, starting
// the run after the last one.
func (a *App) advance() (tea.Model, tea.Cmd) {
	a.err = nil
	switch a.step {
	case stepIdea, stepAudience:
		value := strings.TrimSpace(a.input.Value())
		if value == "" {
			a.err = fmt.Errorf("a value is required")
			return a, nil
		}
		if a.step == stepIdea {
			a.request.ContentIdea = value
			a.input.Reset()
			a.input.Placeholder = "Young professionals"
			a.step = stepAudience
			return a, nil
		}
		a.request.TargetAudience = value
		a.input.Blur()
		a.step = stepAge
	case stepAge:
		a.request.Age = a.selected(stepAge)
		a.step = stepFormat
	case stepFormat:
		a.request.Format = a.selected(stepFormat)
		a.step = stepGoal
	case stepGoal:
		a.request.Goal = a.selected(stepGoal)
		return a, a.startRun()
	}
	return a, nil
}

func (a *App) selected(s step) string {
	if item, ok := a.choices[s].SelectedItem().(optionItem); ok {
		return string(item)
	}
	return ""
}

func (a *App) reset() (tea.Model, tea.Cmd) {
	next := NewApp(a.runner)
	next.width, next.height = a.width, a.height
	return next, textinput.Blink
}

func (a *App) startRun() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.step = stepRunning
	a.status = "Selecting formulas"
	a.events = make(chan entity.Event, eventBuffer)
	a.done = make(chan runFinishedMsg, 1)

	req, events, done := a.request, a.events, a.done
	obs := copywriting.ObserverFunc(func(e entity.Event) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	})
	go func() {
		st, err := a.runner.RunObserved(ctx, req, obs)
		done <- runFinishedMsg{state: st, err: err}
	}()
	return a.waitForRun()
}

// waitForRun delivers the next event, or the result once every event was read.
func (a *App) waitForRun() tea.Cmd {
	events, done := a.events, a.done
	return func() tea.Msg {
		select {
		case e := <-events:
			return eventMsg(e)
		default:
		}
		select {
		case e := <-events:
			return eventMsg(e)
		case res := <-done:
			return res
		}
	}
}

func (a *App) handleEvent(e entity.Event) {
	switch e.Type {
	case entity.EventNodeStarted:
		a.status = describeNode(e.Node, e.Pass)
	case entity.EventLLMStarted:
		a.calls++
		a.stream.Reset()
		if e.Formula != "" {
			a.status = fmt.Sprintf("%s: %s", describeNode(e.Node, e.Pass), e.Formula)
		}
	case entity.EventLLMToken:
		a.stream.WriteString(e.Text)
	case entity.EventRunFailed:
		a.status = "Run failed: " + e.Error
	}
}

func describeNode(node string, pass int) string {
	switch node {
	case copywriting.NodeSelect:
		return "Selecting formulas"
	case copywriting.NodeDraft:
		if pass > 1 {
			return fmt.Sprintf("Revising drafts (pass %d)", pass)
		}
		return "Writing drafts"
	case copywriting.NodeScore:
		return "Scoring drafts"
	case copywriting.NodeSummary:
		return "Building summary"
	}
	return node
}

func (a *App) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Copywriter"))
	b.WriteString("\n\n")

	switch a.step {
	case stepIdea:
		b.WriteString("What is the content idea?\n")
		b.WriteString(a.input.View())
	case stepAudience:
		b.WriteString("Who is the target audience?\n")
		b.WriteString(a.input.View())
	case stepAge, stepFormat, stepGoal:
		b.WriteString(a.choices[a.step].View())
	case stepRunning:
		b.WriteString(a.viewRunning())
	case stepDone:
		b.WriteString(a.viewSummary())
	}

	if a.err != nil {
		b.WriteString("\n" + errorStyle.Render(a.err.Error()))
	}
	b.WriteString("\n\n" + hintStyle.Render(a.hint()))
	return b.String()
}

func (a *App) hint() string {
	switch a.step {
	case stepRunning:
		return "ctrl+c to abort"
	case stepDone:
		return "enter for a new brief · q to quit"
	}
	return "enter to continue · ctrl+c to quit"
}

func (a *App) viewRunning() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s  %s\n", a.status, hintStyle.Render(fmt.Sprintf("(%d model calls)", a.calls))))

	text := strings.TrimSpace(a.stream.String())
	if text == "" {
		return b.String()
	}
	lines := strings.Split(text, "\n")
	if len(lines) > streamTailLines {
		lines = lines[len(lines)-streamTailLines:]
	}
	b.WriteString(streamBorder.Width(max(20, a.width-4)).Render(strings.Join(lines, "\n")))
	return b.String()
}

func (a *App) viewSummary() string {
	if a.runErr != nil {
		return errorStyle.Render("Run failed: " + a.runErr.Error())
	}
	if a.final == nil || a.final.FinalSummary == nil {
		return errorStyle.Render("Run finished without a summary")
	}
	sum := a.final.FinalSummary

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Drafting passes: %d\n\n", sum.RevisionCount))
	for _, id := range sum.SelectedFormulas {
		line := fmt.Sprintf("%-8s %4.1f", id, sum.Scores[id].Average)
		if id == sum.BestPerforming {
			b.WriteString(bestStyle.Render(line+"  best") + "\n")
		} else {
			b.WriteString(scoreStyle.Render(line) + "\n")
		}
	}

	if draft, ok := sum.Drafts[sum.BestPerforming]; ok {
		b.WriteString("\n")
		b.WriteString(streamBorder.Width(max(20, a.width-4)).Render(strings.TrimSpace(draft)))
		b.WriteString("\n")
	}
	for _, s := range sum.ImprovementSuggestions[sum.BestPerforming] {
		b.WriteString("\n" + warnStyle.Render("• "+s))
	}
	if sum.Degraded {
		b.WriteString("\n" + warnStyle.Render(fmt.Sprintf("%d answers could not be parsed and used defaults", len(sum.Fallbacks))))
	}
	return b.String()
}
