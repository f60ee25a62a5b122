// Package tui provides the interactive chat interface, built on Bubbletea
// following the Elm architecture.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/cosmica-labs/cosmica-cli/internal/adapters/driving/tui/styles"
	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driving"
)

// entry is one rendered exchange in the transcript.
type entry struct {
	question string
	answer   string
	sources  []domain.RetrievedChunk
	err      error
}

// tokenMsg carries one streamed answer fragment.
type tokenMsg string

// answerDoneMsg signals the end of a streamed answer.
type answerDoneMsg struct {
	answer *domain.Answer
	err    error
}

// Chat is the chat view model. It implements tea.Model.
type Chat struct {
	query          driving.QueryService
	conversationID string
	styles         *styles.Styles
	ctx            context.Context

	input    textinput.Model
	viewport viewport.Model

	history   []entry
	streaming bool
	partial   strings.Builder

	tokens chan string
	done   chan answerDoneMsg

	width  int
	height int
	ready  bool
}

// NewChat creates the chat model. An empty conversationID starts a fresh
// conversation.
func NewChat(ctx context.Context, query driving.QueryService, conversationID string, s *styles.Styles) *Chat {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	input := textinput.New()
	input.Placeholder = "Ask your documents anything..."
	input.Focus()
	input.CharLimit = 2000

	return &Chat{
		query:          query,
		conversationID: conversationID,
		styles:         s,
		ctx:            ctx,
		input:          input,
		viewport:       viewport.New(80, 20),
		width:          80,
		height:         24,
	}
}

// ConversationID returns the id of the conversation being driven.
func (c *Chat) ConversationID() string {
	return c.conversationID
}

// Init initialises the model.
func (c *Chat) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages.
func (c *Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height
		c.viewport.Width = msg.Width
		c.viewport.Height = msg.Height - 5
		c.input.Width = msg.Width - 6
		c.ready = true
		c.refresh()
		return c, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return c, tea.Quit
		case tea.KeyEnter:
			if c.streaming {
				return c, nil
			}
			question := strings.TrimSpace(c.input.Value())
			if question == "" {
				return c, nil
			}
			c.input.Reset()
			return c, c.ask(question)
		}

	case tokenMsg:
		c.partial.WriteString(string(msg))
		c.refresh()
		return c, c.awaitToken()

	case answerDoneMsg:
		c.finish(msg)
		c.refresh()
		return c, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	cmds = append(cmds, cmd)
	c.viewport, cmd = c.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return c, tea.Batch(cmds...)
}

// ask starts a streamed question and begins consuming tokens.
func (c *Chat) ask(question string) tea.Cmd {
	c.history = append(c.history, entry{question: question})
	c.streaming = true
	c.partial.Reset()
	c.tokens = make(chan string, 64)
	c.done = make(chan answerDoneMsg, 1)
	c.refresh()

	tokens, done := c.tokens, c.done
	go func() {
		answer, err := c.query.AskStream(c.ctx, c.conversationID, question, domain.QueryOptions{}, func(token string) {
			tokens <- token
		})
		done <- answerDoneMsg{answer: answer, err: err}
		close(tokens)
	}()

	return c.awaitToken()
}

// awaitToken waits for the next fragment or the final answer.
func (c *Chat) awaitToken() tea.Cmd {
	tokens, done := c.tokens, c.done
	return func() tea.Msg {
		select {
		case token, ok := <-tokens:
			if !ok {
				return <-done
			}
			return tokenMsg(token)
		case msg := <-done:
			return msg
		}
	}
}

// finish lands the streamed answer in the transcript.
func (c *Chat) finish(msg answerDoneMsg) {
	c.streaming = false
	last := &c.history[len(c.history)-1]
	if msg.err != nil {
		last.err = msg.err
		return
	}
	last.answer = msg.answer.Text
	last.sources = msg.answer.Sources
}

// refresh re-renders the transcript into the viewport.
func (c *Chat) refresh() {
	var b strings.Builder
	for i, e := range c.history {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(c.styles.User.Render("You: ") + e.question + "\n")

		switch {
		case e.err != nil:
			b.WriteString(c.styles.Error.Render(fmt.Sprintf("Error: %v", e.err)) + "\n")
		case i == len(c.history)-1 && c.streaming:
			b.WriteString(c.styles.Assistant.Render(c.partial.String()))
			b.WriteString(c.styles.Muted.Render("▋") + "\n")
		default:
			b.WriteString(c.styles.Assistant.Render(e.answer) + "\n")
			for _, src := range e.sources {
				b.WriteString(c.styles.Source.Render(fmt.Sprintf("  · %s (part %d, %.0f%%)", src.DocumentID, src.Sequence+1, src.Similarity*100)) + "\n")
			}
		}
	}
	c.viewport.SetContent(b.String())
	c.viewport.GotoBottom()
}

// View renders the chat.
func (c *Chat) View() string {
	if !c.ready {
		return "Loading..."
	}

	title := c.styles.Title.Render("Cosmica")
	help := c.styles.Help.Render("enter: ask · esc: quit")
	input := c.styles.InputField.Width(c.width - 2).Render(c.input.View())

	return title + "\n" + c.viewport.View() + "\n" + input + "\n" + help
}

// Run starts the chat program and blocks until the user quits.
func Run(ctx context.Context, query driving.QueryService, conversationID string) error {
	chat := NewChat(ctx, query, conversationID, nil)
	program := tea.NewProgram(chat, tea.WithAltScreen())
	_, err := program.Run()
	return err
}
