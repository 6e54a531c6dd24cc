package main

import (
	"charity-chat/domain"
	"charity-chat/projection"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// printer writes timeline entries once per state change.
type printer struct {
	out     io.Writer
	self    string
	colours bool

	mu      sync.Mutex
	printed map[string]projection.State
}

func newPrinter(out io.Writer, self string, colours bool) *printer {
	return &printer{out: out, self: self, colours: colours, printed: make(map[string]projection.State)}
}

func (p *printer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = make(map[string]projection.State)
}

// flush prints the entries not printed yet in their current state.
func (p *printer) flush(entries []projection.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		key := entryKey(e)
		if state, ok := p.printed[key]; ok && state == e.State {
			continue
		}
		p.printed[key] = e.State
		fmt.Fprintln(p.out, p.line(e))
	}
}

func (p *printer) line(e projection.Entry) string {
	m := e.Message
	who := "them"
	if m.SenderID == p.self {
		who = "me"
	}
	content := m.Content
	if m.Censored != "" {
		content = m.Censored
	}
	text := fmt.Sprintf("[%s] %-4s %s", m.CreatedAt.Local().Format(time.Kitchen), who, content)
	switch e.State {
	case projection.StatePending:
		text += " (sending…)"
	case projection.StateFailed:
		text += fmt.Sprintf(" (failed: %s, /retry %s)", e.Error, m.ClientKey)
	}
	if !p.colours {
		return text
	}
	switch {
	case e.State == projection.StateFailed:
		return color.New(color.FgRed).Render(text)
	case e.State == projection.StatePending:
		return color.New(color.FgYellow).Render(text)
	case who == "me":
		return color.New(color.FgGreen).Render(text)
	default:
		return color.New(color.FgCyan).Render(text)
	}
}

func (p *printer) header(title string) {
	line := fmt.Sprintf("  ====== %s ======", title)
	if p.colours {
		line = color.New(color.BgBlack, color.FgGreen).Render(line)
	}
	fmt.Fprintln(p.out, line)
}

func entryKey(e projection.Entry) string {
	if e.Message.ClientKey != "" {
		return e.Message.ClientKey
	}
	return e.Message.ID.String()
}

// renderChats lists the previews as a numbered table for /open.
func renderChats(out io.Writer, previews []domain.ChatPreview) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"#", "With", "Kind", "Last message", "At"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for i, preview := range previews {
		last := ""
		if preview.LastMessage != nil {
			last = preview.LastMessage.Content
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			preview.Other.Name,
			string(preview.Other.Kind),
			last,
			preview.LastActivity().Local().Format(time.DateTime),
		})
	}
	table.Render()
}

func sentEntry(m domain.Message) projection.Entry {
	return projection.Entry{Message: m, State: projection.StateSent}
}
