// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the interactive REPL for the ALIA legal assistant.
//
// Interactive commands (during a session):
//
//	/help, /h          Show available commands
//	/new TITLE         Create a discussion and switch to it
//	/discussions       List existing discussions
//	/use N             Switch to discussion N of the listing
//	/history           Reload and print the current discussion's exchanges
//	/sources N         Show the sources cited by exchange N of the history
//	/open N REF        Open the document behind citation REF of exchange N
//	/clear             Clear the local transcript
//	/quit, /q          Exit
//	Ctrl+C             Cancel the current generation
//	Ctrl+D             Exit
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/alialegal/alia-cli/internal/assistant"
	"github.com/alialegal/alia-cli/internal/conversation"
	"github.com/alialegal/alia-cli/internal/model"
	"github.com/alialegal/alia-cli/internal/source"
	"github.com/alialegal/alia-cli/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// input wraps liner with persistent command history and line editing.
type input struct {
	line        *liner.State
	historyFile string
}

// newInput creates the line reader, loading history from dir.
func newInput(dir string) *input {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	in := &input{
		line:        line,
		historyFile: filepath.Join(dir, "input_history"),
	}
	if f, err := os.Open(in.historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return in
}

// Read reads one line, recording non-empty input in history.
func (in *input) Read(prompt string) (string, error) {
	text, err := in.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" {
		in.line.AppendHistory(text)
	}
	return text, nil
}

// Close persists history and restores the terminal.
func (in *input) Close() {
	if f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
		in.line.WriteHistory(f)
		f.Close()
	}
	in.line.Close()
}

// =============================================================================
// SESSION
// =============================================================================

// Session is one interactive run of the assistant.
type Session struct {
	assistant     *assistant.Service
	conversations *conversation.Store
	sources       *source.Resolver
	log           *zap.Logger

	in           *input
	discussionID string

	// exchanges is the last history listing, so /sources N can address
	// exchanges by their printed position; discussions likewise for /use N.
	exchanges   []model.Exchange
	discussions []model.Discussion

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSession wires a session over the given services. stateDir holds the
// input history file.
func NewSession(svc *assistant.Service, conversations *conversation.Store, sources *source.Resolver, stateDir string, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		assistant:     svc,
		conversations: conversations,
		sources:       sources,
		log:           log,
		in:            newInput(stateDir),
	}
}

// Run is the REPL loop. It returns when the user quits or input is closed.
func (s *Session) Run(ctx context.Context) error {
	defer s.in.Close()

	// First Ctrl+C cancels the in-flight generation; at the prompt liner
	// surfaces it as ErrPromptAborted instead.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			s.mu.Lock()
			if s.cancel != nil {
				s.cancel()
				s.cancel = nil
				fmt.Fprintln(os.Stderr, "\n"+warningStyle.Render("[Cancelled]"))
			}
			s.mu.Unlock()
		}
	}()

	s.printWelcome()
	s.replayTranscript()

	for {
		text, err := s.in.Read(promptStyle.Render("alia> "))
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil { // io.EOF on Ctrl+D
			fmt.Println()
			return nil
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "/") {
			if quit := s.handleCommand(ctx, text); quit {
				return nil
			}
			continue
		}
		s.ask(ctx, text)
	}
}

// printWelcome shows the banner and a hint.
func (s *Session) printWelcome() {
	fmt.Println(welcomeStyle.Render("ALIA — assistant juridique"))
	fmt.Println(infoStyle.Render("Type a question, or /help for commands."))
	fmt.Println()
}

// replayTranscript prints the transcript restored from local storage so the
// session reopens where it left off.
func (s *Session) replayTranscript() {
	messages := s.assistant.Messages()
	if len(messages) == 0 {
		return
	}
	for _, m := range messages {
		s.printMessage(m)
	}
	fmt.Println()
}

func (s *Session) printMessage(m model.Message) {
	label := userLabelStyle.Render("you")
	if m.Sender == model.SenderBot {
		label = botLabelStyle.Render("alia")
	}
	content := m.Content
	if m.Type == model.MessageAudio {
		content = infoStyle.Render(fmt.Sprintf("[audio question, %.1fs]", m.Duration))
	}
	fmt.Printf("%s %s\n", label, content)
}

// =============================================================================
// QUESTIONS
// =============================================================================

// ask streams one answer, printing the text as it grows.
func (s *Session) ask(ctx context.Context, question string) {
	if s.discussionID == "" {
		fmt.Println(warningStyle.Render("No discussion selected; create one with /new TITLE."))
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	fmt.Printf("%s ", botLabelStyle.Render("alia"))

	// Partial updates are cumulative; printing the unseen suffix renders the
	// stream incrementally.
	printed := 0
	start := time.Now()
	_, err := s.assistant.Ask(streamCtx, s.discussionID, question, func(partial string) {
		if len(partial) > printed {
			fmt.Print(partial[printed:])
			printed = len(partial)
		}
	})
	fmt.Println()

	if err != nil {
		// The transcript already carries the "Erreur:" message; show it.
		fmt.Println(errorStyle.Render("Erreur: " + err.Error()))
		return
	}
	fmt.Println(infoStyle.Render(fmt.Sprintf("(%.1fs — /sources to inspect citations)", time.Since(start).Seconds())))
}

// =============================================================================
// COMMANDS
// =============================================================================

// handleCommand dispatches a /command line. Returns true to exit the loop.
func (s *Session) handleCommand(ctx context.Context, text string) bool {
	fields := strings.Fields(text)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/q", "/exit":
		return true

	case "/help", "/h":
		s.printHelp()

	case "/new":
		title := strings.TrimSpace(strings.TrimPrefix(text, "/new"))
		if title == "" {
			fmt.Println(warningStyle.Render("Usage: /new TITLE"))
			return false
		}
		id, err := s.assistant.NewDiscussion(ctx, title)
		if err != nil {
			fmt.Println(errorStyle.Render("Erreur: " + err.Error()))
			return false
		}
		s.discussionID = id
		s.exchanges = nil
		s.assistant.ClearTranscript()
		fmt.Println(infoStyle.Render("Discussion created: " + title))

	case "/discussions":
		s.showDiscussions(ctx)

	case "/use":
		if len(args) != 1 {
			fmt.Println(warningStyle.Render("Usage: /use N   (N from /discussions)"))
			return false
		}
		s.useDiscussion(args[0])

	case "/history":
		s.showHistory(ctx)

	case "/sources":
		if len(args) != 1 {
			fmt.Println(warningStyle.Render("Usage: /sources N   (N from /history)"))
			return false
		}
		s.showSources(ctx, args[0])

	case "/open":
		if len(args) != 2 {
			fmt.Println(warningStyle.Render("Usage: /open N REF   (N from /history, REF a citation key)"))
			return false
		}
		s.openReference(args[0], args[1])

	case "/clear":
		s.assistant.ClearTranscript()
		fmt.Println(infoStyle.Render("Transcript cleared."))

	default:
		fmt.Println(warningStyle.Render("Unknown command: " + cmd + " (try /help)"))
	}
	return false
}

func (s *Session) printHelp() {
	rows := [][2]string{
		{"/new TITLE", "Create a discussion and switch to it"},
		{"/discussions", "List existing discussions"},
		{"/use N", "Switch to discussion N of the listing"},
		{"/history", "Reload and print this discussion's exchanges"},
		{"/sources N", "Show the sources cited by exchange N"},
		{"/open N REF", "Open the document behind citation REF of exchange N"},
		{"/clear", "Clear the local transcript"},
		{"/quit", "Exit"},
	}
	for _, r := range rows {
		fmt.Printf("  %s  %s\n", commandStyle.Render(fmt.Sprintf("%-12s", r[0])), r[1])
	}
}

// showDiscussions lists the user's discussions for /use.
func (s *Session) showDiscussions(ctx context.Context) {
	discussions, err := s.assistant.Discussions(ctx)
	if err != nil {
		fmt.Println(errorStyle.Render("Erreur: " + err.Error()))
		return
	}
	s.discussions = discussions
	if len(discussions) == 0 {
		fmt.Println(infoStyle.Render("No discussions yet; create one with /new TITLE."))
		return
	}
	for i, d := range discussions {
		marker := " "
		if d.ID == s.discussionID {
			marker = "*"
		}
		fmt.Printf("%s%s %s\n", marker,
			sourceHeaderStyle.Render(fmt.Sprintf("[%d]", i+1)),
			util.TruncateString(d.Title, 60))
	}
}

// useDiscussion switches the session to a listed discussion. The transcript
// belongs to the previous discussion, so it is cleared.
func (s *Session) useDiscussion(arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(s.discussions) {
		fmt.Println(warningStyle.Render("No such discussion; run /discussions first."))
		return
	}
	d := s.discussions[n-1]
	s.discussionID = d.ID
	s.exchanges = nil
	s.assistant.ClearTranscript()
	fmt.Println(infoStyle.Render("Switched to: " + d.Title))
}

// showHistory refetches every page of the current discussion and prints the
// merged exchange list.
func (s *Session) showHistory(ctx context.Context) {
	if s.discussionID == "" {
		fmt.Println(warningStyle.Render("No discussion selected."))
		return
	}
	exchanges, err := s.conversations.LoadAll(ctx, s.discussionID)
	if err != nil {
		fmt.Println(errorStyle.Render("Erreur: " + err.Error()))
		return
	}
	s.exchanges = exchanges
	if len(exchanges) == 0 {
		fmt.Println(infoStyle.Render("No exchanges yet."))
		return
	}
	for i, ex := range exchanges {
		fmt.Printf("%s %s\n", sourceHeaderStyle.Render(fmt.Sprintf("[%d]", i+1)),
			util.TruncateString(ex.Question, 80))
		fmt.Printf("    %s\n", infoStyle.Render(util.TruncateString(ex.Answer, 120)))
	}
}

// showSources prints the display-ordered source list of one listed exchange.
func (s *Session) showSources(ctx context.Context, arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(s.exchanges) {
		fmt.Println(warningStyle.Render("No such exchange; run /history first."))
		return
	}
	ex := s.exchanges[n-1]

	sources, err := s.sources.DisplaySources(ctx, ex.ID)
	if err != nil {
		fmt.Println(errorStyle.Render("Erreur: " + err.Error()))
		return
	}
	if len(sources) == 0 {
		fmt.Println(infoStyle.Render("No sources for this exchange."))
		return
	}
	for _, src := range sources {
		fmt.Printf("%s %s\n", sourceHeaderStyle.Render("["+src.Reference+"]"), src.Title)
		fmt.Printf("    %s\n", infoStyle.Render(fmt.Sprintf("%s — art. %s, p. %d",
			src.LegalTextName, src.ArticleNumber, src.Page)))
	}
}

// openReference resolves one picked citation of a listed exchange and prints
// the document location. An unresolved selection opens nothing; the sources
// may still be loading, so the user is told to retry rather than shown an
// error.
func (s *Session) openReference(exchangeArg, ref string) {
	n, err := strconv.Atoi(exchangeArg)
	if err != nil || n < 1 || n > len(s.exchanges) {
		fmt.Println(warningStyle.Render("No such exchange; run /history first."))
		return
	}

	src := s.sources.Resolve(source.Selection{Reference: ref, ExchangeID: s.exchanges[n-1].ID})
	if src == nil {
		fmt.Println(warningStyle.Render("Reference not resolved yet; try /sources " + exchangeArg + " first."))
		return
	}
	fmt.Printf("%s %s\n", sourceHeaderStyle.Render("["+src.Reference+"]"), src.Title)
	fmt.Printf("    %s\n", infoStyle.Render(fmt.Sprintf("%s — art. %s", src.LegalTextName, src.ArticleNumber)))
	fmt.Printf("    %s\n", infoStyle.Render(fmt.Sprintf("document: %s (page %d)", src.PathDoc, src.Page)))
}
