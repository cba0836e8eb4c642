package server

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v3"

	"github.com/anthropics/tgmod/internal/biz/domain"
	"github.com/anthropics/tgmod/internal/biz/usecase"
)

// Prompt kinds for the force-reply input flow.
const (
	promptForward   = "forward"
	promptReview    = "review"
	promptThreshold = "threshold"
	promptWelcome   = "welcome"
	promptButtons   = "buttons"
	promptTemplate  = "template"
	promptSources   = "sources"
	promptAdmins    = "admins"
	promptAllow     = "allow"
	promptBlock     = "block"
)

var urlRx = regexp.MustCompile(`^https?://\S+$`)

type promptState struct {
	kind  string
	msgID int
}

// promptTable remembers which admin was asked what. One open prompt per
// admin; a new prompt replaces the old one.
type promptTable struct {
	mu      sync.Mutex
	pending map[int64]promptState
}

func newPromptTable() *promptTable {
	return &promptTable{pending: make(map[int64]promptState)}
}

func (t *promptTable) set(adminID int64, state promptState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[adminID] = state
}

// take returns and clears the open prompt if the reply targets it.
func (t *promptTable) take(adminID int64, repliedMsgID int) (promptState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.pending[adminID]
	if !ok || state.msgID != repliedMsgID {
		return promptState{}, false
	}
	delete(t.pending, adminID)
	return state, true
}

// ask sends a force-reply question and records the open prompt.
func (s *ModerationServer) ask(c tele.Context, kind, prompt string) error {
	msg, err := s.client.Bot().Send(c.Sender(), prompt, &tele.SendOptions{
		ReplyMarkup: &tele.ReplyMarkup{ForceReply: true},
	})
	if err != nil {
		return fmt.Errorf("failed to send prompt: %w", err)
	}
	s.prompts.set(c.Sender().ID, promptState{kind: kind, msgID: msg.ID})
	return nil
}

// consumeInput handles an admin's reply to an open prompt. Returns false
// when the message is not prompt input.
func (s *ModerationServer) consumeInput(c tele.Context) (bool, error) {
	msg := c.Message()
	if msg == nil || msg.ReplyTo == nil {
		return false, nil
	}
	state, ok := s.prompts.take(c.Sender().ID, msg.ReplyTo.ID)
	if !ok {
		return false, nil
	}

	ctx := context.Background()
	text := strings.TrimSpace(c.Text())

	switch state.kind {
	case promptForward:
		return true, s.inputForwardTarget(ctx, c, text)
	case promptReview:
		return true, s.inputReviewTarget(ctx, c, text)
	case promptThreshold:
		return true, s.inputThreshold(ctx, c, text)
	case promptWelcome:
		return true, s.inputWelcome(ctx, c, text)
	case promptButtons:
		return true, s.inputButtons(ctx, c, text)
	case promptTemplate:
		return true, s.inputTemplate(ctx, c, text)
	case promptSources:
		return true, s.inputSources(ctx, c, text)
	case promptAdmins:
		return true, s.inputAdmins(ctx, c, text)
	case promptAllow:
		return true, s.inputUserList(ctx, c, text, true)
	case promptBlock:
		return true, s.inputUserList(ctx, c, text, false)
	}
	return true, nil
}

func (s *ModerationServer) inputForwardTarget(ctx context.Context, c tele.Context, text string) error {
	if !isNumeric(text) {
		return c.Send("Chat IDs are numeric, e.g. -1001234567890.")
	}
	if err := s.state.SetForwardTarget(ctx, text); err != nil {
		return c.Send(fmt.Sprintf("Failed: %v", err))
	}
	return c.Send("Forward target set to " + text + ".")
}

func (s *ModerationServer) inputReviewTarget(ctx context.Context, c tele.Context, text string) error {
	if strings.EqualFold(text, "clear") {
		if err := s.state.SetReviewTarget(ctx, ""); err != nil {
			return c.Send(fmt.Sprintf("Failed: %v", err))
		}
		return c.Send("Review target cleared; cards go to admins directly.")
	}
	if !isNumeric(text) {
		return c.Send("Chat IDs are numeric, or \"clear\".")
	}
	if err := s.state.SetReviewTarget(ctx, text); err != nil {
		return c.Send(fmt.Sprintf("Failed: %v", err))
	}
	return c.Send("Review target set to " + text + ".")
}

func (s *ModerationServer) inputThreshold(ctx context.Context, c tele.Context, text string) error {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || v < 0 || v > 1 {
		return c.Send("Threshold must be a number between 0 and 1, e.g. 0.6.")
	}
	if err := s.state.SetDefaultThreshold(ctx, v); err != nil {
		return c.Send(fmt.Sprintf("Failed: %v", err))
	}
	return c.Send(fmt.Sprintf("Threshold set to %.2f.", v))
}

func (s *ModerationServer) inputWelcome(ctx context.Context, c tele.Context, text string) error {
	if text == "" {
		return c.Send("Welcome text cannot be empty.")
	}
	if err := s.state.SetWelcomeText(ctx, text); err != nil {
		return c.Send(fmt.Sprintf("Failed: %v", err))
	}
	return c.Send("Welcome text updated.")
}

func (s *ModerationServer) inputButtons(ctx context.Context, c tele.Context, text string) error {
	if strings.EqualFold(text, "clear") {
		if err := s.state.ReplaceButtons(ctx, nil); err != nil {
			return c.Send(fmt.Sprintf("Failed: %v", err))
		}
		return c.Send("All buttons removed.")
	}

	var buttons []domain.TrafficButton
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		label, url, found := strings.Cut(line, "|")
		label, url = strings.TrimSpace(label), strings.TrimSpace(url)
		if !found || label == "" || !urlRx.MatchString(url) {
			return c.Send(fmt.Sprintf("Line %d is invalid. Use: text | https://url", i+1))
		}
		buttons = append(buttons, domain.TrafficButton{Text: label, URL: url, Order: len(buttons) + 1})
	}
	if len(buttons) == 0 {
		return c.Send("No buttons found in the reply.")
	}
	if err := s.state.ReplaceButtons(ctx, buttons); err != nil {
		return c.Send(fmt.Sprintf("Failed: %v", err))
	}
	return c.Send(fmt.Sprintf("Saved %d buttons.", len(buttons)))
}

// inputTemplate adds, replaces or deletes a single template. Format:
// first line "name" or "name 0.7", remaining lines are the content.
func (s *ModerationServer) inputTemplate(ctx context.Context, c tele.Context, text string) error {
	if name, ok := strings.CutPrefix(text, "del "); ok {
		return s.deleteTemplate(ctx, c, strings.TrimSpace(name))
	}
	if sample, ok := strings.CutPrefix(text, "test "); ok {
		match := usecase.Detect(sample, s.state.Templates(), s.state.Config().DefaultThreshold)
		if !match.Matched {
			return c.Send(fmt.Sprintf("No match (best score below threshold %.2f).", s.state.Config().DefaultThreshold))
		}
		return c.Send(fmt.Sprintf("Matches %q with score %.3f.", match.Name, match.Score))
	}

	head, content, _ := strings.Cut(text, "\n")
	content = strings.TrimSpace(content)
	if content == "" {
		return c.Send("Template content missing. First line is the name, the rest is the content.")
	}

	name := strings.TrimSpace(head)
	threshold := 0.0
	if fields := strings.Fields(head); len(fields) > 1 {
		if v, err := strconv.ParseFloat(fields[len(fields)-1], 64); err == nil && v >= 0 && v <= 1 {
			threshold = v
			name = strings.TrimSpace(strings.Join(fields[:len(fields)-1], " "))
		}
	}
	if name == "" {
		return c.Send("Template name missing.")
	}

	templates := s.state.Templates()
	replaced := false
	for i := range templates {
		if templates[i].Name == name {
			templates[i].Content = content
			templates[i].Threshold = threshold
			replaced = true
			break
		}
	}
	if !replaced {
		templates = append(templates, domain.AdTemplate{Name: name, Content: content, Threshold: threshold})
	}
	if err := s.state.ReplaceTemplates(ctx, templates); err != nil {
		return c.Send(fmt.Sprintf("Failed: %v", err))
	}
	return c.Send(fmt.Sprintf("Template %q saved (%d total).", name, len(templates)))
}

func (s *ModerationServer) deleteTemplate(ctx context.Context, c tele.Context, name string) error {
	templates := s.state.Templates()
	kept := templates[:0]
	for _, t := range templates {
		if t.Name != name {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(templates) {
		return c.Send(fmt.Sprintf("No template named %q.", name))
	}
	if err := s.state.ReplaceTemplates(ctx, kept); err != nil {
		return c.Send(fmt.Sprintf("Failed: %v", err))
	}
	return c.Send(fmt.Sprintf("Template %q removed.", name))
}

func (s *ModerationServer) inputSources(ctx context.Context, c tele.Context, text string) error {
	if strings.EqualFold(text, "clear") {
		if err := s.state.ClearSources(ctx); err != nil {
			return c.Send(fmt.Sprintf("Failed: %v", err))
		}
		return c.Send("Source restriction lifted: all chats accepted.")
	}

	op, id := "", text
	if strings.HasPrefix(text, "+") {
		op, id = "+", text[1:]
	} else if strings.HasPrefix(text, "-") && !isNumeric(text) {
		// A bare negative number is a chat id, not a removal.
		op, id = "-", text[1:]
	}
	if !isNumeric(id) {
		return c.Send("Use +chatID, -chatID or \"clear\". Chat IDs are numeric.")
	}

	var err error
	switch op {
	case "-":
		err = s.state.RemoveSource(ctx, id)
	default:
		err = s.state.AddSource(ctx, id)
	}
	if err != nil {
		return c.Send(fmt.Sprintf("Failed: %v", err))
	}
	return c.Send("Sources updated: " + s.sourcesText())
}

func (s *ModerationServer) inputAdmins(ctx context.Context, c tele.Context, text string) error {
	if len(text) < 2 || (text[0] != '+' && text[0] != '-') {
		return c.Send("Use +userID to add or -userID to remove.")
	}
	id := strings.TrimSpace(text[1:])
	if !isNumeric(id) {
		return c.Send("User IDs are numeric.")
	}

	var err error
	if text[0] == '+' {
		err = s.state.AddAdmin(ctx, id)
	} else {
		err = s.state.RemoveAdmin(ctx, id)
	}
	if err != nil {
		return c.Send(fmt.Sprintf("Failed: %v", err))
	}
	return c.Send("Admins: " + strings.Join(s.state.Config().AdminIDs, ", "))
}

func (s *ModerationServer) inputUserList(ctx context.Context, c tele.Context, text string, allow bool) error {
	remove := false
	if rest, ok := strings.CutPrefix(text, "del "); ok {
		remove = true
		text = strings.TrimSpace(rest)
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return c.Send("Reply with a numeric user ID, optionally prefixed with \"del \".")
	}

	switch {
	case allow && remove:
		err = s.state.RemoveAllow(ctx, id)
	case allow:
		err = s.state.AddAllow(ctx, id)
	case remove:
		err = s.state.RemoveBlock(ctx, id)
	default:
		err = s.state.AddBlock(ctx, id)
	}
	if err != nil {
		return c.Send(fmt.Sprintf("Failed: %v", err))
	}

	list, verb := "allow", "added to"
	if !allow {
		list = "block"
	}
	if remove {
		verb = "removed from"
	}
	return c.Send(fmt.Sprintf("User %d %s the %s-list.", id, verb, list))
}

func isNumeric(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}
