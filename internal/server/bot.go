package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/anthropics/tgmod/internal/biz/domain"
	"github.com/anthropics/tgmod/internal/biz/repo"
	"github.com/anthropics/tgmod/internal/biz/usecase"
	"github.com/anthropics/tgmod/internal/data"
	"github.com/anthropics/tgmod/internal/infra/telegram"
	"github.com/anthropics/tgmod/internal/service"
)

// ModerationServer wires Telegram updates into the admission pipeline and
// exposes the admin panel.
type ModerationServer struct {
	client    *telegram.Client
	state     *usecase.StateUsecase
	admission *usecase.AdmissionUsecase
	ledger    *usecase.LedgerUsecase
	metrics   *usecase.Metrics
	review    *service.ReviewService
	outbound  repo.Outbound

	prompts *promptTable
}

// NewModerationServer creates the server and registers all handlers.
func NewModerationServer(
	client *telegram.Client,
	state *usecase.StateUsecase,
	admission *usecase.AdmissionUsecase,
	ledger *usecase.LedgerUsecase,
	metrics *usecase.Metrics,
	review *service.ReviewService,
	outbound repo.Outbound,
) *ModerationServer {
	s := &ModerationServer{
		client:    client,
		state:     state,
		admission: admission,
		ledger:    ledger,
		metrics:   metrics,
		review:    review,
		outbound:  outbound,
		prompts:   newPromptTable(),
	}

	bot := client.Bot()
	bot.Handle("/start", s.handleStart)
	bot.Handle(tele.OnText, s.handleText)
	bot.Handle(tele.OnChannelPost, s.handleChannelPost)
	bot.Handle(tele.OnUserJoined, s.handleUserJoined)
	bot.Handle(tele.OnCallback, s.handleCallback)

	return s
}

// Start begins receiving updates. Blocks until Stop.
func (s *ModerationServer) Start() {
	s.client.Start()
}

// Stop shuts the bot down.
func (s *ModerationServer) Stop() {
	s.client.Stop()
}

func (s *ModerationServer) handleStart(c tele.Context) error {
	if s.isAdminSender(c) && c.Chat().Type == tele.ChatPrivate {
		return s.showPanel(c)
	}
	return s.sendWelcome(c)
}

func (s *ModerationServer) handleText(c tele.Context) error {
	// Force-reply answers from admins are input, never content.
	if s.isAdminSender(c) {
		if handled, err := s.consumeInput(c); handled {
			return err
		}
	}
	if c.Chat().Type == tele.ChatPrivate {
		switch strings.ToLower(strings.TrimSpace(c.Text())) {
		case "/panel":
			if !s.isAdminSender(c) {
				return c.Send("🔒 Admin commands are restricted.")
			}
			return s.showPanel(c)
		case "menu", "help":
			if !s.isAdminSender(c) {
				return s.sendWelcome(c)
			}
			return s.showPanel(c)
		case "/stats", "stats":
			if !s.isAdminSender(c) {
				return c.Send("🔒 Admin commands are restricted.")
			}
			return s.sendStats(c)
		}
	}
	return s.handleIncoming(c)
}

func (s *ModerationServer) handleChannelPost(c tele.Context) error {
	return s.handleIncoming(c)
}

// handleUserJoined greets new members with the welcome text and the
// traffic buttons.
func (s *ModerationServer) handleUserJoined(c tele.Context) error {
	return s.sendWelcome(c)
}

func (s *ModerationServer) sendWelcome(c tele.Context) error {
	welcome := s.state.Config().WelcomeText
	if welcome == "" {
		return nil
	}
	if markup := data.ButtonMarkup(s.state.Buttons()); markup != nil {
		return c.Send(welcome, markup)
	}
	return c.Send(welcome)
}

// handleIncoming runs one post through admission and executes the verdict.
func (s *ModerationServer) handleIncoming(c tele.Context) error {
	msg := c.Message()
	if msg == nil || (msg.Text == "" && msg.Caption == "") {
		return nil
	}

	ctx := context.Background()
	post := inboundFromMessage(msg)
	decision := s.admission.Admit(post)

	switch decision.Action {
	case usecase.ActionDrop:
		return nil

	case usecase.ActionNotify:
		return c.Reply(rejectionText(decision))

	case usecase.ActionForward:
		if err := s.review.DirectForward(ctx, post.SourceChatID, post.MessageID); err != nil {
			fmt.Printf("[Server] Direct forward failed: %v\n", err)
			return err
		}
		return nil

	case usecase.ActionQueue:
		if err := s.ledger.Submit(ctx, decision.Request); err != nil {
			fmt.Printf("[Server] Failed to queue request: %v\n", err)
			return err
		}
		s.postReviewCard(ctx, decision.Request)
		// Channel posts have no sender to acknowledge; replying would
		// post the ack into the channel itself.
		if decision.Request.FromID == 0 {
			return nil
		}
		ack := "✅ Submitted for review."
		if decision.Match.Matched {
			ack += fmt.Sprintf("\n⚠️ Resembles template %q (score %.3f).", decision.Match.Name, decision.Match.Score)
		}
		return c.Reply(ack)
	}
	return nil
}

// postReviewCard forwards the original post into the review chat and
// attaches the verdict buttons. Falls back to DM-ing every admin when no
// review chat is configured.
func (s *ModerationServer) postReviewCard(ctx context.Context, req *domain.PendingRequest) {
	card := reviewCardText(req)
	markup := verdictMarkup(req.ID, req.FromID)

	targets := s.reviewTargets()
	for _, target := range targets {
		if err := s.outbound.Forward(ctx, target, req.SourceChatID, req.MessageID); err != nil {
			fmt.Printf("[Server] Failed to mirror %s to %d: %v\n", req.ID, target, err)
		}
		if err := s.client.SendMarkup(ctx, target, card, markup); err != nil {
			fmt.Printf("[Server] Failed to post review card to %d: %v\n", target, err)
		}
	}
}

func (s *ModerationServer) reviewTargets() []int64 {
	cfg := s.state.Config()
	if cfg.ReviewTargetID != "" {
		if id, err := strconv.ParseInt(cfg.ReviewTargetID, 10, 64); err == nil {
			return []int64{id}
		}
	}
	var targets []int64
	for _, raw := range cfg.AdminIDs {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			targets = append(targets, id)
		}
	}
	return targets
}

func (s *ModerationServer) handleCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}

	if !s.isAdminSender(c) {
		return c.Respond(&tele.CallbackResponse{Text: "Admins only.", ShowAlert: true})
	}

	// Buttons built with markup.Data arrive pre-split into Unique and
	// payload; raw callbacks keep everything in Data.
	verb, arg := cb.Unique, strings.TrimSpace(cb.Data)
	if verb == "" {
		verb, arg, _ = strings.Cut(strings.TrimPrefix(arg, "\f"), "|")
	}
	switch verb {
	case "approve", "reject", "ban":
		return s.handleVerdict(c, verb, arg)
	case "panel":
		return s.handlePanel(c, arg)
	default:
		return c.Respond(&tele.CallbackResponse{})
	}
}

// handleVerdict executes a review decision pressed on a card. Ban
// callbacks carry "<id>|<fromID>" so the block works even after the
// ledger entry is gone.
func (s *ModerationServer) handleVerdict(c tele.Context, verb, arg string) error {
	ctx := context.Background()
	by := strings.TrimSpace(c.Sender().FirstName + " " + c.Sender().LastName)

	var req *domain.PendingRequest
	var err error
	var label string
	switch verb {
	case "approve":
		req, err = s.review.Approve(ctx, arg, by)
		label = "✅ Approved"
	case "reject":
		req, err = s.review.Reject(ctx, arg)
		label = "🚫 Rejected"
	case "ban":
		id, rawFrom, _ := strings.Cut(arg, "|")
		fromID, _ := strconv.ParseInt(rawFrom, 10, 64)
		req, err = s.review.Ban(ctx, id, fromID)
		label = "⛔ Banned"
		if err == nil && req == nil && fromID != 0 {
			// Request already resolved; the block still landed.
			if eerr := c.Edit(fmt.Sprintf("%s by %s\nSender %d blocked.", label, by, fromID)); eerr != nil {
				fmt.Printf("[Server] Failed to edit review card: %v\n", eerr)
			}
			return c.Respond(&tele.CallbackResponse{Text: label})
		}
	}
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("Failed: %v", err), ShowAlert: true})
	}
	if req == nil {
		// Another admin got there first.
		return c.Respond(&tele.CallbackResponse{Text: "Already handled."})
	}

	if err := c.Edit(fmt.Sprintf("%s by %s\nRequest %s (from %s)", label, by, req.ID, req.FromName)); err != nil {
		fmt.Printf("[Server] Failed to edit review card: %v\n", err)
	}
	return c.Respond(&tele.CallbackResponse{Text: label})
}

func (s *ModerationServer) sendStats(c tele.Context) error {
	snap := s.metrics.Snapshot()
	return c.Send(fmt.Sprintf(
		"📊 Stats\nPending: %d\nApproved: %d\nRejected: %d\nSources seen: %d\nAllow-listed: %d\nBlock-listed: %d",
		snap.Pending, snap.Approved, snap.Rejected,
		s.metrics.SourceCount(), s.state.AllowCount(), s.state.BlockCount(),
	))
}

func (s *ModerationServer) isAdminSender(c tele.Context) bool {
	sender := c.Sender()
	return sender != nil && s.state.IsAdmin(sender.ID)
}

func inboundFromMessage(m *tele.Message) domain.InboundPost {
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	post := domain.InboundPost{
		SourceChatID: m.Chat.ID,
		MessageID:    m.ID,
		Text:         text,
		SentAt:       m.Time(),
	}
	if m.Sender != nil {
		post.FromID = m.Sender.ID
		post.FromName = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
		if post.FromName == "" {
			post.FromName = m.Sender.Username
		}
	} else {
		// Channel posts carry no sender; the channel title stands in.
		post.FromName = m.Chat.Title
	}
	return post
}

func rejectionText(d usecase.Decision) string {
	switch d.Reason {
	case usecase.ReasonCooldown:
		wait := d.RetryAfter.Round(time.Second)
		if wait < time.Second {
			wait = time.Second
		}
		return fmt.Sprintf("⏳ Too fast. Try again in %v.", wait)
	case usecase.ReasonNotAllowlisted:
		return "🔒 Submissions are restricted to approved senders. Contact an admin."
	case usecase.ReasonNoTemplateMatch:
		return "📋 Your post does not match any accepted template."
	default:
		return "Your post was not accepted."
	}
}

func reviewCardText(req *domain.PendingRequest) string {
	var sb strings.Builder
	sb.WriteString("📨 Review request ")
	sb.WriteString(req.ID)
	sb.WriteString("\nFrom: ")
	if req.FromName != "" {
		sb.WriteString(req.FromName)
	} else {
		sb.WriteString("(channel)")
	}
	fmt.Fprintf(&sb, "\nChat: %d, message: %d", req.SourceChatID, req.MessageID)
	if req.Suspected != nil {
		fmt.Fprintf(&sb, "\n⚠️ Matches template %q (score %.3f)", req.Suspected.Template, req.Suspected.Score)
	}
	return sb.String()
}

func verdictMarkup(id string, fromID int64) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(tele.Row{
		markup.Data("✅ Approve", "approve", id),
		markup.Data("🚫 Reject", "reject", id),
		markup.Data("⛔ Ban", "ban", id, strconv.FormatInt(fromID, 10)),
	})
	return markup
}
