package server

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"
)

// showPanel sends the admin control panel.
func (s *ModerationServer) showPanel(c tele.Context) error {
	return c.Send("🛠 Moderation panel", panelMarkup())
}

func panelMarkup() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(
		tele.Row{
			markup.Data("📊 Status", "panel", "status"),
			markup.Data("🔒 Allowlist mode", "panel", "allowlist"),
		},
		tele.Row{
			markup.Data("🎯 Forward target", "panel", "forward"),
			markup.Data("👁 Review target", "panel", "review"),
		},
		tele.Row{
			markup.Data("📋 Strict templates", "panel", "strict"),
			markup.Data("🎚 Threshold", "panel", "threshold"),
		},
		tele.Row{
			markup.Data("👋 Welcome text", "panel", "welcome"),
			markup.Data("🔘 Buttons", "panel", "buttons"),
		},
		tele.Row{
			markup.Data("📄 Templates", "panel", "templates"),
			markup.Data("📡 Sources", "panel", "sources"),
		},
		tele.Row{
			markup.Data("👤 Admins", "panel", "admins"),
			markup.Data("✅ Allow user", "panel", "allow"),
		},
		tele.Row{
			markup.Data("⛔ Block user", "panel", "block"),
		},
	)
	return markup
}

// handlePanel dispatches a pressed panel button.
func (s *ModerationServer) handlePanel(c tele.Context, section string) error {
	defer c.Respond(&tele.CallbackResponse{})
	ctx := context.Background()

	switch section {
	case "status":
		return c.Send(s.statusText())

	case "allowlist":
		on, err := s.state.ToggleAllowlistMode(ctx)
		if err != nil {
			return c.Send(fmt.Sprintf("Failed: %v", err))
		}
		return c.Send(fmt.Sprintf("Allowlist mode: %s", onOff(on)))

	case "strict":
		on, err := s.state.ToggleStrictTemplate(ctx)
		if err != nil {
			return c.Send(fmt.Sprintf("Failed: %v", err))
		}
		return c.Send(fmt.Sprintf("Strict templates: %s", onOff(on)))

	case "forward":
		return s.ask(c, promptForward,
			fmt.Sprintf("Forward target: %s\nReply with the destination chat ID.", s.state.Config().ForwardTargetID))

	case "review":
		return s.ask(c, promptReview,
			fmt.Sprintf("Review target: %s\nReply with the review chat ID, or \"clear\" to DM admins instead.",
				orDash(s.state.Config().ReviewTargetID)))

	case "threshold":
		return s.ask(c, promptThreshold,
			fmt.Sprintf("Current threshold: %.2f\nReply with a value between 0 and 1.", s.state.Config().DefaultThreshold))

	case "welcome":
		return s.ask(c, promptWelcome, "Reply with the new welcome text.")

	case "buttons":
		return s.ask(c, promptButtons,
			s.buttonsText()+"\nReply with one button per line as:\ntext | https://url\n(or \"clear\" to remove all)")

	case "templates":
		return s.ask(c, promptTemplate,
			s.templatesText()+"\nReply with:\nname [threshold]\n<template content...>\n(\"del name\" removes one, \"test <text>\" scores a sample)")

	case "sources":
		return s.ask(c, promptSources,
			s.sourcesText()+"\nReply with +chatID to add, -chatID to remove, or \"clear\" to allow all.")

	case "admins":
		return s.ask(c, promptAdmins,
			fmt.Sprintf("Admins: %s\nReply with +userID to add or -userID to remove.",
				strings.Join(s.state.Config().AdminIDs, ", ")))

	case "allow":
		return s.ask(c, promptAllow, "Reply with a user ID to allow-list, or \"del userID\" to remove.")

	case "block":
		return s.ask(c, promptBlock, "Reply with a user ID to block, or \"del userID\" to unblock.")

	default:
		return s.showPanel(c)
	}
}

func (s *ModerationServer) statusText() string {
	cfg := s.state.Config()
	snap := s.metrics.Snapshot()
	var sb strings.Builder
	sb.WriteString("📊 Status\n")
	fmt.Fprintf(&sb, "Forward target: %s\n", cfg.ForwardTargetID)
	fmt.Fprintf(&sb, "Review target: %s\n", orDash(cfg.ReviewTargetID))
	fmt.Fprintf(&sb, "Allowlist mode: %s\n", onOff(cfg.AllowlistMode))
	fmt.Fprintf(&sb, "Strict templates: %s\n", onOff(cfg.StrictTemplate))
	fmt.Fprintf(&sb, "Threshold: %.2f\n", cfg.DefaultThreshold)
	fmt.Fprintf(&sb, "Attach buttons: %s\n", onOff(cfg.AttachButtons))
	fmt.Fprintf(&sb, "Pending: %d | Approved: %d | Rejected: %d\n", snap.Pending, snap.Approved, snap.Rejected)
	fmt.Fprintf(&sb, "Allow-listed: %d | Block-listed: %d | Sources seen: %d",
		s.state.AllowCount(), s.state.BlockCount(), s.metrics.SourceCount())
	return sb.String()
}

func (s *ModerationServer) buttonsText() string {
	buttons := s.state.Buttons()
	if len(buttons) == 0 {
		return "No buttons configured."
	}
	var sb strings.Builder
	sb.WriteString("Buttons:\n")
	for _, b := range buttons {
		fmt.Fprintf(&sb, "%d. %s | %s\n", b.Order, b.Text, b.URL)
	}
	return sb.String()
}

func (s *ModerationServer) templatesText() string {
	templates := s.state.Templates()
	if len(templates) == 0 {
		return "No templates configured."
	}
	var sb strings.Builder
	sb.WriteString("Templates:\n")
	for _, t := range templates {
		threshold := "default"
		if t.Threshold > 0 {
			threshold = fmt.Sprintf("%.2f", t.Threshold)
		}
		fmt.Fprintf(&sb, "- %s (threshold %s)\n", t.Name, threshold)
	}
	return sb.String()
}

func (s *ModerationServer) sourcesText() string {
	sources := s.state.Sources()
	if len(sources) == 0 {
		return "Source allow-list empty: all chats accepted."
	}
	return "Allowed sources: " + strings.Join(sources, ", ")
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func orDash(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}
