package stateful

import (
	"context"

	"github.com/m3rciful/stateful/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// GenerateReply builds a reply keyboard from the module's message and command methods.
func (h *Handler) GenerateReply(ctx context.Context) *tele.ReplyMarkup {
	var labels []string
	for _, meth := range h.module.methods {
		i, ok := meth.display(CondMessage, CondCommand)
		if !ok {
			continue
		}
		lit := meth.Conditions[i].Literal
		if !h.offers(ctx, meth, i, h.syntheticText(keyboard.Label(lit))) {
			continue
		}
		labels = append(labels, lit)
	}
	return keyboard.Reply(labels...)
}

// GenerateInline builds an inline keyboard from the module's callback methods.
func (h *Handler) GenerateInline(ctx context.Context) *tele.ReplyMarkup {
	var buttons []keyboard.InlineBtn
	for _, meth := range h.module.methods {
		i, ok := meth.display(CondCallback)
		if !ok {
			continue
		}
		lit := meth.Conditions[i].Literal
		data := keyboard.Label(lit)
		if !h.offers(ctx, meth, i, h.syntheticCallback(data)) {
			continue
		}
		text := meth.label
		if text == "" {
			text = lit
		}
		buttons = append(buttons, keyboard.InlineBtn{Text: text, Data: data})
	}
	return keyboard.Inline(buttons...)
}

// offers reports whether a menu item is both visible and reachable. Custom
// conditions other than the displayed one are checked against the current update;
// the item must then be what resolution picks for the update it would produce.
func (h *Handler) offers(ctx context.Context, meth *Method, shown int, synthetic tele.Update) bool {
	for i, c := range meth.Conditions {
		if i == shown || c.Kind != CondCustom {
			continue
		}
		if c.Match == nil || !c.Match(ctx, h) {
			return false
		}
	}
	probe := h.Bot.newHandler(h.moduleID, h.module, h.State, synthetic)
	if h.Bot.internal.resolve(ctx, probe) != nil {
		return false
	}
	return h.module.resolve(ctx, probe) == meth
}

func (h *Handler) syntheticText(text string) tele.Update {
	return tele.Update{
		ID: h.Update.ID,
		Message: &tele.Message{
			Text:   text,
			Chat:   chatOf(h.Update),
			Sender: senderOf(h.Update),
		},
	}
}

func (h *Handler) syntheticCallback(data string) tele.Update {
	msgID, _ := h.MessageID()
	return tele.Update{
		ID: h.Update.ID,
		Callback: &tele.Callback{
			Sender:  senderOf(h.Update),
			Message: &tele.Message{ID: msgID, Chat: chatOf(h.Update)},
			Data:    data,
		},
	}
}
