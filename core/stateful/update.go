package stateful

import (
	tele "gopkg.in/telebot.v4"
)

// Kind classifies an update by its payload.
type Kind int

const (
	KindUnknown Kind = iota
	KindMessage
	KindEditedMessage
	KindCallback
	KindChannelPost
	KindEditedChannelPost
	KindChatMember
	KindInlineQuery
	KindShippingQuery
	KindPreCheckoutQuery
	KindChatJoinRequest
)

var kindNames = [...]string{
	KindUnknown:           "unknown",
	KindMessage:           "message",
	KindEditedMessage:     "edited_message",
	KindCallback:          "callback",
	KindChannelPost:       "channel_post",
	KindEditedChannelPost: "edited_channel_post",
	KindChatMember:        "chat_member",
	KindInlineQuery:       "inline_query",
	KindShippingQuery:     "shipping_query",
	KindPreCheckoutQuery:  "pre_checkout_query",
	KindChatJoinRequest:   "chat_join_request",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// conversational reports whether updates of this kind are dispatched.
func (k Kind) conversational() bool {
	return k == KindMessage || k == KindEditedMessage || k == KindCallback
}

// Classify returns the kind of u.
func Classify(u tele.Update) Kind {
	switch {
	case u.Message != nil:
		return KindMessage
	case u.EditedMessage != nil:
		return KindEditedMessage
	case u.Callback != nil:
		return KindCallback
	case u.ChannelPost != nil:
		return KindChannelPost
	case u.EditedChannelPost != nil:
		return KindEditedChannelPost
	case u.ChatMember != nil:
		return KindChatMember
	case u.Query != nil:
		return KindInlineQuery
	case u.ShippingQuery != nil:
		return KindShippingQuery
	case u.PreCheckoutQuery != nil:
		return KindPreCheckoutQuery
	case u.ChatJoinRequest != nil:
		return KindChatJoinRequest
	}
	return KindUnknown
}

// chatOf returns the chat an update belongs to, if any.
func chatOf(u tele.Update) *tele.Chat {
	switch Classify(u) {
	case KindMessage:
		return u.Message.Chat
	case KindEditedMessage:
		return u.EditedMessage.Chat
	case KindCallback:
		if u.Callback.Message != nil {
			return u.Callback.Message.Chat
		}
	case KindChannelPost:
		return u.ChannelPost.Chat
	case KindEditedChannelPost:
		return u.EditedChannelPost.Chat
	case KindChatMember:
		return u.ChatMember.Chat
	case KindChatJoinRequest:
		return u.ChatJoinRequest.Chat
	}
	return nil
}

// ChatID extracts the chat id of u.
func ChatID(u tele.Update) (int64, bool) {
	if c := chatOf(u); c != nil {
		return c.ID, true
	}
	return 0, false
}

// ChatType returns the chat type of u or "" when the update has no chat.
func ChatType(u tele.Update) string {
	if c := chatOf(u); c != nil {
		return string(c.Type)
	}
	return ""
}

// senderOf returns the user who caused u, if known.
func senderOf(u tele.Update) *tele.User {
	switch Classify(u) {
	case KindMessage:
		return u.Message.Sender
	case KindEditedMessage:
		return u.EditedMessage.Sender
	case KindCallback:
		return u.Callback.Sender
	case KindChannelPost:
		return u.ChannelPost.Sender
	case KindEditedChannelPost:
		return u.EditedChannelPost.Sender
	case KindChatMember:
		return u.ChatMember.Sender
	case KindInlineQuery:
		return u.Query.Sender
	case KindShippingQuery:
		return u.ShippingQuery.Sender
	case KindPreCheckoutQuery:
		return u.PreCheckoutQuery.Sender
	case KindChatJoinRequest:
		return u.ChatJoinRequest.Sender
	}
	return nil
}

// UserID extracts the sender id of u.
func UserID(u tele.Update) (int64, bool) {
	if s := senderOf(u); s != nil {
		return s.ID, true
	}
	return 0, false
}

// MessageID extracts the id of the message u refers to.
func MessageID(u tele.Update) (int, bool) {
	var msg *tele.Message
	switch Classify(u) {
	case KindMessage:
		msg = u.Message
	case KindEditedMessage:
		msg = u.EditedMessage
	case KindCallback:
		msg = u.Callback.Message
	case KindChannelPost:
		msg = u.ChannelPost
	case KindEditedChannelPost:
		msg = u.EditedChannelPost
	}
	if msg == nil {
		return 0, false
	}
	return msg.ID, true
}
