// Package keyboard builds Telegram reply and inline markups.
//
// A label ending in "\n" closes the current row; the marker is never shown.
package keyboard

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// RowBreak is the label suffix that starts a new keyboard row.
const RowBreak = "\n"

// InlineBtn is a label with opaque callback data.
type InlineBtn struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Label strips the row-break marker from s.
func Label(s string) string {
	return strings.TrimRight(s, RowBreak)
}

// BreaksRow reports whether s ends the current row.
func BreaksRow(s string) bool {
	return strings.HasSuffix(s, RowBreak)
}

// Rows splits labels into rows following the row-break convention.
func Rows(labels []string) [][]string {
	var rows [][]string
	var cur []string
	for _, l := range labels {
		cur = append(cur, Label(l))
		if BreaksRow(l) {
			rows = append(rows, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		rows = append(rows, cur)
	}
	return rows
}

// Reply builds a resized reply keyboard from labels.
func Reply(labels ...string) *tele.ReplyMarkup {
	return ReplyRows(Rows(labels)...)
}

// ReplyRows builds a resized reply keyboard from explicit rows of text.
func ReplyRows(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	for _, row := range rows {
		buttons := make([]tele.ReplyButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tele.ReplyButton{Text: label})
		}
		markup.ReplyKeyboard = append(markup.ReplyKeyboard, buttons)
	}
	return markup
}

// Inline builds an inline keyboard; a button whose Text ends in "\n" closes its row.
func Inline(buttons ...InlineBtn) *tele.ReplyMarkup {
	var rows [][]InlineBtn
	var cur []InlineBtn
	for _, b := range buttons {
		cur = append(cur, InlineBtn{Text: Label(b.Text), Data: b.Data})
		if BreaksRow(b.Text) {
			rows = append(rows, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		rows = append(rows, cur)
	}
	return InlineRows(rows...)
}

// InlineRows builds an inline keyboard from explicit rows. Data is sent verbatim.
func InlineRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	for _, row := range rows {
		r := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			r = append(r, tele.InlineButton{Text: b.Text, Data: b.Data})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, r)
	}
	return markup
}

// RemoveKeyboard returns a markup that hides the reply keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// ReplyLabels flattens a reply keyboard back into its labels.
func ReplyLabels(m *tele.ReplyMarkup) []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, row := range m.ReplyKeyboard {
		for _, b := range row {
			out = append(out, b.Text)
		}
	}
	return out
}

// InlineData flattens an inline keyboard back into its callback data.
func InlineData(m *tele.ReplyMarkup) []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, row := range m.InlineKeyboard {
		for _, b := range row {
			out = append(out, b.Data)
		}
	}
	return out
}
