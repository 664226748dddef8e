package keyboard

import (
	"reflect"
	"testing"
)

func TestReplyRowBreaks(t *testing.T) {
	m := Reply("Lunch", "List\n", "Settings")
	if !m.ResizeKeyboard {
		t.Fatal("reply keyboard should be resized")
	}
	if len(m.ReplyKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(m.ReplyKeyboard))
	}
	if len(m.ReplyKeyboard[0]) != 2 || m.ReplyKeyboard[0][1].Text != "List" {
		t.Fatalf("first row = %+v", m.ReplyKeyboard[0])
	}
	if m.ReplyKeyboard[1][0].Text != "Settings" {
		t.Fatalf("second row = %+v", m.ReplyKeyboard[1])
	}
}

func TestInlineKeepsDataVerbatim(t *testing.T) {
	m := Inline(
		InlineBtn{Text: "+1\n", Data: "tz-plus"},
		InlineBtn{Text: "Back", Data: "back"},
	)
	if len(m.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(m.InlineKeyboard))
	}
	if m.InlineKeyboard[0][0].Text != "+1" || m.InlineKeyboard[0][0].Unique != "" {
		t.Fatalf("button = %+v", m.InlineKeyboard[0][0])
	}
	if got := InlineData(m); !reflect.DeepEqual(got, []string{"tz-plus", "back"}) {
		t.Fatalf("data = %v", got)
	}
}

func TestRowsTrailingBreakLeavesNoEmptyRow(t *testing.T) {
	rows := Rows([]string{"a\n", "b\n"})
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	if Rows(nil) != nil {
		t.Fatal("no labels should yield no rows")
	}
}
