package stateful

import (
	"context"
	"strconv"
	"strings"

	"github.com/m3rciful/stateful/core/telegram/keyboard"
	"github.com/m3rciful/stateful/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

const (
	// PaginatorKey is the record key holding the paginator cursor.
	PaginatorKey = "paginator_data"
	// DefaultPerPage is used when a paginated message does not set a page size.
	DefaultPerPage = 5

	paginatorMarker = "paginator"
	noopMarker      = "noop"
)

// Paginator is the cursor of a paginated inline menu.
type Paginator struct {
	Page    int                  `json:"page"`
	Pages   int                  `json:"pages"`
	PerPage int                  `json:"per_page"`
	Items   []keyboard.InlineBtn `json:"items"`
}

// NewPaginator splits items into pages of perPage buttons, starting at the first page.
func NewPaginator(items []keyboard.InlineBtn, perPage int) *Paginator {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	pages := (len(items) + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}
	return &Paginator{Pages: pages, PerPage: perPage, Items: items}
}

// PageData is the callback data that turns a paginated menu to page.
func PageData(page int) string {
	return InternalPrefix + paginatorMarker + "-" + strconv.Itoa(page)
}

// Turn moves the cursor to page. It reports false and leaves the cursor alone
// when page is out of range or already current.
func (p *Paginator) Turn(page int) bool {
	if page < 0 || page >= p.Pages || page == p.Page {
		return false
	}
	p.Page = page
	return true
}

// Visible returns the items of the current page.
func (p *Paginator) Visible() []keyboard.InlineBtn {
	from := min(p.Page*p.PerPage, len(p.Items))
	to := min(from+p.PerPage, len(p.Items))
	return p.Items[from:to]
}

// Markup renders the current page, one item per row, followed by navigation.
func (p *Paginator) Markup() *tele.ReplyMarkup {
	var rows [][]keyboard.InlineBtn
	for _, it := range p.Visible() {
		rows = append(rows, []keyboard.InlineBtn{{Text: keyboard.Label(it.Text), Data: it.Data}})
	}
	if p.Pages > 1 {
		var nav []keyboard.InlineBtn
		if p.Page > 0 {
			nav = append(nav, keyboard.InlineBtn{Text: "«", Data: PageData(p.Page - 1)})
		}
		nav = append(nav, keyboard.InlineBtn{
			Text: strconv.Itoa(p.Page+1) + "/" + strconv.Itoa(p.Pages),
			Data: InternalPrefix + noopMarker,
		})
		if p.Page < p.Pages-1 {
			nav = append(nav, keyboard.InlineBtn{Text: "»", Data: PageData(p.Page + 1)})
		}
		rows = append(rows, nav)
	}
	return keyboard.InlineRows(rows...)
}

// SendPaginated sends text with a paginated inline menu. The cursor is stored in
// the record of the sent message.
func (h *Handler) SendPaginated(ctx context.Context, text string, items []keyboard.InlineBtn, perPage int) (*Message, error) {
	p := NewPaginator(items, perPage)
	if err := h.State.Set(PaginatorKey, p); err != nil {
		return nil, err
	}
	return h.SendMessage(ctx, text, p.Markup())
}

func internalModule() *Module {
	return NewModule().
		Handle("paginator", turnPage, OnInternal(paginatorMarker)).
		Handle("noop", func(context.Context, *Handler) error { return nil }, OnInternal(noopMarker))
}

// turnPage moves the cursor, saves the record and redraws the menu in place.
func turnPage(ctx context.Context, h *Handler) error {
	data, _ := h.CallbackData()
	page, err := strconv.Atoi(strings.TrimPrefix(data, InternalPrefix+paginatorMarker+"-"))
	if err != nil {
		return nil
	}
	p, ok, err := state.Decode[Paginator](h.State, PaginatorKey)
	if err != nil {
		return err
	}
	if !ok || !p.Turn(page) {
		return nil
	}
	if err := h.State.Set(PaginatorKey, p); err != nil {
		return err
	}
	if err := h.Save(ctx); err != nil {
		return err
	}
	chatID, _ := h.ChatID()
	msgID, ok := h.MessageID()
	if !ok {
		return nil
	}
	return h.Client.EditMarkup(ctx, chatID, msgID, p.Markup())
}
