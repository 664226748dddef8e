package state

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Record is the persisted state of one chat/message lineage.
//
// ModuleID names the active handler module; empty means the root module.
// Data values are JSON documents whose shape is agreed on per key by handler code.
type Record struct {
	ID          string            `json:"id"`
	ChatID      int64             `json:"chat_id"`
	MessageID   int               `json:"message_id"`
	ModuleID    string            `json:"module_id,omitempty"`
	Data        map[string]string `json:"data"`
	LastUpdated time.Time         `json:"last_updated"`
}

// NewRecord returns an empty record for the chat/message pair.
func NewRecord(chatID int64, messageID int) *Record {
	return &Record{
		ChatID:      chatID,
		MessageID:   messageID,
		Data:        make(map[string]string),
		LastUpdated: time.Now().UTC(),
	}
}

// Set serializes v under key.
func (r *Record) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	if r.Data == nil {
		r.Data = make(map[string]string)
	}
	r.Data[key] = string(raw)
	r.touch()
	return nil
}

// Get decodes the value stored under key into dest.
// It reports false when the key is absent.
func (r *Record) Get(key string, dest any) (bool, error) {
	raw, ok := r.Data[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return true, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.Data[key]
	return ok
}

// Remove deletes key. Removing a missing key is a no-op.
func (r *Record) Remove(key string) {
	if _, ok := r.Data[key]; !ok {
		return
	}
	delete(r.Data, key)
	r.touch()
}

// SetModule switches the active module id.
func (r *Record) SetModule(id string) {
	r.ModuleID = id
	r.touch()
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Data = maps.Clone(r.Data)
	if c.Data == nil {
		c.Data = make(map[string]string)
	}
	return &c
}

// Fork returns an unsaved copy bound to another message of the same chat.
// The copy has no id; the store assigns one on insert.
func (r *Record) Fork(messageID int) *Record {
	c := r.Clone()
	c.ID = ""
	c.MessageID = messageID
	c.touch()
	return c
}

func (r *Record) touch() {
	r.LastUpdated = time.Now().UTC()
}

// Decode is a typed shortcut for Record.Get.
func Decode[T any](r *Record, key string) (T, bool, error) {
	var v T
	ok, err := r.Get(key, &v)
	return v, ok, err
}
