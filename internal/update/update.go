// Package update defines the normalized inbound event shape shared by the
// polling and webhook ingress paths. Updates are decoded and validated once
// at ingress; downstream code never touches raw JSON.
package update

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMissingChat = errors.New("update has no chat id")

type Chat struct {
	ID int64 `json:"id"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Sticker struct {
	FileID string `json:"file_id"`
	Emoji  string `json:"emoji"`
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
}

type PhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Update is one inbound event from the platform. Immutable once decoded.
type Update struct {
	UpdateID  int64       `json:"update_id"`
	MessageID int64       `json:"message_id"`
	Chat      Chat        `json:"chat"`
	From      User        `json:"from"`
	Text      string      `json:"text"`
	Sticker   *Sticker    `json:"sticker,omitempty"`
	Document  *Document   `json:"document,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
}

// HasAttachment reports whether the update carries any attachment marker.
func (u Update) HasAttachment() bool {
	return u.Sticker != nil || u.Document != nil || len(u.Photo) > 0
}

// Validate checks the fields every dispatchable update must carry.
func (u Update) Validate() error {
	if u.Chat.ID == 0 {
		return ErrMissingChat
	}
	return nil
}

// Decode parses a single update and rejects it if the conversation
// identifier is absent rather than defaulting silently.
func Decode(data []byte) (Update, error) {
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return Update{}, fmt.Errorf("decoding update: %w", err)
	}
	if err := u.Validate(); err != nil {
		return Update{}, err
	}
	return u, nil
}
