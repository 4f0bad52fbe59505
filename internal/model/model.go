// Package model contains the records shared between the stores, the bot and
// the scheduler.
package model

import (
	"time"
)

// Kind is the media primitive an artifact was uploaded with. Delivery must use
// the same primitive, so the value is persisted next to the file handle.
type Kind string

const (
	KindVideo     Kind = "video"
	KindDocument  Kind = "document"
	KindAudio     Kind = "audio"
	KindImage     Kind = "image"
	KindAnimation Kind = "animation"
	KindVoice     Kind = "voice"
)

// Kinds lists every supported artifact kind.
var Kinds = []Kind{KindVideo, KindDocument, KindAudio, KindImage, KindAnimation, KindVoice}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// MaxDescriptionLen bounds Artifact.Description, counted in characters.
const MaxDescriptionLen = 50

// Identity is a user the bot has seen at least once.
type Identity struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"firstName"`
	Username  string    `json:"username,omitempty"`
	FirstSeen time.Time `json:"firstSeen"`
}

// AuthorizedUploader is a grant made by the owner.
type AuthorizedUploader struct {
	UserID    int64     `json:"userId"`
	GrantedBy int64     `json:"grantedBy"`
	GrantedAt time.Time `json:"grantedAt"`
}

// Artifact maps an access code to a transport file handle. Rows are never
// updated once written.
type Artifact struct {
	Code        string    `json:"code"`
	FileID      string    `json:"fileId"`
	Description string    `json:"description"`
	Kind        Kind      `json:"kind"`
	UploadedBy  int64     `json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DeliveryObligation is a pending deletion of the messages produced by one
// delivery.
type DeliveryObligation struct {
	ID         string     `json:"id"`
	ChatID     int64      `json:"chatId"`
	MessageIDs []int      `json:"messageIds"`
	CreatedAt  time.Time  `json:"createdAt"`
	DeleteAt   time.Time  `json:"deleteAt"`
	FiredAt    *time.Time `json:"firedAt,omitempty"`
}

// Fired reports whether the obligation has already been claimed.
func (o DeliveryObligation) Fired() bool {
	return o.FiredAt != nil
}
