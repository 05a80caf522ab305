// Package schema defines the records persisted by the communication archive.
// JSON field names follow the layout existing archives were written with.
package schema

import "time"

// Sender identifies who produced a message.
type Sender string

const (
	SenderOperator Sender = "ОПЕРАТОР"
	SenderSystem   Sender = "СИСТЕМА"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	return s == SenderOperator || s == SenderSystem
}

// MessageRecord is one entry of the message log. Records are immutable once stored.
type MessageRecord struct {
	Text        string          `json:"text"`
	Sender      Sender          `json:"sender"`
	Timestamp   time.Time       `json:"timestamp"`
	Priority    bool            `json:"priority"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
}

// AttachmentRef describes a file attached to a message.
// It never carries the file content; FileID is a best-effort copy, not a live reference.
type AttachmentRef struct {
	Name      string `json:"name"`
	MimeType  string `json:"type"`
	SizeBytes int64  `json:"size"`
	FileID    string `json:"fileId,omitempty"`
}

// Category is a coarse classification derived from a MIME type.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryAudio    Category = "audio"
	CategoryVideo    Category = "video"
	CategoryDocument Category = "document"
	CategoryText     Category = "text"
	CategoryOther    Category = "other"
)

// FileRecord is one archived file. Payload is a base64 data URI.
type FileRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"type"`
	SizeBytes  int64     `json:"size"`
	Payload    string    `json:"data"`
	UploadedAt time.Time `json:"uploadDate"`
	Category   Category  `json:"category"`
}

// ActivityStats backs the personal dashboard.
// DailyActivity is keyed by UTC date (YYYY-MM-DD).
type ActivityStats struct {
	MessagesSent  int            `json:"messagesSent"`
	FilesUploaded int            `json:"filesUploaded"`
	SessionsCount int            `json:"sessionsCount"`
	WorkTime      int            `json:"workTime"` // minutes
	DailyActivity map[string]int `json:"dailyActivity"`
}
