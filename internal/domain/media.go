package domain

import "time"

const (
	MediaStatusPending    = "pending"
	MediaStatusProcessing = "processing"
	MediaStatusReady      = "ready"
	MediaStatusFailed     = "failed"
)

type Media struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Filename      string    `json:"filename"`
	ContentType   string    `json:"content_type"`
	SizeBytes     int64     `json:"size_bytes"`
	Status        string    `json:"status"`
	StoragePath   string    `json:"storage_path"`
	ThumbnailPath string    `json:"thumbnail_path"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type MediaInput struct {
	UserID      int64  `json:"user_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	StoragePath string `json:"storage_path"`
}

type MediaUpdate struct {
	Status        *string `json:"status,omitempty"`
	StoragePath   *string `json:"storage_path,omitempty"`
	ThumbnailPath *string `json:"thumbnail_path,omitempty"`
}

type MediaOutput struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Filename      string    `json:"filename"`
	ContentType   string    `json:"content_type"`
	SizeBytes     int64     `json:"size_bytes"`
	Status        string    `json:"status"`
	ThumbnailPath string    `json:"thumbnail_path"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (in *MediaInput) Validate() error {
	if in.Filename == "" {
		return NewValidationError("filename is required")
	}
	if in.SizeBytes < 0 {
		return NewValidationError("size_bytes cannot be negative")
	}
	return nil
}

func (u *MediaUpdate) Validate() error {
	if u.Status == nil {
		return nil
	}
	switch *u.Status {
	case MediaStatusPending, MediaStatusProcessing, MediaStatusReady, MediaStatusFailed:
		return nil
	}
	return NewValidationError("status must be one of pending, processing, ready, failed")
}
