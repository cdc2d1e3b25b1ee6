package core

import (
	"errors"
	"strings"
	"time"
)

type (
	Money struct {
		Cents int64
	}

	// AudioPayload is a finalized recording ready for transmission. It is
	// handed between stages by value; Data must not be mutated after creation.
	AudioPayload struct {
		Data     []byte
		MimeType string
	}

	TranscriptionResult struct {
		Text string
	}

	ExtractedExpense struct {
		Amount      Money
		Category    Category
		Description string
	}

	PersistedExpense struct {
		ID            int64
		UserID        string
		CategoryID    int64
		Category      Category
		Amount        Money
		Description   string
		Transcription string
		CreatedAt     time.Time
		Archived      bool
	}
)

// MinPayloadBytes is the smallest recording worth sending upstream.
const MinPayloadBytes = 1024

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyDescription    = errors.New("empty description")
	ErrDescriptionTooLong  = errors.New("description too long (max 200 characters)")
	ErrUnknownCategory     = errors.New("unknown category")
	ErrEmptyUser           = errors.New("empty user id")
	ErrEmptyAudio          = errors.New("empty audio payload")
	ErrUnsupportedMimeType = errors.New("unsupported audio mime type")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// NewAudioPayload copies data into an immutable payload. Payloads smaller
// than minBytes are rejected as RecordingTooShort.
func NewAudioPayload(data []byte, mimeType string, minBytes int) (AudioPayload, error) {
	if minBytes <= 0 {
		minBytes = MinPayloadBytes
	}
	if len(data) < minBytes {
		return AudioPayload{}, Newf(KindRecordingTooShort, "recording too short: %d bytes (minimum %d)", len(data), minBytes)
	}
	mimeType = strings.TrimSpace(strings.ToLower(mimeType))
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	if !strings.HasPrefix(mimeType, "audio/") && !strings.HasPrefix(mimeType, "video/webm") {
		return AudioPayload{}, Wrap(KindUnsupportedFormat, "unsupported audio format "+mimeType, ErrUnsupportedMimeType)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return AudioPayload{Data: buf, MimeType: mimeType}, nil
}

// SizeBytes returns the payload length.
func (p AudioPayload) SizeBytes() int {
	return len(p.Data)
}

// Extension returns the file extension the speech-to-text service expects
// for the payload's mime type.
func (p AudioPayload) Extension() string {
	base := p.MimeType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	switch strings.TrimSpace(base) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/ogg":
		return "ogg"
	case "audio/flac":
		return "flac"
	default:
		return "webm"
	}
}

// HasSpeech reports whether the transcription carries any text.
func (r TranscriptionResult) HasSpeech() bool {
	return strings.TrimSpace(r.Text) != ""
}

func (e ExtractedExpense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if !e.Category.Valid() {
		return ErrUnknownCategory
	}
	return nil
}
