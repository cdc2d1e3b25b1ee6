package http

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"voicespese/internal/core"
)

type voiceRequest struct {
	Audio    string `json:"audio"`
	MimeType string `json:"mimeType,omitempty"`
}

var errAudioTooLarge = errors.New("audio payload too large")

// decodeAudio accepts a bare base64 string or a data: URL and returns the
// raw bytes with the best known mime type.
func decodeAudio(req voiceRequest, minBytes, maxBytes int) (core.AudioPayload, error) {
	raw := strings.TrimSpace(req.Audio)
	mime := strings.TrimSpace(req.MimeType)

	if rest, ok := strings.CutPrefix(raw, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if !found {
			return core.AudioPayload{}, core.New(core.KindUnsupportedFormat, "malformed data URL")
		}
		if m := strings.TrimSuffix(meta, ";base64"); mime == "" && m != "" {
			mime = m
		}
		raw = data
	}
	if raw == "" {
		return core.AudioPayload{}, core.New(core.KindRecordingTooShort, "no audio data provided")
	}
	if base64.StdEncoding.DecodedLen(len(raw)) > maxBytes+3 {
		return core.AudioPayload{}, errAudioTooLarge
	}

	data, err := decodeBase64(raw)
	if err != nil {
		return core.AudioPayload{}, core.Wrap(core.KindUnsupportedFormat, "audio is not valid base64", err)
	}
	if len(data) > maxBytes {
		return core.AudioPayload{}, errAudioTooLarge
	}
	if mime == "" {
		mime = sniffMime(data)
	}
	return core.NewAudioPayload(data, mime, minBytes)
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	var firstErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// sniffMime names the container when the client did not.
func sniffMime(data []byte) string {
	switch ct := http.DetectContentType(data); {
	case strings.HasPrefix(ct, "audio/wave"):
		return "audio/wav"
	case strings.HasPrefix(ct, "application/ogg"):
		return "audio/ogg"
	case strings.HasPrefix(ct, "video/webm"):
		return "audio/webm"
	case strings.HasPrefix(ct, "audio/"):
		return ct
	default:
		return "audio/webm"
	}
}
