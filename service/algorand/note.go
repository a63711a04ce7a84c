package algorand

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"unicode/utf8"
)

var (
	errInvalidUTF8 = errors.New("note is not valid UTF-8")
	errInteriorNUL = errors.New("note contains a NUL byte")
)

// DecodeNote converts raw annotation bytes to text.
// Trailing NUL padding is removed. Bytes that are not valid UTF-8, or that
// still contain a NUL after trimming, produce a *DecodeError. Postgres text
// columns cannot hold NUL, so such notes are kept only as raw bytes.
func DecodeNote(raw []byte) (string, error) {
	trimmed := bytes.TrimRight(raw, "\x00")
	if !utf8.Valid(trimmed) {
		return "", &DecodeError{Err: errInvalidUTF8}
	}
	if bytes.IndexByte(trimmed, 0) >= 0 {
		return "", &DecodeError{Err: errInteriorNUL}
	}
	return string(trimmed), nil
}

// NoteText decodes raw and returns nil when it is absent or undecodable.
// Decode failures are logged and never returned, so a bad note cannot abort
// ingestion of its transaction.
func NoteText(ctx context.Context, logger *slog.Logger, txID string, raw []byte) *string {
	if len(raw) == 0 {
		return nil
	}
	text, err := DecodeNote(raw)
	if err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "failed to decode transaction note",
				"tx_id", txID,
				"note_bytes", len(raw),
				"error", err,
			)
		}
		return nil
	}
	if text == "" {
		return nil
	}
	return &text
}

// DecodeNoteBase64 decodes a base64 note as served in indexer JSON.
// It returns nil for empty or undecodable input.
func DecodeNoteBase64(encoded string) *string {
	if encoded == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	text, err := DecodeNote(raw)
	if err != nil {
		return nil
	}
	return &text
}
