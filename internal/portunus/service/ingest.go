package service

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

var (
	ErrInvalidReaderID   = errors.New("reader_id is required")
	ErrInvalidCardNumber = errors.New("card_number must be 1-128 non-space characters")
	ErrInvalidBitLength  = errors.New("bit_length must not be negative")
	ErrInvalidDigit      = errors.New("digit must be a single character")
)

const maxCardNumberLen = 128

// NewCardReadEvent validates a reader's card report and turns it into the
// event the pipeline processes.
func NewCardReadEvent(req types.CardReadRequest, readerName string, now time.Time) (types.CardReadEvent, error) {
	readerID := strings.TrimSpace(req.ReaderID)
	if readerID == "" {
		return types.CardReadEvent{}, ErrInvalidReaderID
	}
	card := strings.TrimSpace(req.CardNumber)
	if card == "" || len(card) > maxCardNumberLen || strings.IndexFunc(card, unicode.IsSpace) >= 0 {
		return types.CardReadEvent{}, ErrInvalidCardNumber
	}
	if req.BitLength < 0 {
		return types.CardReadEvent{}, ErrInvalidBitLength
	}

	return types.CardReadEvent{
		ReaderID:       readerID,
		CardNumber:     card,
		BitLength:      req.BitLength,
		ReaderName:     readerName,
		Timestamp:      now.UTC(),
		AdditionalData: req.AdditionalData,
	}, nil
}

// ParseDigit extracts the single keypad character from a digit report.
func ParseDigit(req types.PinDigitRequest) (string, rune, error) {
	readerID := strings.TrimSpace(req.ReaderID)
	if readerID == "" {
		return "", 0, ErrInvalidReaderID
	}
	runes := []rune(req.Digit)
	if len(runes) != 1 {
		return "", 0, ErrInvalidDigit
	}
	return readerID, runes[0], nil
}
