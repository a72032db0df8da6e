package types

// CardReadRequest is the wire shape a reader bridge posts for a card swipe.
type CardReadRequest struct {
	ReaderID       string         `json:"reader_id"`
	CardNumber     string         `json:"card_number"`
	BitLength      int            `json:"bit_length,omitempty"`
	AdditionalData map[string]any `json:"additional_data,omitempty"`
}

type PinDigitRequest struct {
	ReaderID string `json:"reader_id"`
	Digit    string `json:"digit"`
}

type PinDigitResponse struct {
	Complete bool `json:"complete"`
	Length   int  `json:"length"`
}

type ReaderStatusRequest struct {
	ReaderID string `json:"reader_id"`
	Online   bool   `json:"online"`
}
