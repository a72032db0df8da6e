package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/eventbus"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// sseQueueLen bounds the frames buffered for one slow client.
const sseQueueLen = 32

type sseFrame struct {
	name string
	data []byte
}

// encodeFrame names and encodes the events streamed to observers.  Other
// bus traffic is not streamed.
func encodeFrame(ev any) (sseFrame, bool) {
	var name string
	switch e := ev.(type) {
	case types.CardProcessingCompleted:
		name = "card_processing_completed"
	case types.PinProcessingCompleted:
		name = "pin_processing_completed"
	case types.ReaderStatusChanged:
		name = "reader_status_changed"
	case types.DigitReceived:
		name = "digit_received"
		// Keypad digits are part of a PIN; observers only see that a key
		// was pressed.
		if len(e.Digit) == 1 && e.Digit[0] >= '0' && e.Digit[0] <= '9' {
			e.Digit = ""
		}
		ev = e
	default:
		return sseFrame{}, false
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return sseFrame{}, false
	}
	return sseFrame{name: name, data: data}, true
}

// handleEvents streams bus events as Server-Sent Events until the client
// goes away or the server shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	frames := make(chan sseFrame, sseQueueLen)
	sub, err := eventbus.SubscribeAll(s.bus, func(ev any) {
		f, ok := encodeFrame(ev)
		if !ok {
			return
		}
		select {
		case frames <- f:
		default:
			s.logger.Warn("event stream client too slow, frame dropped", "event", f.name, "from", r.RemoteAddr)
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "events_unavailable", "event stream is shutting down")
		return
	}
	defer sub.Unsubscribe()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		s.logger.Warn("event stream flush failed", "error", err)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case f := <-frames:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.name, f.data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
