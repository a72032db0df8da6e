package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"google.golang.org/protobuf/types/known/structpb"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errTrailingData = errors.New("unexpected data after JSON body")

// decodeRequest fills dst from a JSON body, or from a protobuf Struct body
// carrying the same fields.  Unknown fields are rejected either way.
func decodeRequest(r *http.Request, dst any) error {
	if isProtobuf(r) {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			return err
		}
		b, err := json.Marshal(msg.AsMap())
		if err != nil {
			return err
		}
		return decodeJSON(bytes.NewReader(b), dst)
	}
	return decodeJSON(r.Body, dst)
}

func decodeJSON(rd io.Reader, dst any) error {
	dec := json.NewDecoder(rd)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}

// respond answers in the encoding the request used.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if isProtobuf(r) {
		msg, err := toStruct(v)
		if err == nil {
			writeProto(w, status, msg)
			return
		}
	}
	writeJSON(w, status, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeDecodeError maps a body decoding failure to 413 or 400.
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body exceeds 4096 bytes")
		return
	}
	writeError(w, http.StatusBadRequest, "bad_body", "invalid request body")
}
