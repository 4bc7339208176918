package endpoints

import (
	"encoding/json"
	"net/http"
)

// ndjsonWriter streams newline-delimited JSON, flushing after every line.
type ndjsonWriter struct {
	enc     *json.Encoder
	flusher http.Flusher
}

func newNDJSONWriter(w http.ResponseWriter) *ndjsonWriter {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	n := &ndjsonWriter{enc: json.NewEncoder(w), flusher: flusher}
	n.flush()
	return n
}

// Send writes one line. An error means the client went away.
func (n *ndjsonWriter) Send(v any) error {
	if err := n.enc.Encode(v); err != nil {
		return err
	}
	n.flush()
	return nil
}

func (n *ndjsonWriter) flush() {
	if n.flusher != nil {
		n.flusher.Flush()
	}
}
