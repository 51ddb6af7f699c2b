package audit

import (
	"net/http"
)

// recordingWriter copies the response status and size into the audit entry.
// Optional interfaces of the underlying writer (flushing, hijacking, deadlines)
// are reached through Unwrap by http.ResponseController.
type recordingWriter struct {
	http.ResponseWriter
	entry       *Entry
	wroteHeader bool
}

func recordResponse(w http.ResponseWriter, e *Entry) *recordingWriter {
	return &recordingWriter{ResponseWriter: w, entry: e}
}

// WriteHeader records only the first status: later calls are ignored by the
// server too.
func (w *recordingWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.entry.Status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(buf []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	n, err := w.ResponseWriter.Write(buf)
	w.entry.ResponseBytes += int64(n)

	return n, err
}

// Flush is kept on the wrapper itself for middleware that type-asserts
// http.Flusher rather than using a ResponseController.
func (w *recordingWriter) Flush() {
	_ = http.NewResponseController(w.ResponseWriter).Flush()
}

func (w *recordingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
