package ratelimit

import "net/http"

// statusRecorder guarda o status escrito pelo handler downstream
// para alimentar a reputação do cliente.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap permite http.ResponseController (Flush, deadlines) atravessar o wrapper.
func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }
