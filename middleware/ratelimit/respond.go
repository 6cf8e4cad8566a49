package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

const (
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerReset      = "X-RateLimit-Reset"
	headerRetryAfter = "Retry-After"
)

func setRateLimitHeaders(h http.Header, dec domain.Decision) {
	h.Set(headerLimit, formatInt(dec.Limit))
	h.Set(headerRemaining, formatInt(max(0, dec.Remaining)))
	h.Set(headerReset, formatInt64(dec.ResetEpoch))
}

type deniedBody struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Error   string        `json:"error"`
	Details deniedDetails `json:"details"`
}

type deniedDetails struct {
	Limit         int      `json:"limit"`
	WindowSeconds int      `json:"window_seconds"`
	ClientScore   *float64 `json:"client_score,omitempty"`
	Violations    *int     `json:"violations,omitempty"`
	ResetTime     int64    `json:"reset_time"`
	RetryAfter    int64    `json:"retry_after"`
	Suggestions   []string `json:"suggestions,omitempty"`
}

func deniedPayload(dec domain.Decision, now time.Time) deniedBody {
	retry := dec.RetryAfterSeconds(now)
	body := deniedBody{
		Success: false,
		Message: "Rate limit exceeded",
		Error:   "TOO_MANY_REQUESTS",
		Details: deniedDetails{
			Limit:         dec.Limit,
			WindowSeconds: dec.WindowSeconds,
			ResetTime:     dec.ResetEpoch,
			RetryAfter:    retry,
		},
	}

	if dec.Mode == domain.ModeAdaptive {
		body.Message = "Adaptive rate limit exceeded"
		body.Error = "ADAPTIVE_RATE_LIMIT_EXCEEDED"
		if rep := dec.Reputation; rep != nil {
			score := math.Round(rep.Score*1000) / 1000
			violations := rep.Violations
			body.Details.ClientScore = &score
			body.Details.Violations = &violations
			body.Details.Suggestions = suggestions(*rep, retry)
		}
	}
	return body
}

func suggestions(rep domain.ReputationEntry, retry int64) []string {
	out := []string{"Wait " + formatInt64(retry) + " seconds before retrying"}
	if rep.Violations > 0 {
		out = append(out, "Repeated limit violations shrink your quota; spread requests over the window")
	}
	if rep.Score < 1 {
		out = append(out, "Failed requests lower your client score; successful requests raise it back")
	}
	return out
}

// writeDenied responde 429 com headers e corpo JSON.
func writeDenied(w http.ResponseWriter, dec domain.Decision, now time.Time) {
	h := w.Header()
	setRateLimitHeaders(h, dec)
	h.Set(headerRetryAfter, formatInt64(dec.RetryAfterSeconds(now)))
	writeJSON(w, http.StatusTooManyRequests, deniedPayload(dec, now))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
