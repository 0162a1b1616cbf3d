package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"fullsync/internal/joblog"
	"fullsync/internal/metrics"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	MaxPayloadBytes = 25 << 20 // 25 MiB
	PreviewLength   = 200      // characters of the body logged per request

	// MissingRef stands in for an absent or null ref in the ignore message.
	MissingRef = "<missing>"

	AcceptedMessage = "Thanks for the update! Running full."
)

// HandleWebhook handles GitHub push webhooks
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ts := time.Now()
	buf := joblog.New(s.Logger.Handler())
	log := buf.Logger()

	// The buffer is flushed here unless a job watcher took it over
	handedOff := false
	defer func() {
		if !handedOff {
			s.flush(buf)
		}
	}()

	log.Info("Received webhook", "request_id", middleware.GetReqID(r.Context()), "remote_addr", r.RemoteAddr)

	// Read payload
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes+1))
	if err != nil {
		log.Error("Failed to read request body", "error", err)
		s.reject(w, metrics.OutcomeMalformed)
		return
	}
	if len(body) > MaxPayloadBytes {
		log.Error("Payload too large", "limit_bytes", MaxPayloadBytes)
		s.reject(w, metrics.OutcomeMalformed)
		return
	}
	if !utf8.Valid(body) || bytes.ContainsRune(body, utf8.RuneError) {
		log.Error("Request body is not valid UTF-8")
		s.reject(w, metrics.OutcomeMalformed)
		return
	}

	// Verify signature
	signature := r.Header.Get(SignatureHeader)
	if !VerifySignature([]byte(s.Config.Secret), body, signature) {
		log.Error("Signature mismatch",
			"expected", ExpectedSignature([]byte(s.Config.Secret), body),
			"actual", signature,
			"headers", fmt.Sprint(r.Header),
			"body", string(body))
		s.reject(w, metrics.OutcomeBadSig)
		return
	}

	log.Info("Message: " + preview(string(body), PreviewLength))

	// Parse JSON payload. Only an object with a string ref can match.
	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("Failed to parse JSON payload", "error", err)
		s.reject(w, metrics.OutcomeMalformed)
		return
	}
	fields, _ := payload.(map[string]interface{})
	ref, isString := fields["ref"].(string)

	expected := s.Config.SourceRef
	if !isString || ref != expected {
		msg := fmt.Sprintf("Ignoring push to %s, expected %s.", describeRef(fields["ref"]), expected)
		log.Info(msg)
		s.metrics.WebhookRequest(metrics.OutcomeIgnored)
		respondText(w, msg)
		return
	}

	s.metrics.WebhookRequest(metrics.OutcomeAccepted)
	respondText(w, AcceptedMessage)

	done, started := s.trigger.Trigger(s.jobContext(), log, ts)
	s.metrics.Trigger("webhook", started)
	if !started {
		return
	}

	handedOff = true
	s.jobWg.Add(1)
	go func() {
		defer s.jobWg.Done()
		defer s.flush(buf)

		if err := <-done; err != nil {
			log.Error("Update failed", "error", err)
			s.Fail(err)
		}
	}()
}

// describeRef renders a payload ref for the ignore message, whatever its
// JSON type.
func describeRef(v interface{}) string {
	if v == nil {
		return MissingRef
	}
	return fmt.Sprint(v)
}

func (s *Server) reject(w http.ResponseWriter, outcome string) {
	s.metrics.WebhookRequest(outcome)
	drop(w)
}

func respondText(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, msg)
}

// preview returns the first n characters of s.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
