// Package subscription registers email addresses on the notification topic.
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"

	"CryptoWatch/internal/metrics"
	"CryptoWatch/internal/topic"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrSubscriptionFailed = errors.New("subscription failed")
)

// ProtocolEmail is the only protocol accepted by the endpoint.
const ProtocolEmail = "email"

const maxBodyBytes = 4096

// local-part@label(.label)+ with no whitespace or extra '@'.
var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s.]+(\.[^@\s.]+)+$`)

// Request is the inbound JSON body.
type Request struct {
	Email string `json:"email"`
}

// Response mirrors the synchronous HTTP-style reply.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// ValidateEmail returns ErrInvalidInput unless email looks like local@domain.tld.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if !emailRe.MatchString(email) {
		return fmt.Errorf("%w: malformed email %q", ErrInvalidInput, email)
	}
	return nil
}

// Handler validates subscription requests and subscribes valid addresses to the topic.
type Handler struct {
	Topic   topic.Topic
	Metrics *metrics.Metrics
}

func NewHandler(t topic.Topic, m *metrics.Metrics) *Handler {
	return &Handler{Topic: t, Metrics: m}
}

// Subscribe validates email and issues an email protocol subscription.
// Confirmation mail is the topic's job; the subscription starts pending.
func (h *Handler) Subscribe(ctx context.Context, email string) (topic.Subscription, error) {
	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		return topic.Subscription{}, err
	}
	sub, err := h.Topic.Subscribe(ctx, ProtocolEmail, email)
	if err != nil {
		return topic.Subscription{}, fmt.Errorf("%w: %v", ErrSubscriptionFailed, err)
	}
	return sub, nil
}

// Handle processes a raw JSON body and returns the response to send back.
func (h *Handler) Handle(ctx context.Context, body []byte) Response {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.Metrics.Subscription("invalid")
		return Response{StatusCode: http.StatusBadRequest, Body: "Request body must be JSON with an email field"}
	}

	sub, err := h.Subscribe(ctx, req.Email)
	switch {
	case errors.Is(err, ErrInvalidInput):
		h.Metrics.Subscription("invalid")
		return Response{StatusCode: http.StatusBadRequest, Body: "Please provide a valid email address"}
	case err != nil:
		log.Printf("[ERROR] subscribe %s: %v", req.Email, err)
		h.Metrics.Subscription("failed")
		return Response{StatusCode: http.StatusInternalServerError, Body: "Subscription failed, please try again later"}
	}

	log.Printf("[INFO] subscribed %s (%s), status: %s", sub.Endpoint, sub.ID, sub.Status)
	h.Metrics.Subscription("ok")
	return Response{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf("Successfully subscribed %s to the topic", sub.Endpoint),
	}
}

// ServeHTTP adapts Handle to net/http, writing the Response as JSON.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var resp Response
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		resp = Response{StatusCode: http.StatusBadRequest, Body: "Could not read request body"}
	} else {
		resp = h.Handle(r.Context(), body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	json.NewEncoder(w).Encode(resp)
}
