package twitch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/hype"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/metrics"
)

// EventSub header and message type constants, per the Twitch webhook contract.
const (
	headerMessageID        = "Twitch-Eventsub-Message-Id"
	headerMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	headerMessageSignature = "Twitch-Eventsub-Message-Signature"
	headerMessageType      = "Twitch-Eventsub-Message-Type"

	messageTypeNotification = "notification"
	messageTypeVerification = "webhook_callback_verification"
	messageTypeRevocation   = "revocation"

	// EventTypeChatMessage routes into the chat command pipeline; every other
	// notification type goes through the policy resolver.
	EventTypeChatMessage = "channel.chat.message"

	signaturePrefix = "sha256="
)

// ChatProcessor handles chat-message notifications.
type ChatProcessor interface {
	Process(ctx context.Context, streamerID uuid.UUID, chatterID, chatterName, message string) bool
}

// webhookEnvelope is the outer EventSub payload shape.
type webhookEnvelope struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}

// webhookEvent is the subset of event fields the handler needs; EventSub
// event shapes vary by type but all carry the broadcaster id.
type webhookEvent struct {
	BroadcasterUserID string `json:"broadcaster_user_id"`
	ChatterUserID     string `json:"chatter_user_id"`
	ChatterUserName   string `json:"chatter_user_name"`
	Message           struct {
		Text string `json:"text"`
	} `json:"message"`
}

// WebhookHandler terminates the EventSub webhook endpoint: HMAC signature
// verification, challenge handshakes, revocations, and idempotent
// notification processing.
type WebhookHandler struct {
	secret    string
	streamers domain.StreamerRepository
	receipts  *hype.ReceiptGuard
	chat      ChatProcessor
	policy    *hype.PolicyResolver
	engine    *hype.Engine
	snapshots *hype.SnapshotBuilder
	hub       hype.Broadcaster
}

func NewWebhookHandler(secret string, streamers domain.StreamerRepository, receipts *hype.ReceiptGuard, chat ChatProcessor, policy *hype.PolicyResolver, engine *hype.Engine, snapshots *hype.SnapshotBuilder, hub hype.Broadcaster) *WebhookHandler {
	return &WebhookHandler{
		secret:    secret,
		streamers: streamers,
		receipts:  receipts,
		chat:      chat,
		policy:    policy,
		engine:    engine,
		snapshots: snapshots,
		hub:       hub,
	}
}

// VerifySignature checks the HMAC-SHA256 signature Twitch computes over
// messageID + timestamp + rawBody. Comparison is constant time.
func VerifySignature(secret, messageID, timestamp string, body []byte, signature string) bool {
	if messageID == "" || timestamp == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	expected := signaturePrefix + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HandleEventSub is the POST handler for the webhook callback URL.
//
// Response contract: 403 on signature failure, 400 on malformed JSON or a
// handshake without a challenge, 200 with the raw challenge for handshakes,
// 204 for everything that was accepted (including duplicates and policy
// no-ops), 500 only on unexpected internal failure.
func (h *WebhookHandler) HandleEventSub(c echo.Context) error {
	req := c.Request()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	messageID := req.Header.Get(headerMessageID)
	timestamp := req.Header.Get(headerMessageTimestamp)
	signature := req.Header.Get(headerMessageSignature)
	if !VerifySignature(h.secret, messageID, timestamp, body, signature) {
		metrics.WebhookRequestsTotal.WithLabelValues("bad_signature").Inc()
		slog.Warn("webhook signature rejected", "message_id", messageID)
		return c.NoContent(http.StatusForbidden)
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("bad_payload").Inc()
		return c.NoContent(http.StatusBadRequest)
	}

	switch req.Header.Get(headerMessageType) {
	case messageTypeVerification:
		if envelope.Challenge == "" {
			metrics.WebhookRequestsTotal.WithLabelValues("bad_payload").Inc()
			return c.NoContent(http.StatusBadRequest)
		}
		slog.Info("webhook handshake verified", "subscription_type", envelope.Subscription.Type)
		return c.String(http.StatusOK, envelope.Challenge)

	case messageTypeRevocation:
		slog.Info("eventsub subscription revoked",
			"subscription_id", envelope.Subscription.ID,
			"subscription_type", envelope.Subscription.Type,
		)
		return c.NoContent(http.StatusNoContent)

	case messageTypeNotification:
		if err := h.handleNotification(req.Context(), messageID, &envelope); err != nil {
			metrics.WebhookRequestsTotal.WithLabelValues("error").Inc()
			slog.Error("webhook notification failed", "message_id", messageID, "error", err)
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.NoContent(http.StatusNoContent)

	default:
		// Unknown message types are acknowledged so Twitch stops retrying.
		return c.NoContent(http.StatusNoContent)
	}
}

func (h *WebhookHandler) handleNotification(ctx context.Context, messageID string, envelope *webhookEnvelope) error {
	var event webhookEvent
	if len(envelope.Event) > 0 {
		if err := json.Unmarshal(envelope.Event, &event); err != nil {
			metrics.WebhookRequestsTotal.WithLabelValues("bad_payload").Inc()
			return nil
		}
	}

	streamer, err := h.streamers.GetByTwitchUserID(ctx, event.BroadcasterUserID)
	if errors.Is(err, domain.ErrStreamerNotFound) {
		slog.Debug("notification for unknown broadcaster", "broadcaster_user_id", event.BroadcasterUserID)
		return nil
	}
	if err != nil {
		return err
	}

	// First delivery wins; retries and redeliveries are acknowledged without
	// reprocessing.
	fresh, err := h.receipts.Reserve(ctx, streamer.ID, messageID)
	if err != nil {
		return err
	}
	if !fresh {
		metrics.WebhookRequestsTotal.WithLabelValues("duplicate").Inc()
		metrics.EventsDroppedTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	if envelope.Subscription.Type == EventTypeChatMessage {
		h.chat.Process(ctx, streamer.ID, event.ChatterUserID, event.ChatterUserName, event.Message.Text)
		metrics.WebhookRequestsTotal.WithLabelValues("ok").Inc()
		return nil
	}

	factionKey, delta, ok, err := h.policy.Resolve(ctx, streamer.ID, envelope.Subscription.Type)
	if err != nil {
		return err
	}
	if !ok {
		metrics.EventsDroppedTotal.WithLabelValues("policy_noop").Inc()
		metrics.WebhookRequestsTotal.WithLabelValues("ok").Inc()
		return nil
	}

	meta := map[string]any{
		"eventType": envelope.Subscription.Type,
		"messageId": messageID,
	}
	_, err = h.engine.AddHype(ctx, streamer.ID, factionKey, delta, domain.SourceEventSub, meta)
	if errors.Is(err, domain.ErrUnknownFaction) {
		metrics.EventsDroppedTotal.WithLabelValues("unknown_faction").Inc()
		metrics.WebhookRequestsTotal.WithLabelValues("ok").Inc()
		return nil
	}
	if err != nil {
		return err
	}

	snapshot, err := h.snapshots.Build(ctx, streamer.ID)
	if err != nil {
		slog.Error("post-webhook snapshot failed", "streamer_id", streamer.ID.String(), "error", err)
	} else {
		h.hub.Broadcast(streamer.ID, "meters", snapshot)
	}

	metrics.WebhookRequestsTotal.WithLabelValues("ok").Inc()
	return nil
}
