package twitch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nicklaw5/helix/v2"
)

// SubscriptionManager creates and removes EventSub webhook subscriptions
// through the Helix API using an app access token.
type SubscriptionManager struct {
	client      *helix.Client
	callbackURL string
	secret      string
	botUserID   string
}

func NewSubscriptionManager(clientID, clientSecret, callbackURL, webhookSecret, botUserID string) (*SubscriptionManager, error) {
	client, err := helix.NewClient(&helix.Options{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("create helix client: %w", err)
	}

	resp, err := client.RequestAppAccessToken(nil)
	if err != nil {
		return nil, fmt.Errorf("request app access token: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("app access token request failed: %s", resp.ErrorMessage)
	}
	client.SetAppAccessToken(resp.Data.AccessToken)

	return &SubscriptionManager{
		client:      client,
		callbackURL: callbackURL,
		secret:      webhookSecret,
		botUserID:   botUserID,
	}, nil
}

// EnsureChatSubscription subscribes the webhook endpoint to the
// broadcaster's chat messages. Creating a subscription that already exists
// is treated as success.
func (m *SubscriptionManager) EnsureChatSubscription(_ context.Context, broadcasterUserID string) error {
	return m.subscribe(EventTypeChatMessage, "1", helix.EventSubCondition{
		BroadcasterUserID: broadcasterUserID,
		UserID:            m.botUserID,
	})
}

// EnsureEventSubscription subscribes to an additional notification type fed
// into the policy resolver (reward redemptions, follows, etc.).
func (m *SubscriptionManager) EnsureEventSubscription(_ context.Context, eventType, broadcasterUserID string) error {
	return m.subscribe(eventType, "1", helix.EventSubCondition{
		BroadcasterUserID: broadcasterUserID,
	})
}

func (m *SubscriptionManager) subscribe(eventType, version string, condition helix.EventSubCondition) error {
	resp, err := m.client.CreateEventSubSubscription(&helix.EventSubSubscription{
		Type:      eventType,
		Version:   version,
		Condition: condition,
		Transport: helix.EventSubTransport{
			Method:   "webhook",
			Callback: m.callbackURL,
			Secret:   m.secret,
		},
	})
	if err != nil {
		return fmt.Errorf("create %s subscription: %w", eventType, err)
	}
	// 409 means the subscription already exists, which is the desired state.
	if resp.StatusCode == 409 {
		slog.Debug("eventsub subscription already exists", "type", eventType)
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("create %s subscription: %s", eventType, resp.ErrorMessage)
	}

	slog.Info("eventsub subscription created", "type", eventType, "callback", m.callbackURL)
	return nil
}

// RemoveSubscriptions deletes every subscription pointing at a broadcaster.
func (m *SubscriptionManager) RemoveSubscriptions(_ context.Context, broadcasterUserID string) error {
	resp, err := m.client.GetEventSubSubscriptions(&helix.EventSubSubscriptionsParams{
		UserID: broadcasterUserID,
	})
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	for _, sub := range resp.Data.EventSubSubscriptions {
		if _, err := m.client.RemoveEventSubSubscription(sub.ID); err != nil {
			slog.Error("failed to remove eventsub subscription", "subscription_id", sub.ID, "error", err)
		}
	}
	return nil
}
