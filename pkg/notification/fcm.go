package notification

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// FCMSender delivers push notifications through Firebase Cloud Messaging.
// A nil sender is valid and sends nothing, so the service runs without
// credentials in dev and test.
type FCMSender struct {
	client *messaging.Client
	logger *zap.Logger
}

// NewFCMSender initializes the FCM client. Missing or broken credentials
// disable push delivery instead of blocking startup.
func NewFCMSender(credentialsFile string, logger *zap.Logger) (*FCMSender, error) {
	if credentialsFile == "" {
		logger.Warn("firebase credentials not provided, push notifications disabled")
		return nil, nil
	}

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		logger.Warn("firebase init failed, push notifications disabled", zap.Error(err))
		return nil, nil
	}

	client, err := app.Messaging(context.Background())
	if err != nil {
		logger.Warn("firebase messaging client failed, push notifications disabled", zap.Error(err))
		return nil, nil
	}

	logger.Info("firebase FCM initialized")
	return &FCMSender{client: client, logger: logger}, nil
}

// SendToTokens multicasts a notification to the given device tokens.
func (s *FCMSender) SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	if s == nil || s.client == nil || len(tokens) == 0 {
		return nil
	}

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ClickAction: "FLUTTER_NOTIFICATION_CLICK",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}

	br, err := s.client.SendMulticast(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending multicast message: %w", err)
	}

	if br.FailureCount > 0 {
		for idx, resp := range br.Responses {
			if !resp.Success {
				s.logger.Warn("fcm delivery failure",
					zap.String("token", tokens[idx]), zap.Error(resp.Error))
			}
		}
	}
	return nil
}
