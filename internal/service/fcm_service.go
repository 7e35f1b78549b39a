package service

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Push is one device notification. Data values must be strings for FCM.
type Push struct {
	Type  string
	Title string
	Body  string
	Data  map[string]string
}

// FCMService delivers payment pushes through Firebase Cloud Messaging.
type FCMService struct {
	client *messaging.Client
	logger *zap.Logger
}

// NewFCMService returns nil when no service account is configured or Firebase cannot start.
// A nil *FCMService is valid and sends nothing.
func NewFCMService(serviceAccountPath string, logger *zap.Logger) *FCMService {
	if serviceAccountPath == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := context.Background()
	fb, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		logger.Error("init firebase app", zap.Error(err))
		return nil
	}
	client, err := fb.Messaging(ctx)
	if err != nil {
		logger.Error("firebase messaging client", zap.Error(err))
		return nil
	}
	return &FCMService{client: client, logger: logger.Named("fcm")}
}

// SendPayment pushes p to one device token. Pushes carrying the same payment reference
// replace each other on the device, so only the latest status stays visible.
func (s *FCMService) SendPayment(ctx context.Context, token string, p Push) error {
	if s == nil || token == "" {
		return nil
	}
	data := make(map[string]string, len(p.Data)+1)
	for k, v := range p.Data {
		data[k] = v
	}
	data["type"] = p.Type
	ref := data["reference"]

	_, err := s.client.Send(ctx, &messaging.Message{
		Token:        token,
		Data:         data,
		Notification: &messaging.Notification{Title: p.Title, Body: p.Body},
		Android: &messaging.AndroidConfig{
			Priority:     "high",
			CollapseKey:  ref,
			Notification: &messaging.AndroidNotification{Sound: "default", Tag: ref},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-collapse-id": ref},
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}},
		},
	})
	if err != nil {
		s.logger.Warn("payment push failed", zap.String("reference", ref), zap.Error(err))
	}
	return err
}
