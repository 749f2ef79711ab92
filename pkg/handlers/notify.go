package handlers

import (
	"context"
)

// EmailSender accepts a message for delivery. Success means accepted, not
// delivered.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender accepts an SMS message for delivery.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// NewEmailHandler returns the handler for send_email actions.
// Required config: to, subject, body.
func NewEmailHandler(sender EmailSender) Handler {
	return HandlerFunc(func(ctx context.Context, config, trigger map[string]any) (any, error) {
		to, err := stringField("send_email", config, "to")
		if err != nil {
			return nil, err
		}
		subject, err := stringField("send_email", config, "subject")
		if err != nil {
			return nil, err
		}
		body, err := stringField("send_email", config, "body")
		if err != nil {
			return nil, err
		}

		if err := sender.SendEmail(ctx, to, subject, body); err != nil {
			return nil, err
		}
		return map[string]any{"to": to, "accepted": true}, nil
	})
}

// NewSMSHandler returns the handler for send_sms actions.
// Required config: to, message.
func NewSMSHandler(sender SMSSender) Handler {
	return HandlerFunc(func(ctx context.Context, config, trigger map[string]any) (any, error) {
		to, err := stringField("send_sms", config, "to")
		if err != nil {
			return nil, err
		}
		message, err := stringField("send_sms", config, "message")
		if err != nil {
			return nil, err
		}

		if err := sender.SendSMS(ctx, to, message); err != nil {
			return nil, err
		}
		return map[string]any{"to": to, "accepted": true}, nil
	})
}
