package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

const (
	maxMulticastTokens = 500
	clickAction        = "FLUTTER_NOTIFICATION_CLICK"
	androidChannelID   = "high_importance_channel"
)

type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMTransport sends through Firebase Cloud Messaging.
type FCMTransport struct {
	client   multicastSender
	classify func(error) Reason
}

func NewFCMTransport(ctx context.Context, credentialsFile string) (*FCMTransport, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to init firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init firebase messaging: %w", err)
	}

	return &FCMTransport{client: client, classify: classifyFCMError}, nil
}

func classifyFCMError(err error) Reason {
	if messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err) {
		return ReasonInvalidToken
	}
	return ReasonTransient
}

func (t *FCMTransport) SendBatch(ctx context.Context, tokens []string, msg Message) (*BatchResult, error) {
	result := &BatchResult{Responses: make([]TokenResult, 0, len(tokens))}

	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := min(start+maxMulticastTokens, len(tokens))
		chunk := tokens[start:end]

		resp, err := t.client.SendEachForMulticast(ctx, buildMulticast(chunk, msg))
		if err != nil {
			if start == 0 {
				return nil, fmt.Errorf("fcm multicast failed: %w", err)
			}

			for _, token := range chunk {
				result.Responses = append(result.Responses, TokenResult{Token: token, Reason: ReasonTransient, Err: err})
			}
			result.FailureCount += len(chunk)
			continue
		}

		for i, r := range resp.Responses {
			if i >= len(chunk) {
				break
			}

			tr := TokenResult{Token: chunk[i], Success: r.Success}
			if r.Success {
				result.SuccessCount++
			} else {
				tr.Err = r.Error
				tr.Reason = t.classify(r.Error)
				result.FailureCount++
			}
			result.Responses = append(result.Responses, tr)
		}
	}

	return result, nil
}

func buildMulticast(tokens []string, msg Message) *messaging.MulticastMessage {
	data := make(map[string]string, len(msg.Data)+1)
	for k, v := range msg.Data {
		data[k] = v
	}
	data["click_action"] = clickAction

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     "default",
				ChannelID: androidChannelID,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
}
