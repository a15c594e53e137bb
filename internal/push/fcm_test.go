package push

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/require"
)

var errDead = errors.New("dead token")

type fakeSender struct {
	calls   [][]string
	failAt  int
	lastMsg *messaging.MulticastMessage
}

func (f *fakeSender) SendEachForMulticast(_ context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.calls = append(f.calls, message.Tokens)
	f.lastMsg = message

	if f.failAt > 0 && len(f.calls) == f.failAt {
		return nil, errors.New("connection reset")
	}

	resp := &messaging.BatchResponse{}
	for _, token := range message.Tokens {
		if token == "dead" {
			resp.FailureCount++
			resp.Responses = append(resp.Responses, &messaging.SendResponse{Error: errDead})
			continue
		}
		resp.SuccessCount++
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true, MessageID: "m-" + token})
	}
	return resp, nil
}

func testClassify(err error) Reason {
	if errors.Is(err, errDead) {
		return ReasonInvalidToken
	}
	return ReasonTransient
}

func makeTokens(n int) []string {
	result := make([]string, n)
	for i := range result {
		result[i] = fmt.Sprintf("tok-%d", i)
	}
	return result
}

func TestFCMTransport_ChunksAndClassifies(t *testing.T) {
	sender := &fakeSender{}
	transport := &FCMTransport{client: sender, classify: testClassify}

	input := append(makeTokens(599), "dead")
	res, err := transport.SendBatch(context.Background(), input, NewOrderMessage(5))
	require.NoError(t, err)

	require.Len(t, sender.calls, 2)
	require.Len(t, sender.calls[0], 500)
	require.Len(t, sender.calls[1], 100)

	require.Equal(t, 599, res.SuccessCount)
	require.Equal(t, 1, res.FailureCount)
	require.Len(t, res.Responses, 600)

	last := res.Responses[599]
	require.Equal(t, "dead", last.Token)
	require.False(t, last.Success)
	require.Equal(t, ReasonInvalidToken, last.Reason)
}

func TestFCMTransport_BuildsPlatformConfig(t *testing.T) {
	sender := &fakeSender{}
	transport := &FCMTransport{client: sender, classify: testClassify}

	_, err := transport.SendBatch(context.Background(), []string{"a"}, NewOrderMessage(9))
	require.NoError(t, err)

	msg := sender.lastMsg
	require.Equal(t, clickAction, msg.Data["click_action"])
	require.Equal(t, DataTypeNewOrder, msg.Data["type"])
	require.Equal(t, "9", msg.Data["order_id"])
	require.Equal(t, "high", msg.Android.Priority)
	require.Equal(t, androidChannelID, msg.Android.Notification.ChannelID)
	require.Equal(t, "default", msg.APNS.Payload.Aps.Sound)
}

func TestFCMTransport_FirstChunkErrorFailsBatch(t *testing.T) {
	transport := &FCMTransport{client: &fakeSender{failAt: 1}, classify: testClassify}

	_, err := transport.SendBatch(context.Background(), []string{"a", "b"}, NewOrderMessage(1))
	require.Error(t, err)
}

func TestFCMTransport_LaterChunkErrorIsTransient(t *testing.T) {
	transport := &FCMTransport{client: &fakeSender{failAt: 2}, classify: testClassify}

	res, err := transport.SendBatch(context.Background(), makeTokens(501), NewOrderMessage(1))
	require.NoError(t, err)
	require.Equal(t, 500, res.SuccessCount)
	require.Equal(t, 1, res.FailureCount)
	require.Equal(t, ReasonTransient, res.Responses[500].Reason)
}
