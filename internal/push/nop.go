package push

import (
	"context"

	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"go.uber.org/zap"
)

// LogTransport reports every token as delivered without contacting any gateway.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) SendBatch(ctx context.Context, tokens []string, msg Message) (*BatchResult, error) {
	mylogger.Info(
		ctx,
		t.logger,
		"Push disabled, message not sent",
		zap.String("title", msg.Title),
		zap.Int("tokens", len(tokens)),
	)

	result := &BatchResult{
		SuccessCount: len(tokens),
		Responses:    make([]TokenResult, 0, len(tokens)),
	}
	for _, token := range tokens {
		result.Responses = append(result.Responses, TokenResult{Token: token, Success: true})
	}

	return result, nil
}
