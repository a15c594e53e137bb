package push

import "context"

type Reason string

const (
	ReasonNone         Reason = ""
	ReasonInvalidToken Reason = "invalid_token"
	ReasonTransient    Reason = "transient"
)

type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

type TokenResult struct {
	Token   string
	Success bool
	Reason  Reason
	Err     error
}

type BatchResult struct {
	SuccessCount int
	FailureCount int
	Responses    []TokenResult
}

// Transport delivers one message to a batch of device tokens.
// Responses are reported per token, in the order the tokens were given.
type Transport interface {
	SendBatch(ctx context.Context, tokens []string, msg Message) (*BatchResult, error)
}

// TokenStore removes device registrations proven dead.
type TokenStore interface {
	DeleteByTokens(ctx context.Context, tokens []string) (int64, error)
}
