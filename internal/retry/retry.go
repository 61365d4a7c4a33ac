package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	solanarpc "github.com/0Papitchu/GBPBot-sub003/internal/chain/solana/rpc"
	"github.com/0Papitchu/GBPBot-sub003/internal/circuitbreaker"
	"github.com/ethereum/go-ethereum/rpc"
)

type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

type classifiedError struct {
	err    error
	class  Class
	reason string
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{
		err:    err,
		class:  ClassTransient,
		reason: "explicit_transient",
	}
}

func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{
		err:    err,
		class:  ClassTerminal,
		reason: "explicit_terminal",
	}
}

func Classify(err error) Decision {
	if err == nil {
		return Decision{Class: ClassTerminal, Reason: "nil_error"}
	}

	var marked *classifiedError
	if errors.As(err, &marked) {
		return Decision{Class: marked.class, Reason: marked.reason}
	}

	if errors.Is(err, context.Canceled) {
		return Decision{Class: ClassTerminal, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Class: ClassTransient, Reason: "context_deadline_exceeded"}
	}

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return Decision{Class: ClassTerminal, Reason: "circuit_open"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Decision{Class: ClassTransient, Reason: "net_timeout"}
		}
	}

	var solErr *solanarpc.RPCError
	if errors.As(err, &solErr) {
		if containsAny(strings.ToLower(solErr.Message), terminalMessageTokens) {
			return Decision{Class: ClassTerminal, Reason: "message_terminal"}
		}
		return classifyJSONRPCCode(solErr.Code)
	}
	var gethErr rpc.Error
	if errors.As(err, &gethErr) {
		if containsAny(strings.ToLower(gethErr.Error()), terminalMessageTokens) {
			return Decision{Class: ClassTerminal, Reason: "message_terminal"}
		}
		return classifyJSONRPCCode(gethErr.ErrorCode())
	}

	return classifyMessage(err.Error())
}

// IsDuplicateBroadcast reports whether err is a node refusing a payload it
// has already accepted. After an ambiguous failure this means the earlier
// attempt landed.
func IsDuplicateBroadcast(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(strings.ToLower(err.Error()), duplicateMessageTokens)
}

func classifyMessage(msg string) Decision {
	lower := strings.ToLower(msg)
	if containsAny(lower, terminalMessageTokens) {
		return Decision{Class: ClassTerminal, Reason: "message_terminal"}
	}
	if containsAny(lower, transientMessageTokens) {
		return Decision{Class: ClassTransient, Reason: "message_transient"}
	}
	return Decision{Class: ClassTerminal, Reason: "unknown_terminal_default"}
}

func classifyJSONRPCCode(code int) Decision {
	if code == -32603 || code == -32005 {
		return Decision{Class: ClassTransient, Reason: "jsonrpc_server_transient"}
	}
	if code <= -32000 && code >= -32099 {
		return Decision{Class: ClassTransient, Reason: "jsonrpc_server_range"}
	}
	return Decision{Class: ClassTerminal, Reason: "jsonrpc_terminal"}
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"temporary",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"econnreset",
	"econnrefused",
	"too many requests",
	"rate limit",
	"payload too large",
	"http status 429",
	"http status 502",
	"http status 503",
	"http status 504",
	"server closed idle connection",
}

var duplicateMessageTokens = []string{
	"already known",
	"already imported",
	"already processed",
	"already been processed",
	"alreadyprocessed",
}

var terminalMessageTokens = []string{
	"length mismatch",
	"invalid argument",
	"invalid params",
	"method not found",
	"parse error",
	"execution reverted",
	"insufficient funds",
	"nonce too low",
	"already known",
	"replacement transaction underpriced",
	"blockhash not found",
	"simulation failed",
	"not found",
}

// Policy bounds Do. MaxRetries counts re-attempts after the first call.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
	// OnRetry is called before each re-attempt with the attempt number (1-based).
	OnRetry func(attempt int, err error)
}

// Do runs fn until it succeeds, returns an error Classify marks terminal,
// or MaxRetries re-attempts are exhausted. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || !Classify(err).IsTransient() {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}
		if p.Delay > 0 {
			timer := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry aborted: %w", errors.Join(ctx.Err(), err))
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w", errors.Join(ctx.Err(), err))
		}
	}
}
