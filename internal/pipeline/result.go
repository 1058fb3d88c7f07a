package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mmcdole/b4/internal/docstore"
)

// Kind identifies how an operation ended
type Kind int

const (
	// Success is the last step's answer on the success path
	Success Kind = iota
	// PassThrough relays a store status the operation did not expect
	PassThrough
	// Conflict is a locally detected invariant violation
	Conflict
	// GatewayFailure is a transport failure at any step
	GatewayFailure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case PassThrough:
		return "pass_through"
	case Conflict:
		return "conflict"
	case GatewayFailure:
		return "gateway_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the terminal value of an operation. Status and Body are set
// for Success and PassThrough, Reason for Conflict and GatewayFailure.
type Result struct {
	Kind   Kind
	Status int
	Body   []byte
	Reason string
}

// Succeeded relays a store response as the operation's answer
func Succeeded(resp docstore.Response) Result {
	return Result{Kind: Success, Status: resp.Status, Body: resp.Body}
}

// Passed relays a store response the operation did not expect
func Passed(resp docstore.Response) Result {
	return Result{Kind: PassThrough, Status: resp.Status, Body: resp.Body}
}

// Conflicted reports a local invariant violation
func Conflicted(reason string) Result {
	return Result{Kind: Conflict, Status: http.StatusConflict, Reason: reason}
}

// GatewayFailed reports a transport failure with its failure code
func GatewayFailed(code string) Result {
	return Result{Kind: GatewayFailure, Status: http.StatusBadGateway, Reason: code}
}

// JSON encodes v as a Success body
func JSON(status int, v any) (Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode response: %w", err)
	}
	return Result{Kind: Success, Status: status, Body: data}, nil
}
