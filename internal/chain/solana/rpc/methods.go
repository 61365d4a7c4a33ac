package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// GetSlot returns the current slot.
func (c *Client) GetSlot(ctx context.Context, commitment string) (int64, error) {
	params := []interface{}{
		map[string]string{"commitment": commitment},
	}
	result, err := c.call(ctx, "getSlot", params)
	if err != nil {
		return 0, fmt.Errorf("getSlot: %w", err)
	}

	var slot int64
	if err := json.Unmarshal(result, &slot); err != nil {
		return 0, fmt.Errorf("unmarshal slot: %w", err)
	}
	return slot, nil
}

type SendOpts struct {
	SkipPreflight       bool
	PreflightCommitment string
	MaxRetries          *int // node-side rebroadcast attempts, nil leaves the node default
}

// SendTransaction broadcasts a fully signed wire transaction and returns
// its first signature.
func (c *Client) SendTransaction(ctx context.Context, payload []byte, opts SendOpts) (string, error) {
	config := map[string]interface{}{
		"encoding":      "base64",
		"skipPreflight": opts.SkipPreflight,
	}
	if opts.PreflightCommitment != "" {
		config["preflightCommitment"] = opts.PreflightCommitment
	}
	if opts.MaxRetries != nil {
		config["maxRetries"] = *opts.MaxRetries
	}

	params := []interface{}{base64.StdEncoding.EncodeToString(payload), config}
	result, err := c.call(ctx, "sendTransaction", params)
	if err != nil {
		return "", fmt.Errorf("sendTransaction: %w", err)
	}

	var signature string
	if err := json.Unmarshal(result, &signature); err != nil {
		return "", fmt.Errorf("unmarshal signature: %w", err)
	}
	return signature, nil
}

// GetSignatureStatuses returns one status per signature, nil where unknown.
// History search is enabled so statuses outside the recent cache are found.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	if len(signatures) == 0 {
		return []*SignatureStatus{}, nil
	}
	params := []interface{}{
		signatures,
		map[string]bool{"searchTransactionHistory": true},
	}
	result, err := c.call(ctx, "getSignatureStatuses", params)
	if err != nil {
		return nil, fmt.Errorf("getSignatureStatuses: %w", err)
	}

	var out SignatureStatusesResult
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("unmarshal signature statuses: %w", err)
	}
	if len(out.Value) != len(signatures) {
		return nil, fmt.Errorf("getSignatureStatuses length mismatch: want %d got %d", len(signatures), len(out.Value))
	}
	return out.Value, nil
}

// GetTransaction returns a transaction by signature, or nil if the node
// has no record of it at confirmed commitment.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*TransactionResponse, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     CommitmentConfirmed,
			"maxSupportedTransactionVersion": 0,
		},
	}
	result, err := c.call(ctx, "getTransaction", params)
	if err != nil {
		return nil, fmt.Errorf("getTransaction(%s): %w", signature, err)
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	var tx TransactionResponse
	if err := json.Unmarshal(result, &tx); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	return &tx, nil
}
