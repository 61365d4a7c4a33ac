package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonHTTPResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func methodTestClient(handler func(*http.Request) (*http.Response, error)) *Client {
	client := NewClient("http://rpc.local", nil)
	client.httpClient = &http.Client{
		Transport: roundTripFunc(handler),
	}
	return client
}

// respond decodes the request, hands it to check and replies with result.
func respond(t *testing.T, check func(Request), result string) func(*http.Request) (*http.Response, error) {
	return func(r *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req Request
		require.NoError(t, json.Unmarshal(body, &req))
		if check != nil {
			check(req)
		}
		rawResp, err := json.Marshal(Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(result)})
		require.NoError(t, err)
		return jsonHTTPResponse(http.StatusOK, string(rawResp)), nil
	}
}

func TestGetSlot_Success(t *testing.T) {
	client := methodTestClient(respond(t, func(req Request) {
		assert.Equal(t, "getSlot", req.Method)
		assert.Len(t, req.Params, 1)
	}, `123456789`))

	slot, err := client.GetSlot(context.Background(), CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), slot)
}

func TestGetSlot_Error(t *testing.T) {
	client := methodTestClient(func(r *http.Request) (*http.Response, error) {
		resp := Response{
			JSONRPC: "2.0",
			ID:      1,
			Error:   &RPCError{Code: -32000, Message: "slot not available"},
		}
		rawResp, err := json.Marshal(resp)
		require.NoError(t, err)
		return jsonHTTPResponse(http.StatusOK, string(rawResp)), nil
	})

	_, err := client.GetSlot(context.Background(), CommitmentConfirmed)
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
}

func TestSendTransaction_EncodesBase64(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0xff}
	maxRetries := 0

	client := methodTestClient(respond(t, func(req Request) {
		assert.Equal(t, "sendTransaction", req.Method)
		require.Len(t, req.Params, 2)
		assert.Equal(t, base64.StdEncoding.EncodeToString(payload), req.Params[0])

		cfg, ok := req.Params[1].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "base64", cfg["encoding"])
		assert.Equal(t, true, cfg["skipPreflight"])
		assert.Equal(t, "confirmed", cfg["preflightCommitment"])
		assert.EqualValues(t, 0, cfg["maxRetries"])
	}, `"5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"`))

	sig, err := client.SendTransaction(context.Background(), payload, SendOpts{
		SkipPreflight:       true,
		PreflightCommitment: CommitmentConfirmed,
		MaxRetries:          &maxRetries,
	})
	require.NoError(t, err)
	assert.Equal(t, "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW", sig)
}

func TestGetSignatureStatuses_MixedResults(t *testing.T) {
	client := methodTestClient(respond(t, func(req Request) {
		assert.Equal(t, "getSignatureStatuses", req.Method)
		cfg, ok := req.Params[1].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, true, cfg["searchTransactionHistory"])
	}, `{
		"context": {"slot": 82},
		"value": [
			{"slot": 72, "confirmations": 10, "err": null, "confirmationStatus": "confirmed"},
			null,
			{"slot": 48, "confirmations": null, "err": {"InstructionError": [0, {"Custom": 1}]}, "confirmationStatus": "finalized"}
		]
	}`))

	statuses, err := client.GetSignatureStatuses(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	require.NotNil(t, statuses[0])
	assert.Equal(t, int64(72), statuses[0].Slot)
	require.NotNil(t, statuses[0].Confirmations)
	assert.Equal(t, 10, *statuses[0].Confirmations)
	assert.False(t, statuses[0].Failed())

	assert.Nil(t, statuses[1])

	require.NotNil(t, statuses[2])
	assert.Nil(t, statuses[2].Confirmations)
	assert.True(t, statuses[2].Failed())
	assert.Equal(t, CommitmentFinalized, statuses[2].ConfirmationStatus)
}

func TestGetSignatureStatuses_Empty(t *testing.T) {
	client := methodTestClient(func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})

	statuses, err := client.GetSignatureStatuses(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestGetSignatureStatuses_LengthMismatch(t *testing.T) {
	client := methodTestClient(respond(t, nil, `{"context": {"slot": 1}, "value": []}`))

	_, err := client.GetSignatureStatuses(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length mismatch")
}

func TestGetTransaction_Success(t *testing.T) {
	client := methodTestClient(respond(t, func(req Request) {
		assert.Equal(t, "getTransaction", req.Method)
		assert.Equal(t, "sig1", req.Params[0])
	}, `{"slot": 100, "blockTime": 1700000000, "transaction": {}, "meta": {"err": null, "fee": 5000, "logMessages": []}}`))

	tx, err := client.GetTransaction(context.Background(), "sig1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, int64(100), tx.Slot)
	require.NotNil(t, tx.BlockTime)
	assert.Equal(t, int64(1700000000), *tx.BlockTime)
	require.NotNil(t, tx.Meta)
	assert.Equal(t, uint64(5000), tx.Meta.Fee)
}

func TestGetTransaction_NullResult(t *testing.T) {
	client := methodTestClient(respond(t, nil, `null`))

	tx, err := client.GetTransaction(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, tx)
}
