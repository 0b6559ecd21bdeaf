package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-automation/internal/domain"
	"credit-automation/internal/trigger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func idleServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestWSClient_SubscribeReadings(t *testing.T) {
	owner := common.HexToAddress("0x0000000000000000000000000000000000000abc")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != MethodSubscribe {
			t.Errorf("expected %s, got %s", MethodSubscribe, req.Method)
		}

		if err := c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: 77}); err != nil {
			return
		}

		time.Sleep(50 * time.Millisecond)
		c.WriteJSON(wsNotification{
			JSONRPC: "2.0",
			Method:  MethodNotification,
			Params: &wsNotificationParams{
				Subscription: 77,
				Result: wsReading{
					Kind:      string(domain.TriggerRatioState),
					Owner:     owner.Hex(),
					Value:     "2.31",
					Timestamp: 1700000000,
				},
			},
		})

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil, nil)
	require.NoError(t, err)
	defer client.Close()

	ch, err := client.SubscribeReadings(ctx, ReadingFilter{Kind: domain.TriggerRatioState, Subject: trigger.Subject{Owner: owner}})
	require.NoError(t, err)

	select {
	case r := <-ch:
		assert.Equal(t, domain.TriggerRatioState, r.Kind)
		assert.Equal(t, owner, r.Subject.Owner)
		assert.True(t, r.Value.Equal(decimal.RequireFromString("2.31")))
		assert.Equal(t, int64(1700000000), r.Timestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reading")
	}
}

func TestWSClient_SubscribeTimeout(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.SubscribeTimeout = 50 * time.Millisecond

	client, err := NewWSClient(context.Background(), wsURL(server), &cfg, nil)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.SubscribeReadings(context.Background(), ReadingFilter{Kind: domain.TriggerGasPrice})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestWSClient_Close(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil, nil)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.True(t, client.closed.Load())
	require.NoError(t, client.Close(), "double close should be safe")

	_, err = client.SubscribeReadings(context.Background(), ReadingFilter{Kind: domain.TriggerGasPrice})
	require.Error(t, err)
}

func TestWSClient_DialFailure(t *testing.T) {
	_, err := NewWSClient(context.Background(), "ws://127.0.0.1:1", nil, nil)
	require.Error(t, err)
}
