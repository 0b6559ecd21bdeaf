// Package feed reads trigger values from an external node: JSON-RPC over HTTP
// for polling and a WebSocket stream for pushed updates.
package feed

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"credit-automation/internal/domain"
	"credit-automation/internal/trigger"
)

// JSON-RPC methods served by the automation node.
const (
	MethodGasPrice      = "eth_gasPrice"
	MethodBlockByNumber = "eth_getBlockByNumber"
	MethodPositionRatio = "automation_positionRatio"
	MethodAssetPrice    = "automation_assetPrice"
	MethodSubscribe     = "automation_subscribe"
	MethodNotification  = "automation_reading"
)

// RPCClient defines the read interface of the automation node.
type RPCClient interface {
	// GasPrice returns the current gas price in gwei.
	GasPrice(ctx context.Context) (decimal.Decimal, error)

	// BlockTimestamp returns the timestamp of the latest block (unix seconds).
	BlockTimestamp(ctx context.Context) (int64, error)

	// PositionRatio returns the collateral/debt ratio of a position.
	PositionRatio(ctx context.Context, owner common.Address) (decimal.Decimal, error)

	// AssetPrice returns the oracle price of an asset.
	AssetPrice(ctx context.Context, asset uint64) (decimal.Decimal, error)
}

// ReadThrough adapts an RPCClient to trigger.Reader.
func ReadThrough(c RPCClient) trigger.Reader {
	return rpcReader{c}
}

type rpcReader struct {
	c RPCClient
}

func (r rpcReader) ReadExternalValue(ctx context.Context, kind domain.TriggerKind, subject trigger.Subject) (decimal.Decimal, error) {
	switch kind {
	case domain.TriggerRatioState:
		return r.c.PositionRatio(ctx, subject.Owner)
	case domain.TriggerPrice:
		return r.c.AssetPrice(ctx, subject.Asset)
	case domain.TriggerGasPrice:
		return r.c.GasPrice(ctx)
	case domain.TriggerTimestamp:
		ts, err := r.c.BlockTimestamp(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(ts), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown kind %q", trigger.ErrInvalidTrigger, kind)
	}
}
