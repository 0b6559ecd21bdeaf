package feed

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-automation/internal/domain"
	"credit-automation/internal/feed/stub"
	"credit-automation/internal/trigger"
)

func TestCachingReader_TTL(t *testing.T) {
	owner := common.HexToAddress("0x02")
	src := stub.NewReader()
	src.SetRatio(owner, decimal.RequireFromString("1.9"))

	now := time.Unix(1700000000, 0)
	c := NewCachingReader(src, time.Minute)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	subject := trigger.Subject{Owner: owner}

	v, err := c.ReadExternalValue(ctx, domain.TriggerRatioState, subject)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.RequireFromString("1.9")))

	src.SetRatio(owner, decimal.RequireFromString("2.4"))
	v, err = c.ReadExternalValue(ctx, domain.TriggerRatioState, subject)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.RequireFromString("1.9")), "fresh entry is served from cache")
	assert.Equal(t, 1, src.Calls())

	now = now.Add(2 * time.Minute)
	v, err = c.ReadExternalValue(ctx, domain.TriggerRatioState, subject)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.RequireFromString("2.4")))
	assert.Equal(t, 2, src.Calls())
}

func TestCachingReader_PumpAndInvalidate(t *testing.T) {
	src := stub.NewReader()
	src.SetGasPrice(decimal.NewFromInt(90))

	c := NewCachingReader(src, time.Hour)
	ch := make(chan Reading, 2)
	ch <- Reading{Kind: domain.TriggerGasPrice, Value: decimal.NewFromInt(30)}
	ch <- Reading{Kind: domain.TriggerGasPrice, Value: decimal.NewFromInt(35)}
	close(ch)

	c.Pump(context.Background(), ch)

	v, err := c.ReadExternalValue(context.Background(), domain.TriggerGasPrice, trigger.Subject{})
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(35)))
	assert.Equal(t, 0, src.Calls())

	c.Invalidate()
	v, err = c.ReadExternalValue(context.Background(), domain.TriggerGasPrice, trigger.Subject{})
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(90)))
}

func TestCachingReader_ErrorsNotCached(t *testing.T) {
	src := stub.NewReader()
	c := NewCachingReader(src, time.Hour)

	_, err := c.ReadExternalValue(context.Background(), domain.TriggerPrice, trigger.Subject{Asset: 5})
	require.ErrorIs(t, err, stub.ErrNotFound)

	src.SetPrice(5, decimal.NewFromInt(7))
	v, err := c.ReadExternalValue(context.Background(), domain.TriggerPrice, trigger.Subject{Asset: 5})
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(7)))
}

func TestCachingReader_StreamedReadingsServeTriggerChecks(t *testing.T) {
	owner := common.HexToAddress("0x0a")
	src := stub.NewReader()
	c := NewCachingReader(src, time.Hour)

	// Streams key prices by asset only, and the ratio by owner only.
	c.Observe(Reading{Kind: domain.TriggerPrice, Subject: trigger.Subject{Asset: 1}, Value: decimal.NewFromInt(1500)})
	c.Observe(Reading{Kind: domain.TriggerRatioState, Subject: trigger.Subject{Owner: owner}, Value: decimal.RequireFromString("1.3")})
	c.Observe(Reading{Kind: domain.TriggerGasPrice, Subject: trigger.Subject{Asset: 9}, Value: decimal.NewFromInt(20)})

	triggers := []domain.Trigger{
		{Kind: domain.TriggerPrice, Operator: domain.OperatorUnder, Threshold: decimal.NewFromInt(1600), AssetParam: domain.SlotCollateralAssetID},
		{Kind: domain.TriggerRatioState, Operator: domain.OperatorUnder, Threshold: decimal.RequireFromString("1.5")},
		{Kind: domain.TriggerGasPrice, Operator: domain.OperatorUnder, Threshold: decimal.NewFromInt(50)},
	}
	params := domain.RuntimeParams{CollateralAssetID: 1, DebtAssetID: 2}

	out, err := trigger.Check(context.Background(), c, triggers, params, owner)
	require.NoError(t, err)
	assert.True(t, out.Fired)
	assert.True(t, out.Reading.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, 0, src.Calls())
}
