package action

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-automation/internal/domain"
)

var double = domain.NewActionDescriptor("Double", domain.ParamAmount,
	domain.Param{Name: "amount", Type: domain.ParamAmount},
)

func doubleHandler() Handler {
	return HandlerFunc(func(env Env, args []domain.Value) (domain.Value, error) {
		return domain.AmountValue(args[0].Amount.Mul(decimal.NewFromInt(2))), nil
	})
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(double, doubleHandler()))

	got, ok := r.Descriptor(double.ID)
	require.True(t, ok)
	assert.Equal(t, double, got)

	got, ok = r.ByName("Double")
	require.True(t, ok)
	assert.Equal(t, double.ID, got.ID)

	_, ok = r.ByName("Triple")
	assert.False(t, ok)
	assert.Equal(t, []string{"Double"}, r.Names())
}

func TestRegistry_RegisterRejects(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(double, doubleHandler()))

	err := r.Register(double, doubleHandler())
	require.ErrorIs(t, err, ErrDuplicateAction)

	forged := double
	forged.Name = "Other"
	require.Error(t, r.Register(forged, doubleHandler()))

	badInput := domain.NewActionDescriptor("Bad", domain.ParamNone, domain.Param{Name: "x", Type: "float"})
	require.Error(t, r.Register(badInput, doubleHandler()))
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(double, doubleHandler()))

	out, err := r.Dispatch(Env{}, double.ID, []domain.Value{domain.AmountValue(decimal.NewFromInt(21))})
	require.NoError(t, err)
	assert.True(t, out.Amount.Equal(decimal.NewFromInt(42)))

	_, err = r.Dispatch(Env{}, double.ID, []domain.Value{domain.UintValue(21)})
	require.ErrorIs(t, err, ErrBadArguments)

	_, err = r.Dispatch(Env{}, double.ID, nil)
	require.ErrorIs(t, err, ErrBadArguments)

	_, err = r.Dispatch(Env{}, domain.ActionIDFor("Missing"), nil)
	require.ErrorIs(t, err, ErrUnknownAction)
}

func TestRegistry_DispatchWrapsHandlerError(t *testing.T) {
	boom := errors.New("boom")
	fail := domain.NewActionDescriptor("Fail", domain.ParamNone)

	r := NewRegistry()
	require.NoError(t, r.Register(fail, HandlerFunc(func(Env, []domain.Value) (domain.Value, error) {
		return domain.Value{}, boom
	})))

	_, err := r.Dispatch(Env{}, fail.ID, nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "Fail")
}

func TestRegistry_DispatchChecksReturnType(t *testing.T) {
	liar := domain.NewActionDescriptor("Liar", domain.ParamAmount)

	r := NewRegistry()
	require.NoError(t, r.Register(liar, HandlerFunc(func(Env, []domain.Value) (domain.Value, error) {
		return domain.UintValue(1), nil
	})))

	_, err := r.Dispatch(Env{}, liar.ID, nil)
	require.Error(t, err)
}
