package chain_test

import (
	"testing"

	"github.com/0Papitchu/GBPBot-sub003/internal/chain"
	chainmocks "github.com/0Papitchu/GBPBot-sub003/internal/chain/mocks"
	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newHandler(ctrl *gomock.Controller, c model.Chain) *chainmocks.MockHandler {
	h := chainmocks.NewMockHandler(ctrl)
	h.EXPECT().Chain().Return(c).AnyTimes()
	return h
}

func TestRegistry_GetAndChains(t *testing.T) {
	ctrl := gomock.NewController(t)
	sol := newHandler(ctrl, model.ChainSolana)
	eth := newHandler(ctrl, model.ChainEthereum)

	reg := chain.NewRegistry(sol, eth)

	got, ok := reg.Get(model.ChainSolana)
	require.True(t, ok)
	assert.Same(t, sol, got)

	_, ok = reg.Get(model.ChainBSC)
	assert.False(t, ok)

	assert.Equal(t, []model.Chain{model.ChainEthereum, model.ChainSolana}, reg.Chains())
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := newHandler(ctrl, model.ChainBase)
	second := newHandler(ctrl, model.ChainBase)

	reg := chain.NewRegistry(first)
	reg.Register(second)

	got, ok := reg.Get(model.ChainBase)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Len(t, reg.Chains(), 1)
}

func TestConfirmationStatus_Result(t *testing.T) {
	st := &chain.ConfirmationStatus{
		Found:         true,
		Confirmations: 3,
		BlockNumber:   99,
		FeePaid:       decimal.NewFromInt(5000),
	}
	assert.False(t, st.Failed())

	res := st.Result("sig-1")
	assert.Equal(t, "sig-1", res.Hash)
	assert.Equal(t, int64(99), res.BlockNumber)
	assert.Equal(t, 3, res.Confirmations)
	assert.True(t, res.FeePaid.Equal(decimal.NewFromInt(5000)))

	st.Err = "custom program error: 0x1"
	assert.True(t, st.Failed())

	var nilStatus *chain.ConfirmationStatus
	assert.False(t, nilStatus.Failed())
}
