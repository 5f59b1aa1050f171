package bankapi

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusErrClassification(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{429, KindRateLimit},
		{500, KindUnexpectedResponse},
		{404, KindUnexpectedResponse},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			err := statusErr(BankTBank, "statement", tt.status)
			assert.Equal(t, tt.want, err.Kind)
			assert.True(t, IsKind(err, tt.want))
		})
	}
}

func TestIsKindThroughWrapping(t *testing.T) {
	base := connErr(BankTochka, "balances", errors.New("dial tcp: timeout"))
	wrapped := fmt.Errorf("sync failed: %w", base)

	assert.True(t, IsKind(wrapped, KindConnectivity))
	assert.False(t, IsKind(wrapped, KindAuth))
	assert.False(t, IsKind(errors.New("plain"), KindConnectivity))
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistryWith(newTBankAdapter(nil, ""), newModulbankAdapter(nil, ""))

	adapter, err := reg.Lookup(BankTBank)
	assert.NoError(t, err)
	assert.Equal(t, BankTBank, adapter.Code())

	_, err = reg.Lookup("sberbank")
	var unsupported *ErrUnsupportedBank
	assert.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "sberbank", unsupported.Code)
}
