package geyser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBankingTransactionError(t *testing.T) {
	payload := `{"banking_transaction_error":{"slot":12345,"signature":"sig1","error":"AccountInUse"}}`

	update := &Update{}
	require.NoError(t, json.Unmarshal([]byte(payload), update))

	require.NotNil(t, update.BankingTransactionError)
	assert.Nil(t, update.Block)
	assert.Equal(t, uint64(12345), update.BankingTransactionError.Slot)
	assert.Equal(t, "sig1", update.BankingTransactionError.Signature)
	require.NotNil(t, update.BankingTransactionError.Error)
	assert.Equal(t, "AccountInUse", *update.BankingTransactionError.Error)
}

func TestDecodeNonErrorNotification(t *testing.T) {
	payload := `{"banking_transaction_error":{"slot":12345,"signature":"sig1"}}`

	update := &Update{}
	require.NoError(t, json.Unmarshal([]byte(payload), update))

	require.NotNil(t, update.BankingTransactionError)
	assert.Nil(t, update.BankingTransactionError.Error)
}

func TestDecodeBlock(t *testing.T) {
	payload := `{
		"block": {
			"slot": 100,
			"block_hash": "abc",
			"leader_identity": "leader1",
			"transactions": [
				{
					"signature": "sig1",
					"cu_consumed": 150,
					"cu_requested": 200,
					"prioritization_fee": 99,
					"accounts": [{"key": "alice", "writable": true}]
				},
				{"signature": "sig2", "error": "InstructionError"}
			]
		}
	}`

	update := &Update{}
	require.NoError(t, json.Unmarshal([]byte(payload), update))

	block := update.Block
	require.NotNil(t, block)
	assert.Equal(t, uint64(100), block.Slot)
	assert.Equal(t, "abc", block.BlockHash)
	assert.Equal(t, "leader1", block.LeaderIdentity)
	require.Len(t, block.Transactions, 2)

	tx := block.Transactions[0]
	assert.True(t, tx.Succeeded())
	require.NotNil(t, tx.CUConsumed)
	assert.Equal(t, uint64(150), *tx.CUConsumed)
	require.Len(t, tx.Accounts, 1)
	assert.True(t, tx.Accounts[0].Writable)

	assert.False(t, block.Transactions[1].Succeeded())
}

func TestDecodeEmptyUpdate(t *testing.T) {
	update := &Update{}
	require.NoError(t, json.Unmarshal([]byte(`{}`), update))

	assert.Nil(t, update.BankingTransactionError)
	assert.Nil(t, update.Block)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid",
			config: Config{Address: "ws://localhost:10000", Commitment: "processed"},
		},
		{
			name:    "missing address",
			config:  Config{Commitment: "processed"},
			wantErr: true,
		},
		{
			name:    "bad commitment",
			config:  Config{Address: "ws://localhost:10000", Commitment: "bogus"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
