package vm_test

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/lockdrop-actors/support/vm"
)

func TestConfigFromMap(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := vm.ConfigFromMap(ctx, map[string]string{})
		require.NoError(t, err)
		assert.Equal(t, vm.DefaultConfig(), cfg)

		deposit, err := cfg.Deposit()
		require.NoError(t, err)
		assert.True(t, deposit.IsZero())
	})

	t.Run("overrides", func(t *testing.T) {
		cfg, err := vm.ConfigFromMap(ctx, map[string]string{
			"LEDGER_EXISTENTIAL_DEPOSIT": "500",
			"LEDGER_LOG_LEVEL":           "debug",
			"LEDGER_TRACE_DIR":           "/tmp/trace",
		})
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "/tmp/trace", cfg.TraceDir)
		assert.Empty(t, cfg.BlockstorePath)

		deposit, err := cfg.Deposit()
		require.NoError(t, err)
		assert.True(t, abi.NewTokenAmount(500).Equals(deposit))
	})

	t.Run("invalid deposit", func(t *testing.T) {
		for _, d := range []string{"-1", "ten"} {
			cfg := vm.DefaultConfig()
			cfg.ExistentialDeposit = d
			_, err := cfg.Deposit()
			assert.Error(t, err, d)
		}
	})

	t.Run("invalid log level is rejected by the host", func(t *testing.T) {
		cfg := vm.DefaultConfig()
		cfg.LogLevel = "chatty"
		_, err := vm.Open(ctx, cfg)
		assert.Error(t, err)
	})
}
