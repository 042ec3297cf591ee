package vm

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/xerrors"
)

// Config holds the ledger host's tunables.
type Config struct {
	// Minimum non-zero balance an actor may be left holding after a transfer.
	ExistentialDeposit string `env:"LEDGER_EXISTENTIAL_DEPOSIT, default=0"`
	// Level of the "vm" logger.
	LogLevel string `env:"LEDGER_LOG_LEVEL, default=warn"`
	// Directory of an on-disk block store. Blocks are kept in memory if empty.
	BlockstorePath string `env:"LEDGER_BLOCKSTORE_PATH"`
	// Directory receiving a trace of applied messages. No trace is written if empty.
	TraceDir string `env:"LEDGER_TRACE_DIR"`
}

// DefaultConfig returns the configuration used when no environment is set.
func DefaultConfig() Config {
	return Config{ExistentialDeposit: "0", LogLevel: "warn"}
}

// ConfigFromEnv loads the configuration from the process environment.
func ConfigFromEnv(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, xerrors.Errorf("failed to process ledger config: %w", err)
	}
	return cfg, nil
}

// ConfigFromMap loads the configuration from a map of variables instead of the environment.
func ConfigFromMap(ctx context.Context, vars map[string]string) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.MapLookuper(vars),
	})
	if err != nil {
		return Config{}, xerrors.Errorf("failed to process ledger config: %w", err)
	}
	return cfg, nil
}

// Deposit parses the existential deposit.
func (c Config) Deposit() (abi.TokenAmount, error) {
	if c.ExistentialDeposit == "" {
		return big.Zero(), nil
	}
	d, err := big.FromString(c.ExistentialDeposit)
	if err != nil {
		return big.Zero(), xerrors.Errorf("invalid existential deposit %q: %w", c.ExistentialDeposit, err)
	}
	if d.Sign() < 0 {
		return big.Zero(), xerrors.Errorf("existential deposit %v is negative", d)
	}
	return d, nil
}
