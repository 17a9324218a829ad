package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quark-network/go-forkdb/backend"
)

const (
	flagConfig   = "config"
	flagEndpoint = "endpoint"
	flagBlock    = "block"
	flagCacheDir = "cachedir"
	flagGenesis  = "genesis"
)

func main() {
	cobra.EnableCommandSorting = false
	log.Logger = log.With().Caller().Logger()

	rootCmd := &cobra.Command{
		Use:   "forkdemo",
		Short: "fork database demo program",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			err := viper.BindPFlags(cmd.Flags())
			if err != nil {
				return err
			}
			if config := viper.GetString(flagConfig); config != "" {
				viper.SetConfigFile(config)
				return viper.ReadInConfig()
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		readAccountCommand(),
		cheatCommand(),
		snapshotCommand(),
		dumpCommand(),
	)

	rootCmd.PersistentFlags().String(flagConfig, "", "config file path")
	rootCmd.PersistentFlags().String(flagEndpoint, "", "remote JSON-RPC endpoint, empty for a local chain")
	rootCmd.PersistentFlags().Uint64(flagBlock, 0, "fork block number, 0 for latest")
	rootCmd.PersistentFlags().String(flagCacheDir, "", "on-disk remote state cache directory")
	rootCmd.PersistentFlags().String(flagGenesis, "", "genesis accounts yaml file")
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}

func openBackend() (*backend.Backend, error) {
	return backend.New(backend.Config{
		Endpoint:    viper.GetString(flagEndpoint),
		BlockNumber: viper.GetUint64(flagBlock),
		CacheDir:    viper.GetString(flagCacheDir),
		GenesisPath: viper.GetString(flagGenesis),
	})
}

func readAccountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "read <address>",
		Short: "resolve an account through the overlay, local set and remote cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid address %q", args[0])
			}
			b, err := openBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			account, err := b.ReadAccount(common.HexToAddress(args[0]))
			if err != nil {
				return err
			}
			log.Info().
				Str("balance", account.Balance.Dec()).
				Uint64("nonce", account.Nonce).
				Int("codeSize", len(account.Code)).
				Bool("exists", account.Exists).
				Msg("Resolved account")
			return nil
		},
	}
}

func cheatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cheat <address> <balance>",
		Short: "force an account balance and read it back",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid address %q", args[0])
			}
			addr := common.HexToAddress(args[0])
			balance, err := uint256.FromDecimal(args[1])
			if err != nil {
				return fmt.Errorf("invalid balance %q: %w", args[1], err)
			}

			b, err := openBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.CheatSetBalance(addr, balance); err != nil {
				return err
			}
			account, err := b.ReadAccount(addr)
			if err != nil {
				return err
			}
			origin, _ := b.AccountWriteOrigin(addr)
			log.Info().
				Str("balance", account.Balance.Dec()).
				Str("origin", origin.String()).
				Msg("Cheat write applied")
			return nil
		},
	}
}

func snapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <address>",
		Short: "demonstrate snapshot capture and revert around a balance write",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid address %q", args[0])
			}
			addr := common.HexToAddress(args[0])

			b, err := openBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.CheatSetBalance(addr, uint256.NewInt(5)); err != nil {
				return err
			}
			snap := b.TakeSnapshot()
			log.Info().Uint64("snapshot", uint64(snap)).Msg("Captured snapshot at balance 5")

			if err := b.CheatSetBalance(addr, uint256.NewInt(9)); err != nil {
				return err
			}
			if err := b.RevertTo(snap); err != nil {
				return err
			}
			account, err := b.ReadAccount(addr)
			if err != nil {
				return err
			}
			log.Info().Str("balance", account.Balance.Dec()).Msg("Balance after revert")
			return nil
		},
	}
}

func dumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file>",
		Short: "serialize the active fork's local modifications to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			out, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer out.Close()
			if err := b.DumpState(out); err != nil {
				return err
			}
			log.Info().Str("file", args[0]).Msg("Dumped state")
			return nil
		},
	}
}
