// Command walletcli is a thin cobra front-end over the core package,
// grounded on the teacher's cmd/synnergy command-tree layout.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"orchardwallet/core"
	"orchardwallet/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{Use: "walletcli"}
	rootCmd.PersistentFlags().String("data-dir", defaultDataDir(), "wallet data directory")

	rootCmd.AddCommand(newCmd())
	rootCmd.AddCommand(restoreCmd())
	rootCmd.AddCommand(addressCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".walletcli"
	}
	return filepath.Join(home, ".walletcli")
}

func dataDirFlag(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("data-dir")
	return dir
}

func walletPath(dataDir string) string {
	return filepath.Join(dataDir, "wallet.dat")
}

func notesPath(dataDir string) string {
	return filepath.Join(dataDir, "notes.json")
}

func cursorPath(dataDir string) string {
	return filepath.Join(dataDir, "cursor.json")
}

func promptPassword(prompt string) string {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func newCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "create a new wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := dataDirFlag(cmd)
			if err := os.MkdirAll(dataDir, 0o700); err != nil {
				return err
			}

			seed, mnemonic, err := core.GenerateSeed()
			if err != nil {
				return err
			}
			defer core.Wipe(seed)

			password := promptPassword("set a wallet password: ")
			blob := core.NewSeedBlob(mnemonic)
			if err := core.SaveSeed(walletPath(dataDir), blob, password, false); err != nil {
				return err
			}

			cfg := config.Defaults(dataDir)
			if err := cfg.Save(); err != nil {
				return err
			}

			fmt.Println("wallet created. write down your recovery phrase:")
			fmt.Println(mnemonic)
			return nil
		},
	}
	return cmd
}

func restoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore [mnemonic...]",
		Short: "restore a wallet from a recovery phrase",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := dataDirFlag(cmd)
			if err := os.MkdirAll(dataDir, 0o700); err != nil {
				return err
			}
			mnemonic := strings.Join(args, " ")
			if _, err := core.SeedFromMnemonic(mnemonic, ""); err != nil {
				return err
			}

			password := promptPassword("set a wallet password: ")
			blob := core.NewSeedBlob(mnemonic)
			if err := core.SaveSeed(walletPath(dataDir), blob, password, true); err != nil {
				return err
			}

			cfg := config.Defaults(dataDir)
			return cfg.Save()
		},
	}
	return cmd
}

func unlock(dataDir string) ([]byte, core.FullViewingKey, *core.OrchardSpendingKey, error) {
	password := promptPassword("wallet password: ")
	blob, err := core.LoadSeed(walletPath(dataDir), password)
	if err != nil {
		return nil, core.FullViewingKey{}, nil, err
	}
	seed, err := core.SeedFromMnemonic(blob.Mnemonic, "")
	if err != nil {
		return nil, core.FullViewingKey{}, nil, err
	}
	sk, err := core.DeriveOrchard(seed, 0)
	if err != nil {
		return nil, core.FullViewingKey{}, nil, err
	}
	return seed, sk.FVK(), sk, nil
}

func addressCmd() *cobra.Command {
	var diversifier uint32
	cmd := &cobra.Command{
		Use:   "address",
		Short: "print the wallet's receiving address",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := dataDirFlag(cmd)
			seed, fvk, sk, err := unlock(dataDir)
			if err != nil {
				return err
			}
			defer core.Wipe(seed)
			defer core.WipeSpendingKey(sk)

			cfg, err := config.Load(dataDir)
			if err != nil {
				return err
			}
			raw, err := core.AddressAt(fvk, core.ScopeExternal, diversifier)
			if err != nil {
				return err
			}
			ua, err := core.EncodeAddress(raw, core.ParseNetwork(cfg.Network))
			if err != nil {
				return err
			}
			fmt.Println(ua)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&diversifier, "index", 0, "diversifier index")
	return cmd
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "scan the chain for new notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := dataDirFlag(cmd)
			seed, fvk, sk, err := unlock(dataDir)
			if err != nil {
				return err
			}
			defer core.Wipe(seed)
			defer core.WipeSpendingKey(sk)

			cfg, err := config.Load(dataDir)
			if err != nil {
				return err
			}
			node := core.NewRPCNodeClient(cfg.NodeURL)
			ctx := context.Background()

			tip, err := node.TipHeight(ctx)
			if err != nil {
				return err
			}
			cursor, err := core.LoadCursor(cursorPath(dataDir))
			if err != nil {
				return err
			}
			from, to, ok := core.NextRange(cursor, tip, uint32(cfg.ScanWindow))
			if !ok {
				fmt.Println("already up to date")
				return nil
			}

			idx, err := loadOrNewIndex(notesPath(dataDir))
			if err != nil {
				return err
			}
			seen := make(map[[32]byte]bool)
			for _, n := range idx.UnspentIter() {
				seen[n.Nullifier] = true
			}

			result, err := core.ScanRange(ctx, node, fvk, sk.Nk, from, to, seen)
			if err != nil {
				return err
			}
			for _, n := range result.Notes {
				idx.Add(n)
			}
			if err := idx.Save(notesPath(dataDir)); err != nil {
				return err
			}
			if err := core.SaveCursor(cursorPath(dataDir), core.AdvanceCursor(result.ToHeight)); err != nil {
				return err
			}

			fmt.Printf("scanned %d-%d, found %d new notes\n", from, to, len(result.Notes))
			return nil
		},
	}
	return cmd
}

func loadOrNewIndex(path string) (*core.NoteIndex, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return core.NewNoteIndex(), nil
	}
	return core.LoadNoteIndex(path)
}

func balanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "print the total unspent balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := dataDirFlag(cmd)
			idx, err := loadOrNewIndex(notesPath(dataDir))
			if err != nil {
				return err
			}
			fmt.Printf("%d zatoshis (%d unspent notes)\n", idx.TotalUnspentValue(), idx.UnspentCount())
			return nil
		},
	}
	return cmd
}

func sendCmd() *cobra.Command {
	var amount uint64
	var memo string
	cmd := &cobra.Command{
		Use:   "send [address]",
		Short: "build and broadcast a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := dataDirFlag(cmd)
			seed, fvk, sk, err := unlock(dataDir)
			if err != nil {
				return err
			}
			defer core.Wipe(seed)
			defer core.WipeSpendingKey(sk)

			recipientRaw, _, err := core.DecodeAddress(args[0])
			if err != nil {
				return err
			}

			cfg, err := config.Load(dataDir)
			if err != nil {
				return err
			}
			node := core.NewRPCNodeClient(cfg.NodeURL)
			ctx := context.Background()

			idx, err := loadOrNewIndex(notesPath(dataDir))
			if err != nil {
				return err
			}
			var spendable []core.SpendableNote
			for _, n := range idx.UnspentIter() {
				spendable = append(spendable, core.SpendableNote{OrchardNote: n, SpendingKey: *sk})
			}

			fe, err := node.FeeEstimate(ctx)
			var feeZat uint64
			if err != nil {
				feeZat = cfg.FeeZatFallback
			} else {
				feeZat = core.ParseFeeZatoshis(fe, cfg.FeeZatFallback)
			}

			result, err := core.BuildTransaction(ctx, node, core.BuildTransactionRequest{
				Notes:        spendable,
				RecipientRaw: recipientRaw,
				AmountZat:    amount,
				Memo:         []byte(memo),
				FeeZat:       feeZat,
				ChangeFVK:    fvk,
				ChangeScope:  core.ScopeInternal,
				ChangeDivIdx: 0,
			})
			if err != nil {
				return err
			}

			fmt.Printf("txid: %s (broadcast=%v)\n", result.Txid, result.Broadcast)
			return appendHistory(dataDir, result.Record)
		},
	}
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount in zatoshis")
	cmd.Flags().StringVar(&memo, "memo", "", "memo text")
	return cmd
}

func historyPath(dataDir string) string {
	return filepath.Join(dataDir, "history.json")
}

func appendHistory(dataDir string, record core.SentTransactionRecord) error {
	records, err := core.LoadHistory(historyPath(dataDir))
	if err != nil {
		return err
	}
	records = append(records, record)
	return core.SaveHistory(historyPath(dataDir), records)
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "print sent transaction history",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := dataDirFlag(cmd)
			records, err := core.LoadHistory(historyPath(dataDir))
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Printf("%s %s amount=%d fee=%d change=%d\n", r.Txid, r.Status, r.Amount, r.Fee, r.Change)
			}
			return nil
		},
	}
	return cmd
}
