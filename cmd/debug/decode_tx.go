package debug

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	soltx "github.com/OmegaNetwork-source/omega-bridge/pkg/solana"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/solana/logs"
	solwatch "github.com/OmegaNetwork-source/omega-bridge/pkg/watchers/solana"

	"github.com/davecgh/go-spew/spew"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"
)

var (
	decodeRPC      *string
	decodeEncoding *string
	decodeKind     *string
	decodeAccount  *string
	decodeFile     *string
	decodeDump     *bool
)

func init() {
	decodeRPC = decodeTxCmd.Flags().String("solanaRPC", rpc.MainNetBeta_RPC, "Solana RPC URL")
	decodeEncoding = decodeTxCmd.Flags().String("encoding", string(solana.EncodingJSON), "Transaction encoding (json or jsonParsed)")
	decodeKind = decodeTxCmd.Flags().String("kind", "", "Classify as fungible_burn or nft_deposit")
	decodeAccount = decodeTxCmd.Flags().String("account", "", "Tracked mint (fungible_burn) or relayer wallet (nft_deposit)")
	decodeFile = decodeTxCmd.Flags().String("file", "", "Read the getTransaction response from this file instead of RPC")
	decodeDump = decodeTxCmd.Flags().Bool("dump", false, "Dump the parsed transaction and intent structs")
	DebugCmd.AddCommand(decodeTxCmd)
}

var decodeTxCmd = &cobra.Command{
	Use:   "decode-tx [SIGNATURE]...",
	Short: "Run the memo decoder and the transfer classifier against Solana transactions",
	Run: func(cmd *cobra.Command, args []string) {
		var source *common.WatchedSource
		if *decodeKind != "" {
			kind, err := common.ParseAssetKind(*decodeKind)
			if err != nil {
				log.Fatal(err)
			}
			account, err := solana.PublicKeyFromBase58(*decodeAccount)
			if err != nil {
				log.Fatalf("invalid --account: %v", err)
			}
			source = &common.WatchedSource{Ledger: common.LedgerSolana, Account: account, Kind: kind}
		}

		if *decodeFile != "" {
			raw, err := os.ReadFile(*decodeFile)
			if err != nil {
				log.Fatal(err)
			}
			describe(os.Stdout, *decodeFile, raw, source, *decodeDump)
			return
		}

		client, err := solwatch.NewClient(*decodeRPC, "debug", rpc.CommitmentConfirmed, solana.EncodingType(*decodeEncoding), 0, 1)
		if err != nil {
			log.Fatal(err)
		}
		defer client.Close()

		for _, arg := range args {
			sig, err := solana.SignatureFromBase58(strings.TrimSpace(arg))
			if err != nil {
				log.Fatalf("invalid signature %s: %v", arg, err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			raw, err := client.RawTransaction(ctx, sig)
			cancel()
			if err != nil {
				log.Fatalf("failed to fetch %s: %v", sig, err)
			}
			describe(os.Stdout, sig.String(), raw, source, *decodeDump)
		}
	},
}

func describe(w io.Writer, name string, raw []byte, source *common.WatchedSource, dump bool) {
	tx, err := soltx.ParseTransaction(raw)
	if err != nil {
		fmt.Fprintf(w, "%s: %v\n", name, err)
		return
	}

	fmt.Fprintf(w, "transaction %s\n", name)
	fmt.Fprintf(w, "  signature: %s\n", tx.Signature)
	fmt.Fprintf(w, "  slot:      %d\n", tx.Slot)
	if !tx.BlockTime.IsZero() {
		fmt.Fprintf(w, "  time:      %s\n", tx.BlockTime.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "  failed:    %t\n", tx.Failed)
	if dump {
		spew.Fdump(w, tx)
	}

	if memo, ok := soltx.DecodeMemo(tx); ok {
		fmt.Fprintf(w, "  memo:      %q\n", memo)
	} else {
		fmt.Fprintf(w, "  memo:      none\n")
	}
	fmt.Fprintf(w, "  burn:      %t\n", soltx.HasBurn(tx))

	invocations, err := logs.ParseLogs(tx.LogMessages)
	if err != nil {
		fmt.Fprintf(w, "  logs:      unparseable (%v)\n", err)
	} else {
		fmt.Fprintf(w, "  invocations:\n")
		logs.Walk(invocations, func(inv *logs.Invocation) {
			status := "ok"
			if !inv.Success {
				status = "failed: " + inv.Error
			}
			fmt.Fprintf(w, "    %s%s (%s)\n", strings.Repeat("  ", max(inv.Depth-1, 0)), inv.Program, status)
		})
	}

	for _, b := range tx.PostTokenBalances {
		fmt.Fprintf(w, "  post balance: account=%d mint=%s owner=%s amount=%s decimals=%d\n",
			b.AccountIndex, b.Mint, b.Owner, b.Amount, b.Decimals)
	}

	if source == nil {
		return
	}
	intent, ok := soltx.Classify(source, tx)
	if !ok {
		fmt.Fprintf(w, "  intent:    none for %s\n", source)
		return
	}
	fmt.Fprintf(w, "  intent:    %s\n", intent)
	if dump {
		spew.Fdump(w, intent)
	}
	if intent.Amount != nil {
		fmt.Fprintf(w, "  amount:    %s\n", intent.Amount)
		if intent.Kind == common.AssetKindFungibleBurn {
			if scaled, err := common.SolanaToOmega(intent.Amount); err == nil {
				fmt.Fprintf(w, "  released:  %s wei\n", scaled)
			}
		}
	}
}
