package debug

import (
	"context"
	"fmt"
	"log"
	"time"

	soltx "github.com/OmegaNetwork-source/omega-bridge/pkg/solana"
	solwatch "github.com/OmegaNetwork-source/omega-bridge/pkg/watchers/solana"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"
)

var metadataRPC *string

func init() {
	metadataRPC = metadataCmd.Flags().String("solanaRPC", rpc.MainNetBeta_RPC, "Solana RPC URL")
	DebugCmd.AddCommand(metadataCmd)
}

var metadataCmd = &cobra.Command{
	Use:   "metadata [MINT]...",
	Short: "Print the Metaplex metadata of NFT mints",
	Run: func(cmd *cobra.Command, args []string) {
		client, err := solwatch.NewClient(*metadataRPC, "debug", rpc.CommitmentConfirmed, solana.EncodingJSON, 0, 1)
		if err != nil {
			log.Fatal(err)
		}
		defer client.Close()

		fetcher, err := solwatch.NewMetadataFetcher(client, len(args)+1)
		if err != nil {
			log.Fatal(err)
		}

		for _, arg := range args {
			mint, err := solana.PublicKeyFromBase58(arg)
			if err != nil {
				log.Fatalf("invalid mint %s: %v", arg, err)
			}
			addr, err := soltx.MetadataAddress(mint)
			if err != nil {
				log.Fatal(err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			md, err := fetcher.Fetch(ctx, mint)
			cancel()
			if err != nil {
				fmt.Printf("%s: %v\n", mint, err)
				continue
			}
			fmt.Printf("mint %s\n  metadata:  %s\n  name:      %q\n  symbol:    %q\n  uri:       %s\n  authority: %s\n",
				mint, addr, md.Name, md.Symbol, md.URI, md.UpdateAuthority)
		}
	},
}
