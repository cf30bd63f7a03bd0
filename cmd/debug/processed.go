package debug

import (
	"fmt"
	"log"
	"sort"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/db"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	processedDataDir *string
	processedBackend *string
	processedDomain  *string
)

func init() {
	processedDataDir = processedCmd.Flags().String("dataDir", "", "Existing data directory of the relayer (required)")
	processedBackend = processedCmd.Flags().String("dedupBackend", string(db.BackendFile), "Dedup store backend (file or badger)")
	processedDomain = processedCmd.Flags().String("domain", "", "Only list this domain (nft_deposits, token_burns, target_burns)")
	DebugCmd.AddCommand(processedCmd)
}

var processedCmd = &cobra.Command{
	Use:   "processed [ID]...",
	Short: "List the dedup stores, or check whether the given identifiers were processed",
	Run: func(cmd *cobra.Command, args []string) {
		if *processedDataDir == "" {
			log.Fatal("Please specify --dataDir")
		}
		stores, err := db.OpenExistingStores(zap.NewNop(), db.Backend(*processedBackend), *processedDataDir)
		if err != nil {
			log.Fatal(err)
		}
		defer stores.Close()

		domains := common.AllDomains
		if *processedDomain != "" {
			domains = []common.DedupDomain{common.DedupDomain(*processedDomain)}
		}

		for _, domain := range domains {
			set, ok := stores.Get(domain)
			if !ok {
				log.Fatalf("unknown domain %q", domain)
			}

			if len(args) > 0 {
				for _, id := range args {
					done, err := set.Contains(id)
					if err != nil {
						log.Fatal(err)
					}
					fmt.Printf("%s\t%s\t%t\n", domain, id, done)
				}
				continue
			}

			ids, err := set.IDs()
			if err != nil {
				log.Fatal(err)
			}
			sort.Strings(ids)
			fmt.Printf("# %s (%d)\n", domain, len(ids))
			for _, id := range ids {
				fmt.Println(id)
			}
		}
	},
}
