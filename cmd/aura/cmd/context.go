package cmd

import (
	"encoding/json"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aura-comms/aura/pkg/clierror"
	"github.com/aura-comms/aura/pkg/store"
)

func init() {
	rootCmd.AddCommand(contextCmd)
	contextCmd.AddCommand(contextListCmd)
}

// ContextRecord is the persisted shape of one messaging context.
type ContextRecord struct {
	Name      string `json:"name"`
	Context   string `json:"context_id"`
	Authority string `json:"authority_id"`
	CreatedAt int64  `json:"created_at"`
}

const contextPrefix = "maintenance:context:"

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Inspect messaging contexts",
}

var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := cliStore.ListKeys(contextPrefix)
		if err != nil {
			return clierror.StorageFailed(err)
		}
		sort.Strings(keys)

		records := make([]ContextRecord, 0, len(keys))
		for _, key := range keys {
			blob, ok, err := cliStore.Retrieve(key)
			if err != nil {
				return clierror.StorageFailed(err)
			}
			if !ok {
				continue
			}
			var rec ContextRecord
			if err := json.Unmarshal(blob, &rec); err != nil {
				return clierror.InternalError(err)
			}
			records = append(records, rec)
		}

		if outputFormat == "json" {
			if len(records) == 0 {
				printf("[]\n")
				return nil
			}
			return formatOutput(records)
		}

		if len(records) == 0 {
			printf("No contexts.\n")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		printfw(w, "NAME\tCONTEXT ID\tAUTHORITY\tCREATED\n")
		for _, rec := range records {
			printfw(w, "%s\t%s\t%s\t%s\n",
				rec.Name, rec.Context, rec.Authority,
				time.Unix(rec.CreatedAt, 0).UTC().Format(time.RFC3339))
		}
		return w.Flush()
	},
}

// contextKey names a context entry in the store.
func contextKey(name string) string {
	return store.Key("maintenance", "context", name)
}
