package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aura-comms/aura/pkg/clierror"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/store"
)

var (
	okFmt  = color.New(color.FgGreen).SprintFunc()
	dimFmt = color.New(color.Faint).SprintFunc()
)

func init() {
	rootCmd.AddCommand(authorityCmd)
	authorityCmd.AddCommand(authorityCreateCmd)
	authorityCmd.AddCommand(authorityListCmd)
	authorityCmd.AddCommand(authorityStatusCmd)

	authorityCreateCmd.Flags().String("name", "", "Authority name (required)")
	authorityCreateCmd.MarkFlagRequired("name")
}

// AuthorityRecord is the persisted shape of one local authority.
type AuthorityRecord struct {
	Name      string `json:"name"`
	Authority string `json:"authority_id"`
	Account   string `json:"account_id"`
	CreatedAt int64  `json:"created_at"`
}

const authorityPrefix = "maintenance:authority:"

func authorityKey(name string) string {
	return store.Key("maintenance", "authority", name)
}

var authorityCmd = &cobra.Command{
	Use:   "authority",
	Short: "Manage local authorities",
	Long:  `Commands to create, list, and query the authorities on this device.`,
}

var authorityCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new authority",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("authority name must not be blank")
		}

		exists, err := cliStore.Exists(authorityKey(name))
		if err != nil {
			return clierror.StorageFailed(err)
		}
		if exists {
			return clierror.DuplicateAuthority(name)
		}

		rec := AuthorityRecord{
			Name:      name,
			Authority: ids.NewAuthorityId().String(),
			Account:   ids.NewAccountId().String(),
			CreatedAt: time.Now().Unix(),
		}
		blob, err := json.Marshal(rec)
		if err != nil {
			return clierror.InternalError(err)
		}
		if err := cliStore.Store(authorityKey(name), blob); err != nil {
			return clierror.StorageFailed(err)
		}

		if outputFormat == "json" {
			return formatOutput(rec)
		}
		printf("%s authority %q created\n", okFmt("✓"), name)
		printf("  authority id: %s\n", dimFmt(rec.Authority))
		printf("  account id:   %s\n", dimFmt(rec.Account))
		return nil
	},
}

var authorityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List authorities",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := loadAuthorities()
		if err != nil {
			return err
		}

		if outputFormat == "json" {
			if len(records) == 0 {
				printf("[]\n")
				return nil
			}
			return formatOutput(records)
		}

		if len(records) == 0 {
			printf("No authorities. Use 'aura authority create --name <name>' to add one.\n")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		printfw(w, "NAME\tAUTHORITY ID\tACCOUNT ID\tCREATED\n")
		for _, rec := range records {
			printfw(w, "%s\t%s\t%s\t%s\n",
				rec.Name, rec.Authority, rec.Account,
				time.Unix(rec.CreatedAt, 0).UTC().Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var authorityStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authority status",
	Long:  `Exits 3 when no authority exists on this device.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := loadAuthorities()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return clierror.NoAuthority()
		}

		if outputFormat == "json" {
			return formatOutput(map[string]any{
				"count":       len(records),
				"authorities": records,
			})
		}
		printf("%s %d authority(ies) configured\n", okFmt("✓"), len(records))
		for _, rec := range records {
			printf("  %s %s\n", rec.Name, dimFmt(rec.Authority))
		}
		return nil
	},
}

// loadAuthorities reads every persisted authority, ordered by name.
func loadAuthorities() ([]AuthorityRecord, error) {
	keys, err := cliStore.ListKeys(authorityPrefix)
	if err != nil {
		return nil, clierror.StorageFailed(err)
	}
	sort.Strings(keys)

	records := make([]AuthorityRecord, 0, len(keys))
	for _, key := range keys {
		blob, ok, err := cliStore.Retrieve(key)
		if err != nil {
			return nil, clierror.StorageFailed(err)
		}
		if !ok {
			continue
		}
		var rec AuthorityRecord
		if err := json.Unmarshal(blob, &rec); err != nil {
			return nil, clierror.InternalError(err)
		}
		records = append(records, rec)
	}
	return records, nil
}
