package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/foyer-io/foyer/internal/audit"
	"github.com/foyer-io/foyer/internal/config"
)

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and verify the signed audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit records",
	RunE:  auditList,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [record-id]",
	Short: "Verify HMAC signature of an audit record",
	Args:  cobra.ExactArgs(1),
	RunE:  auditVerify,
}

func init() {
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum records to show")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}

func openAuditStore() (*audit.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
}

func auditList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := openAuditStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	records, err := store.List(ctx, auditLimit)
	if err != nil {
		return fmt.Errorf("querying audit records: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No audit records found.")
		return nil
	}

	for _, rec := range records {
		status := "replied"
		switch {
		case rec.Executed:
			status = "executed " + rec.Action
		case rec.Rejected:
			status = "rejected"
		case rec.Error != "":
			status = "error"
		}
		fmt.Printf("%s  %s  %-24s  %dms  %s\n",
			rec.Timestamp.Format(time.RFC3339), rec.ID, status, rec.DurationMS, rec.PolicyVersion)
	}
	return nil
}

func auditVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := openAuditStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	valid, err := store.Verify(ctx, args[0])
	if err != nil {
		return fmt.Errorf("verifying record: %w", err)
	}
	if !valid {
		fmt.Printf("✗ Signature INVALID: %s\n", args[0])
		return fmt.Errorf("signature verification failed for %s", args[0])
	}
	fmt.Printf("✓ Signature valid: %s\n", args[0])
	return nil
}
