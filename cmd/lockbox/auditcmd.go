package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show recent audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		events, err := v.Audit().ListEvents(auditLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No audit events.")
			return nil
		}
		for _, e := range events {
			subject := e.Subject
			if subject != "" {
				subject = " " + subject
			}
			fmt.Printf("%s  %-24s %s%s\n", e.Timestamp, e.Operation, e.Result, subject)
		}
		return nil
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log chain for tampering",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		result, err := v.Audit().Verify()
		if err != nil {
			return err
		}
		if result.Valid {
			fmt.Printf("OK: %d records verified.\n", result.Records)
			return nil
		}
		fmt.Printf("FAILED: %d records checked, %d problems:\n", result.Records, len(result.Errors))
		for _, msg := range result.Errors {
			fmt.Printf("  - %s\n", msg)
		}
		return fmt.Errorf("audit chain verification failed")
	},
}

func init() {
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum events to show (0 = all)")
}
