package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/foyer-io/foyer/internal/policy"
)

var validateFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an access policy file",
	Long:  "Validates a policy YAML against the schema, checks action mapping references, and compiles the action gate",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		_, span := tracer.Start(ctx, "validate")
		defer span.End()

		var (
			pol *policy.Policy
			err error
		)
		if validateFile == "" {
			pol, err = policy.Default()
		} else {
			pol, err = policy.Load(ctx, validateFile)
		}
		if err != nil {
			log.Error().
				Err(err).
				Str("file", validateFile).
				Msg("policy_validation_failed")
			fmt.Fprintf(os.Stderr, "✗ Validation failed: %s\n", validateFile)
			return fmt.Errorf("validation failed: %w", err)
		}

		// Creating the engine compiles the Rego gate, verifying correctness
		if _, err := policy.NewEngine(ctx, pol); err != nil {
			fmt.Fprintf(os.Stderr, "✗ Policy compilation failed: %s\n", validateFile)
			return fmt.Errorf("policy engine initialization failed: %w", err)
		}

		log.Info().
			Str("file", validateFile).
			Str("version", pol.VersionTag).
			Msg("policy_validated")

		fmt.Printf("✓ Policy valid: %s\n", pol.Assistant.Name)
		fmt.Printf("  Version:  %s\n", pol.VersionTag)
		fmt.Printf("  Entities: %d\n", len(pol.Entities))
		fmt.Printf("  Services: %d\n", len(pol.Services))
		fmt.Printf("  Actions:  %d\n", len(pol.Actions))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "policy file to validate (default: embedded policy)")
}
