// Package cli provides the command-line interface, built on Cobra.
// Commands speak to the core through driving ports injected at startup.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driving"
	"github.com/cosmica-labs/cosmica-cli/internal/logger"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services bundles everything the commands need.
type Services struct {
	Ingest        driving.IngestService
	Query         driving.QueryService
	Documents     driving.DocumentService
	Conversations driving.ConversationService
	Maintenance   driving.MaintenanceService
	Scheduler     driving.Scheduler
	Registry      *normalisers.Registry
}

var (
	ingestService       driving.IngestService
	queryService        driving.QueryService
	documentService     driving.DocumentService
	conversationService driving.ConversationService
	maintenanceService  driving.MaintenanceService
	scheduler           driving.Scheduler
	registry            *normalisers.Registry
)

// SetServices injects the service implementations the commands run against.
func SetServices(s Services) {
	ingestService = s.Ingest
	queryService = s.Query
	documentService = s.Documents
	conversationService = s.Conversations
	maintenanceService = s.Maintenance
	scheduler = s.Scheduler
	registry = s.Registry
}

// SetVersion overrides the reported version.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

var verboseFlag bool

var rootCmd = &cobra.Command{
	Use:   "cosmica",
	Short: "Ask questions of your own documents",
	Long: `Cosmica indexes your documents locally and answers questions about them.

Documents are chunked, embedded, and stored in an on-device vector index;
questions retrieve the most relevant passages and, when a language model is
configured, generate a grounded answer with citations.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verboseFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "print pipeline details to stderr")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
