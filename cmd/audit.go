package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/database"
	"github.com/kozaktomas/face-gate/internal/identity"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Find enrolled identities that look like the same person",
	Long: `Build a nearest-neighbour graph over the enrolled population and report
pairs of identities whose faces are closer than the duplicate threshold.

Such pairs would have been rejected as duplicates had they been enrolled
through a register session; they usually come from imports or from a
threshold change.`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().Float64("threshold", 0, "Distance below which two faces are reported (default: FACEGATE_DUPLICATE_THRESHOLD)")
	auditCmd.Flags().Int("neighbors", constants.DefaultAuditNeighbors, "Neighbours compared per identity")
	auditCmd.Flags().String("export-graph", "", "Write the HNSW graph to this file")
	auditCmd.Flags().Bool("json", false, "Output as JSON")
}

// AuditOutput is the JSON output of audit.
type AuditOutput struct {
	Identities int                      `json:"identities"`
	Threshold  float64                  `json:"threshold"`
	Pairs      []database.DuplicatePair `json:"pairs"`
}

func auditPopulation(index *database.NeighborIndex, items []identity.EnrolledIdentity, threshold float64, perNode int) AuditOutput {
	index.Build(items)
	pairs := index.NearDuplicates(threshold, perNode)
	if pairs == nil {
		pairs = []database.DuplicatePair{}
	}
	return AuditOutput{Identities: len(items), Threshold: threshold, Pairs: pairs}
}

func runAudit(cmd *cobra.Command, args []string) error {
	threshold := mustGetFloat64(cmd, "threshold")
	perNode := mustGetInt(cmd, "neighbors")
	exportPath := mustGetString(cmd, "export-graph")
	jsonOutput := mustGetBool(cmd, "json")

	if perNode <= 0 {
		return fmt.Errorf("--neighbors must be positive, got %d", perNode)
	}

	eng, err := openEngine(context.Background())
	if err != nil {
		return err
	}
	defer eng.Close()

	if threshold <= 0 {
		threshold = eng.cfg.Engine.DuplicateThreshold
	}

	index := database.NewNeighborIndex()
	out := auditPopulation(index, eng.dir.Store().All(), threshold, perNode)

	if exportPath != "" && index.Len() == 0 {
		return fmt.Errorf("nothing to export: no identities enrolled")
	}
	if exportPath != "" {
		f, err := os.Create(exportPath)
		if err != nil {
			return fmt.Errorf("creating graph file: %w", err)
		}
		if err := index.Export(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("writing graph file: %w", err)
		}
	}

	if jsonOutput {
		return outputJSON(out)
	}

	fmt.Printf("Identities: %d, threshold: %.2f\n", out.Identities, out.Threshold)
	if exportPath != "" {
		fmt.Printf("Graph written to %s\n", exportPath)
	}
	if len(out.Pairs) == 0 {
		fmt.Println("No near-duplicate identities found")
		return nil
	}

	fmt.Printf("\n%-30s %-30s %s\n", "FIRST", "SECOND", "DISTANCE")
	for _, p := range out.Pairs {
		fmt.Printf("%-30s %-30s %.4f\n", p.A.Name+" ("+shortID(p.A.ID)+")", p.B.Name+" ("+shortID(p.B.ID)+")", p.Distance)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
