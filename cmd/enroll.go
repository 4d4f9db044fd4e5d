package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kozaktomas/face-gate/internal/identity"
	"github.com/kozaktomas/face-gate/internal/session"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll identities from a batch file",
	Long: `Enroll identities from a YAML or JSON file of precomputed face embeddings.

The file is a list of entries:

  - name: Alice
    embedding: [0.12, -0.03, ...]

Each entry goes through the same duplicate check as a register session.
Entries whose face is already enrolled are skipped and reported.`,
	Args: cobra.NoArgs,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("file", "", "Batch file with name and embedding entries (required)")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
	enrollCmd.MarkFlagRequired("file")
}

type enrollEntry struct {
	Name      string    `yaml:"name"`
	Embedding []float32 `yaml:"embedding"`
}

// EnrollSkip is one batch entry that was not enrolled.
type EnrollSkip struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// EnrollOutput is the JSON output of enroll.
type EnrollOutput struct {
	Enrolled []identity.Summary `json:"enrolled"`
	Skipped  []EnrollSkip       `json:"skipped"`
}

func parseEnrollBatch(r io.Reader) ([]enrollEntry, error) {
	var entries []enrollEntry
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing batch file: %w", err)
	}
	return entries, nil
}

// enrollBatch enrolls entries in order. Duplicate and malformed entries are
// skipped. A persistence failure aborts the batch.
func enrollBatch(ctx context.Context, dir *session.Directory, entries []enrollEntry, progress func()) (EnrollOutput, error) {
	out := EnrollOutput{Enrolled: []identity.Summary{}, Skipped: []EnrollSkip{}}
	for i, e := range entries {
		enrolled, err := dir.Enroll(ctx, e.Name, e.Embedding)
		if progress != nil {
			progress()
		}

		var (
			dupErr        *session.DuplicateIdentityError
			validationErr *session.ValidationError
			noFaceErr     *session.NoFaceError
		)
		switch {
		case err == nil:
			out.Enrolled = append(out.Enrolled, enrolled.Summary())
		case errors.As(err, &dupErr):
			out.Skipped = append(out.Skipped, EnrollSkip{
				Index:  i,
				Name:   e.Name,
				Reason: fmt.Sprintf("duplicate of %s (%s), distance %.4f", dupErr.Name, dupErr.ID, dupErr.Distance),
			})
		case errors.As(err, &validationErr), errors.As(err, &noFaceErr):
			out.Skipped = append(out.Skipped, EnrollSkip{Index: i, Name: e.Name, Reason: err.Error()})
		default:
			return out, fmt.Errorf("enrolling entry %d: %w", i, err)
		}
	}
	return out, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := mustGetString(cmd, "file")
	jsonOutput := mustGetBool(cmd, "json")

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening batch file: %w", err)
	}
	entries, err := parseEnrollBatch(f)
	f.Close()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No entries to enroll")
		return nil
	}

	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	var progress func()
	if !jsonOutput {
		bar := progressbar.NewOptions(len(entries),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("faces"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		progress = func() { bar.Add(1) }
	}

	out, err := enrollBatch(ctx, eng.dir, entries, progress)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(out)
	}

	fmt.Printf("\n\nEnrolled: %d\n", len(out.Enrolled))
	for _, s := range out.Enrolled {
		fmt.Printf("  %s  %s\n", s.ID, s.Name)
	}
	if len(out.Skipped) > 0 {
		fmt.Printf("Skipped: %d\n", len(out.Skipped))
		for _, s := range out.Skipped {
			fmt.Printf("  #%d %s: %s\n", s.Index, s.Name, s.Reason)
		}
	}
	return nil
}
