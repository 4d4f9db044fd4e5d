package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kozaktomas/face-gate/internal/liveness"
	"github.com/kozaktomas/face-gate/internal/session"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Replay recorded frame observations through a login session",
	Long: `Replay a recorded observation script through a login session and print the verdict.

The script is a YAML or JSON list of frame observations as produced by a
capture client (embedding, expressions and landmarks). Frames are replayed
in order without the live cadence limit until the liveness challenge is
satisfied.

Use --plain to skip the challenge and identify the first frame with a face.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().String("file", "", "Observation script (required)")
	verifyCmd.Flags().String("kind", "", "Challenge kind: expression or geometric (default: random)")
	verifyCmd.Flags().Bool("plain", false, "Identify without a liveness challenge")
	verifyCmd.Flags().Bool("json", false, "Output as JSON")
	verifyCmd.MarkFlagRequired("file")
}

// VerifyOutput is the JSON output of verify.
type VerifyOutput struct {
	Kind     liveness.Kind    `json:"challenge_kind,omitempty"`
	Frames   int              `json:"frames"`
	Replayed int              `json:"replayed"`
	Progress float64          `json:"progress"`
	Verdict  *session.Verdict `json:"verdict,omitempty"`
}

func parseObservationScript(r io.Reader) ([]session.Observation, error) {
	var frames []session.Observation
	if err := yaml.NewDecoder(r).Decode(&frames); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing observation script: %w", err)
	}
	return frames, nil
}

// replayLogin feeds frames to a fresh login session until it completes.
// A script that runs out before the challenge is satisfied yields no verdict.
func replayLogin(c *session.Controller, kind liveness.Kind, frames []session.Observation, onResult func(int, session.Result)) (VerifyOutput, error) {
	var err error
	if kind != "" {
		err = c.StartLogin(kind)
	} else {
		err = c.Start(session.ModeLogin)
	}
	if err != nil {
		return VerifyOutput{}, err
	}

	out := VerifyOutput{Frames: len(frames)}
	if st := c.Status(); st.Challenge != nil {
		out.Kind = st.Challenge.Kind
	}

	for i := range frames {
		res, err := c.OnObservation(&frames[i])
		if err != nil {
			return out, fmt.Errorf("frame %d: %w", i, err)
		}
		out.Replayed = i + 1
		out.Progress = res.Progress
		if onResult != nil {
			onResult(i, res)
		}
		if res.Verdict != nil {
			out.Verdict = res.Verdict
			break
		}
	}
	return out, nil
}

// identifyFirstFace runs a plain identification on the first frame with a face.
func identifyFirstFace(c *session.Controller, frames []session.Observation) (VerifyOutput, error) {
	out := VerifyOutput{Frames: len(frames)}
	for i := range frames {
		if !frames[i].HasFace() {
			continue
		}
		v, err := c.Identify(&frames[i])
		if err != nil {
			return out, fmt.Errorf("frame %d: %w", i, err)
		}
		out.Replayed = i + 1
		out.Verdict = &v
		return out, nil
	}
	return out, &session.NoFaceError{Op: "identify"}
}

func runVerify(cmd *cobra.Command, args []string) error {
	path := mustGetString(cmd, "file")
	kind := liveness.Kind(mustGetString(cmd, "kind"))
	plain := mustGetBool(cmd, "plain")
	jsonOutput := mustGetBool(cmd, "json")

	if kind != "" && !kind.Valid() {
		return fmt.Errorf("unknown challenge kind %q", kind)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening observation script: %w", err)
	}
	frames, err := parseObservationScript(f)
	f.Close()
	if err != nil {
		return err
	}

	eng, err := openEngine(context.Background())
	if err != nil {
		return err
	}
	defer eng.Close()

	c := eng.newController(nil, false)

	var out VerifyOutput
	if plain {
		out, err = identifyFirstFace(c, frames)
	} else {
		var onResult func(int, session.Result)
		if !jsonOutput {
			onResult = func(i int, res session.Result) {
				face := "no face"
				if res.Face {
					face = "face"
				}
				fmt.Printf("frame %3d  %-7s  %-10s  %5.1f%%\n", i, face, res.State, res.Progress)
			}
		}
		out, err = replayLogin(c, kind, frames, onResult)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(out)
	}

	fmt.Println()
	if out.Kind != "" {
		fmt.Printf("Challenge:  %s\n", out.Kind)
	}
	fmt.Printf("Replayed:   %d of %d frames\n", out.Replayed, out.Frames)
	if out.Verdict == nil {
		fmt.Println("Verdict:    none (challenge not satisfied)")
		return nil
	}
	printVerdict(*out.Verdict)
	return out.Verdict.Err()
}

func printVerdict(v session.Verdict) {
	switch v.Outcome {
	case session.OutcomeAccepted:
		fmt.Printf("Verdict:    accepted as %s (%s), distance %.4f\n", v.Name, v.IdentityID, v.Distance)
	case session.OutcomeRejected:
		fmt.Printf("Verdict:    rejected, closest distance %.4f\n", v.Distance)
	default:
		fmt.Printf("Verdict:    %s\n", v.Outcome)
	}
}
