package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgeworks/forge/internal/daemon"
)

// ─── State CLI ──────────────────────────────────────────────────────────────
// Reads and whole-state commands: status, message replay, checkpoint and
// summary rendering, export/import/reset and the economy setters.

func init() {
	rootCmd.AddCommand(statusCmd, messageCmd, checkpointCmd, summaryCmd)
	rootCmd.AddCommand(exportCmd, importCmd, resetCmd)
	rootCmd.AddCommand(pointsCmd, vitalsCmd)
	pointsCmd.AddCommand(pointsSetCmd, pointsBonusCmd)

	messageCmd.Flags().Int64("seq", -1, "Host message sequence number (required)")
	messageCmd.Flags().StringP("file", "f", "", "Read the message from a file ('-' for stdin)")
	exportCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	resetCmd.Flags().Bool("yes", false, "Confirm the reset")
	vitalsCmd.Flags().Int("corruption", -1, "Set corruption (0-100)")
	vitalsCmd.Flags().Int("sanity", -1, "Set sanity (0-100)")
}

// ─── status ─────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show points, perks and roll state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			st := d.Session.Status()
			snap := d.Session.Snapshot()
			conv := st.Conversation
			if conv == "" {
				conv = "(global)"
			}
			fmt.Fprintf(os.Stdout, "Conversation: %s\n", conv)
			if st.Profile != "" {
				fmt.Fprintf(os.Stdout, "Profile:      %s\n", st.Profile)
			}
			fmt.Fprintf(os.Stdout, "Tracking:     %v\n", st.Enabled)
			fmt.Fprintf(os.Stdout, "CP:           %d total, %d available, %d spent\n",
				snap.TotalPoints, snap.AvailablePoints, snap.SpentPoints)
			fmt.Fprintf(os.Stdout, "Threshold:    %d/%d\n", snap.ThresholdProgress, snap.Threshold)
			fmt.Fprintf(os.Stdout, "Perks:        %d acquired, %d banked\n", st.Perks, st.Banked)
			fmt.Fprintf(os.Stdout, "Roll:         %s\n", st.RollPhase)
			if snap.Pending != nil {
				fmt.Fprintf(os.Stdout, "Pending:      %s (%d CP, %d more needed)\n",
					snap.Pending.Name, snap.Pending.Cost, snap.Pending.Needed)
			}
			return nil
		})
	},
}

// ─── message ────────────────────────────────────────────────────────────────

var messageCmd = &cobra.Command{
	Use:   "message [TEXT]",
	Short: "Apply one AI message as the host would",
	Long: `Apply one finished AI message: checkpoint sync, inline perk detection,
narrative XP and the per-response tick. A sequence number at or below the
last processed one is ignored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMessage,
}

func runMessage(cmd *cobra.Command, args []string) error {
	seq, _ := cmd.Flags().GetInt64("seq")
	if seq < 0 {
		return fmt.Errorf("--seq is required")
	}
	file, _ := cmd.Flags().GetString("file")

	var text string
	switch {
	case file == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		text = string(b)
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		text = string(b)
	case len(args) == 1:
		text = args[0]
	default:
		return fmt.Errorf("message text required: forge message --seq N TEXT or -f FILE")
	}

	return withDaemon(cmd, func(d *daemon.Daemon) error {
		res, err := d.Session.HandleMessage(seq, text)
		if err != nil {
			return explain(err)
		}
		return printJSON(res)
	})
}

// ─── render ─────────────────────────────────────────────────────────────────

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Render the current state as a checkpoint block",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			out, err := d.Session.RenderCheckpoint()
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, out)
			return nil
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Render the prompt summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			fmt.Fprint(os.Stdout, d.Session.RenderSummary())
			return nil
		})
	},
}

// ─── export / import / reset ────────────────────────────────────────────────

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the full state as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			body, err := d.Session.Export()
			if err != nil {
				return err
			}
			if out == "" {
				_, err = os.Stdout.Write(append(body, '\n'))
				return err
			}
			if err := os.WriteFile(out, body, 0o600); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(os.Stdout, "Exported to %s\n", out)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace the state with an exported document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read import: %w", err)
		}
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			if err := d.Session.Import(body); err != nil {
				return explain(err)
			}
			fmt.Fprintf(os.Stdout, "Imported %s (%d perks)\n", args[0], d.Session.Status().Perks)
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Replace the state with a fresh character",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("reset discards all progress; re-run with --yes")
		}
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			d.Session.Reset()
			fmt.Fprintln(os.Stdout, "State reset.")
			return nil
		})
	},
}

// ─── points / vitals ────────────────────────────────────────────────────────

var pointsCmd = &cobra.Command{
	Use:   "points",
	Short: "Adjust Choice Points",
}

var pointsSetCmd = &cobra.Command{
	Use:   "set AVAILABLE",
	Short: "Set available points (adjusts the bonus)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid points %q", args[0])
		}
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			return reportPoints(d, d.Session.SetAvailablePoints(n))
		})
	},
}

var pointsBonusCmd = &cobra.Command{
	Use:   "bonus AMOUNT",
	Short: "Add bonus points (negative to remove)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid amount %q", args[0])
		}
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			return reportPoints(d, d.Session.AddBonusPoints(n))
		})
	},
}

func reportPoints(d *daemon.Daemon, affordable []string) error {
	st := d.Session.Snapshot()
	fmt.Fprintf(os.Stdout, "CP: %d total, %d available\n", st.TotalPoints, st.AvailablePoints)
	if len(affordable) > 0 {
		fmt.Fprintf(os.Stdout, "Now affordable: %s\n", strings.Join(affordable, ", "))
	}
	return nil
}

var vitalsCmd = &cobra.Command{
	Use:   "vitals",
	Short: "Set corruption and sanity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		corruption, _ := cmd.Flags().GetInt("corruption")
		sanity, _ := cmd.Flags().GetInt("sanity")
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			if corruption >= 0 {
				d.Session.SetCorruption(corruption)
			}
			if sanity >= 0 {
				d.Session.SetSanity(sanity)
			}
			st := d.Session.Snapshot()
			fmt.Fprintf(os.Stdout, "Corruption: %d/100 | Sanity: %d/100\n", st.Corruption, st.Sanity)
			return nil
		})
	},
}
