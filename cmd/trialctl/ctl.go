package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/med-material/HandStrengthener/internal/session"
	"github.com/med-material/HandStrengthener/internal/transport"
	"github.com/med-material/HandStrengthener/internal/trial"
)

var (
	ctlAddr    string
	ctlTimeout time.Duration
	ctlSource  string
)

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Talk to a running session over gRPC",
}

var ctlCommandCmd = &cobra.Command{
	Use:       "command <run|pause|resume|end>",
	Short:     "Send an operator command",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"run", "pause", "resume", "end"},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := session.ParseCommand(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd.Context(), func(ctx context.Context, cl *transport.Client) error {
			return cl.Command(ctx, c)
		})
	},
}

var ctlWindowCmd = &cobra.Command{
	Use:   "window <seconds>",
	Short: "Set the length of future input windows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return eris.Wrap(err, "parse seconds")
		}
		return withClient(cmd.Context(), func(ctx context.Context, cl *transport.Client) error {
			return cl.SetWindowSeconds(ctx, v)
		})
	},
}

var ctlGapCmd = &cobra.Command{
	Use:   "gap <seconds>",
	Short: "Set the inter-trial gap for future trials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return eris.Wrap(err, "parse seconds")
		}
		return withClient(cmd.Context(), func(ctx context.Context, cl *transport.Client) error {
			return cl.SetInterTrialSeconds(ctx, v)
		})
	},
}

var ctlInputCmd = &cobra.Command{
	Use:   "input <Accepted|Rejected> <confidence> <sequence>",
	Short: "Submit one classified input",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := trial.ParseValidity(args[0])
		if err != nil {
			return err
		}
		conf, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return eris.Wrap(err, "parse confidence")
		}
		seq, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return eris.Wrap(err, "parse sequence")
		}
		ev := trial.InputEvent{Validity: v, Confidence: conf, Sequence: seq, Source: trial.InputSource(ctlSource)}
		return withClient(cmd.Context(), func(ctx context.Context, cl *transport.Client) error {
			return cl.SubmitInput(ctx, ev)
		})
	},
}

var ctlStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the session snapshot and health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, cl *transport.Client) error {
			st, err := cl.Health(ctx)
			if err != nil {
				return err
			}
			snap, err := cl.Snapshot(ctx)
			if err != nil {
				return err
			}
			snap["health"] = st.String()
			return printJSON(cmd.OutOrStdout(), snap)
		})
	},
}

var ctlWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream session events as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cl, err := transport.NewClient(ctlAddr)
		if err != nil {
			return err
		}
		defer cl.Close()

		out := cmd.OutOrStdout()
		err = cl.Watch(ctx, func(ev map[string]interface{}) error {
			line, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(line))
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func withClient(parent context.Context, fn func(context.Context, *transport.Client) error) error {
	cl, err := transport.NewClient(ctlAddr)
	if err != nil {
		return err
	}
	defer cl.Close()

	ctx, cancel := context.WithTimeout(parent, ctlTimeout)
	defer cancel()
	return fn(ctx, cl)
}

func init() {
	ctlCmd.PersistentFlags().StringVar(&ctlAddr, "addr", "127.0.0.1:50061", "SessionControl address")
	ctlCmd.PersistentFlags().DurationVar(&ctlTimeout, "timeout", 5*time.Second, "per-call timeout")
	ctlInputCmd.Flags().StringVar(&ctlSource, "source", string(trial.SourceRemote), "input source label")

	ctlCmd.AddCommand(ctlCommandCmd, ctlWindowCmd, ctlGapCmd, ctlInputCmd, ctlStatusCmd, ctlWatchCmd)
	rootCmd.AddCommand(ctlCmd)
}
