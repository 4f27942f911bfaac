package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ekf-go/eval"
	"ekf-go/forward"
	"ekf-go/fusion"
	"ekf-go/measlog"
	"ekf-go/server"
	"ekf-go/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewCmd().ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func NewCmd() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "fuse [command] [flags]",
		Short:         "fuse tracks an object from radar and laser measurements",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: setupLogging,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.PersistentFlags().String("log-level", "info", "`<Level>` one of trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringP("config", "c", "", "`<Path>` to a YAML filter config")

	runCmd := &cobra.Command{
		Use:   "run [flags]",
		Short: "Filter a measurement log and write estimates",
		Args:  cobra.NoArgs,
		RunE:  doRun,
	}
	runCmd.Flags().StringP("in", "i", "", "`<Path>` to the measurement log")
	runCmd.Flags().StringP("out", "o", "estimates.txt", "`<Path>` of the estimate table")
	runCmd.MarkFlagRequired("in")

	serveCmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "Filter measurement lines received over UDP",
		Args:  cobra.NoArgs,
		RunE:  doServe,
	}
	serveCmd.Flags().String("udp", server.DefaultAddr, "`<Addr>` to receive measurement lines on")
	serveCmd.Flags().String("http", ":8080", "`<Addr>` for the websocket and state API, empty to disable")
	serveCmd.Flags().String("dist", "", "`<Dir>` of a static frontend served at /")
	serveCmd.Flags().String("record", "", "`<Path>` to record accepted lines to")
	serveCmd.Flags().StringSlice("forward-udp", nil, "`<Addr>` to forward estimates to over UDP, repeatable")
	serveCmd.Flags().StringSlice("forward-tcp", nil, "`<Addr>` to forward estimates to over TCP, repeatable")
	serveCmd.Flags().String("forward-header", "", "`<Header>` prefixed to every forwarded message")

	replayCmd := &cobra.Command{
		Use:   "replay [flags]",
		Short: "Send a measurement log to a running server",
		Args:  cobra.NoArgs,
		RunE:  doReplay,
	}
	replayCmd.Flags().StringP("in", "i", "", "`<Path>` to the measurement log")
	replayCmd.Flags().String("dest", "127.0.0.1:44333", "`<Addr>` of the server")
	replayCmd.Flags().Float64("speed", 1.0, "playback speed factor, 0 sends without pacing")
	replayCmd.MarkFlagRequired("in")

	rootCmd.AddCommand(
		runCmd,
		serveCmd,
		replayCmd,
	)
	return rootCmd
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(cmd.ErrOrStderr())
	return nil
}

func loadConfig(cmd *cobra.Command) (fusion.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return fusion.Config{}, err
	}
	if path == "" {
		return fusion.DefaultConfig(), nil
	}
	return fusion.LoadConfig(path)
}

func doRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	inPath, _ := cmd.Flags().GetString("in")
	outPath, _ := cmd.Flags().GetString("out")

	parser := measlog.NewParser(inPath)
	if err := parser.Parse(); err != nil {
		return err
	}
	out, err := measlog.NewEstimateWriter(outPath)
	if err != nil {
		return err
	}

	res, err := runLog(cfg, parser.Records, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d records, %d estimates written to %s\n", len(parser.Records), len(res.est), outPath)
	if parser.HasTruth() && len(res.est) > 0 {
		rmse, err := eval.RMSE(res.est, res.truth)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "RMSE %s\n", rmse)
	}
	return nil
}

type runResult struct {
	est, truth []fusion.Estimate
	outcomes   map[fusion.Outcome]int
}

// runLog filters recs in order. Rejected records and cycles that leave the
// filter unseeded produce no estimate row.
func runLog(cfg fusion.Config, recs []measlog.Record, out *measlog.EstimateWriter) (runResult, error) {
	res := runResult{outcomes: make(map[fusion.Outcome]int)}
	p, err := fusion.NewFusionPipeline(cfg)
	if err != nil {
		return res, err
	}
	for i, rec := range recs {
		outcome, err := p.Process(rec.Measurement)
		res.outcomes[outcome]++
		if err != nil {
			log.WithFields(log.Fields{"record": i + 1, "ts": rec.Measurement.Timestamp, "outcome": outcome}).WithError(err).Warn("measurement not applied")
		}
		if outcome == fusion.OutcomeRejected || !p.Initialized() {
			continue
		}
		est := p.Estimate()
		if out != nil {
			if err := out.Write(est, rec); err != nil {
				return res, err
			}
		}
		res.est = append(res.est, est)
		res.truth = append(res.truth, rec.Truth())
	}
	log.WithFields(log.Fields{
		"updated": res.outcomes[fusion.OutcomeUpdated],
		"skipped": res.outcomes[fusion.OutcomeUpdateSkipped],
		"resets":  res.outcomes[fusion.OutcomeReset],
	}).Info("log processed")
	return res, nil
}

func doServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	udpAddr, _ := cmd.Flags().GetString("udp")
	httpAddr, _ := cmd.Flags().GetString("http")
	distDir, _ := cmd.Flags().GetString("dist")
	recordPath, _ := cmd.Flags().GetString("record")

	pipeline, err := fusion.NewFusionPipeline(cfg)
	if err != nil {
		return err
	}
	srv, err := server.NewUdpServer(udpAddr, pipeline)
	if err != nil {
		return err
	}
	if recordPath != "" {
		rec, err := measlog.NewLineWriter(recordPath)
		if err != nil {
			srv.Close()
			return err
		}
		defer rec.Close()
		srv.SetRecorder(rec)
	}

	fwd, err := newForwarder(cmd)
	if err != nil {
		srv.Close()
		return err
	}
	if fwd != nil {
		defer fwd.Stop()
		srv.SetForwarder(fwd)
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	if httpAddr != "" {
		webSrv := web.NewServer(srv, distDir)
		srv.SetWebHub(webSrv.Hub)
		g.Go(func() error { return webSrv.Start(ctx, httpAddr) })
	}
	g.Go(func() error { return srv.Start(ctx) })

	err = g.Wait()
	st := srv.Stats()
	log.WithFields(log.Fields{
		"malformed":   st.Malformed,
		"initialized": st.Count(fusion.OutcomeInitialized),
		"updated":     st.Count(fusion.OutcomeUpdated),
		"rejected":    st.Count(fusion.OutcomeRejected),
	}).Info("server stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newForwarder returns a started sender, or nil when no target is set.
func newForwarder(cmd *cobra.Command) (*forward.Sender, error) {
	udpTargets, _ := cmd.Flags().GetStringSlice("forward-udp")
	tcpTargets, _ := cmd.Flags().GetStringSlice("forward-tcp")
	header, _ := cmd.Flags().GetString("forward-header")
	if len(udpTargets) == 0 && len(tcpTargets) == 0 {
		return nil, nil
	}

	fwd := forward.NewSender()
	fwd.SetHeader(header)
	for _, addr := range udpTargets {
		if err := fwd.AddUDPTarget(addr, forward.FlagAll); err != nil {
			return nil, fmt.Errorf("forward target %s: %w", addr, err)
		}
	}
	for _, addr := range tcpTargets {
		fwd.AddTCPTarget(addr, forward.FlagAll)
	}
	if err := fwd.Start(); err != nil {
		return nil, err
	}
	log.WithField("targets", fwd.Targets()).Info("forwarding estimates")
	return fwd, nil
}

func doReplay(cmd *cobra.Command, args []string) error {
	inPath, _ := cmd.Flags().GetString("in")
	dest, _ := cmd.Flags().GetString("dest")
	speed, _ := cmd.Flags().GetFloat64("speed")

	parser := measlog.NewParser(inPath)
	if err := parser.Parse(); err != nil {
		return err
	}
	n, err := server.Replay(cmd.Context(), parser.Records, dest, speed)
	fmt.Fprintf(cmd.OutOrStdout(), "sent %d of %d records\n", n, len(parser.Records))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
