package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hedgehog/gwcore/pkg/api"
	"github.com/hedgehog/gwcore/pkg/flow"
	"github.com/hedgehog/gwcore/pkg/frr"
	"github.com/hedgehog/gwcore/pkg/gwconfig"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/hedgehog/gwcore/pkg/log"
	"github.com/hedgehog/gwcore/pkg/pipeline"
	"github.com/hedgehog/gwcore/pkg/reconciler"
	"github.com/hedgehog/gwcore/pkg/stats"
	"github.com/hedgehog/gwcore/pkg/worker"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "gatewayd",
	Short:   "VPC gateway dataplane process",
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("gatewayd version %s\ncommit: %s\n", Version, Commit))

	flags := rootCmd.Flags()
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "emit logs as JSON")
	flags.String("data-dir", "./gatewayd-data", "directory for the configuration store")
	flags.String("control-addr", "127.0.0.1:9443", "gRPC control interface listen address")
	flags.String("health-addr", "127.0.0.1:9090", "health/ready/metrics HTTP listen address")
	flags.String("frr-socket", "/run/gatewayd/frr.sock", "routing daemon control socket path")
	flags.String("bmp-addr", "0.0.0.0:5000", "BMP passive listener bind address")
	flags.Duration("reconcile-interval", 30*time.Second, "background reconciliation interval")
	flags.StringSlice("iface", nil, "network interface to run a worker on (repeatable)")
	flags.StringToString("iface-vpc", nil, "interface=vni mapping for ingress classification")
	flags.String("gateway-mac", "02:00:00:00:00:01", "gateway MAC address used for the MacNotForUs check")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	logLevel, _ := flags.GetString("log-level")
	logJSON, _ := flags.GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
	logger := log.WithComponent("gatewayd")

	dataDir, _ := flags.GetString("data-dir")
	controlAddr, _ := flags.GetString("control-addr")
	healthAddr, _ := flags.GetString("health-addr")
	frrSocket, _ := flags.GetString("frr-socket")
	bmpAddr, _ := flags.GetString("bmp-addr")
	reconcileInterval, _ := flags.GetDuration("reconcile-interval")
	ifaces, _ := flags.GetStringSlice("iface")
	ifaceVpcFlag, _ := flags.GetStringToString("iface-vpc")
	gatewayMac, _ := flags.GetString("gateway-mac")

	mac, err := net.ParseMAC(gatewayMac)
	if err != nil {
		return fmt.Errorf("invalid --gateway-mac: %w", err)
	}
	ingress, err := buildIngressConfig(ifaceVpcFlag, mac)
	if err != nil {
		return err
	}

	store, err := gwconfig.OpenStore(dataDir)
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	rec := reconciler.New()
	frrClient := frr.NewClient(frrSocket)
	sink := stats.NewSink()
	proc := gwconfig.NewProcessor(store, rec, frrClient, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := proc.Start(ctx); err != nil {
		return fmt.Errorf("apply initial configuration: %w", err)
	}
	rec.Start(reconcileInterval)
	defer rec.Stop()
	logger.Info().Msg("configuration processor started")

	nics := make(map[string]worker.Nic, len(ifaces))
	for _, name := range ifaces {
		nic, err := worker.NewAfpacketNic(name)
		if err != nil {
			return fmt.Errorf("open interface %s: %w", name, err)
		}
		nics[name] = nic
	}

	flows := flow.NewTable()
	workers := make([]*worker.Worker, 0, len(ifaces))
	for i, name := range ifaces {
		w := worker.New(i, worker.Config{
			Proc:    proc,
			Ingress: ingress,
			Nics:    []worker.Nic{nics[name]},
			AllNics: nics,
			Flows:   flows,
			Sink:    sink,
		})
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start worker for %s: %w", name, err)
		}
		workers = append(workers, w)
	}
	logger.Info().Int("workers", len(workers)).Msg("dataplane workers started")

	healthSrv := api.NewHealthServer(proc)
	go func() {
		if err := healthSrv.Start(healthAddr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health server exited")
		}
	}()

	controlSrv := api.NewServer(proc)
	controlLis, err := net.Listen("tcp", controlAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", controlAddr, err)
	}
	errCh := make(chan error, 1)
	go func() {
		if err := controlSrv.Serve(controlLis); err != nil {
			errCh <- fmt.Errorf("control server: %w", err)
		}
	}()

	bmpSrv := frr.NewBmpServer(frr.BmpServerConfig{BindAddr: bmpAddr}, &loggingBmpHandler{logger: log.WithComponent("bmp")})
	go func() {
		if err := bmpSrv.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("bmp server exited")
		}
	}()

	logger.Info().
		Str("control_addr", controlAddr).
		Str("health_addr", healthAddr).
		Msg("gatewayd ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("shutting down after server error")
	}

	cancel()
	for _, w := range workers {
		w.Stop()
	}
	controlSrv.Stop()
	logger.Info().Msg("shutdown complete")
	return nil
}

func buildIngressConfig(ifaceVpc map[string]string, mac net.HardwareAddr) (pipeline.IngressConfig, error) {
	out := pipeline.IngressConfig{IfaceVpc: make(map[string]gwtypes.VpcDiscriminant, len(ifaceVpc)), Mac: mac}
	for iface, vniStr := range ifaceVpc {
		vni, err := strconv.ParseUint(vniStr, 10, 32)
		if err != nil {
			return pipeline.IngressConfig{}, fmt.Errorf("--iface-vpc %s=%s: %w", iface, vniStr, err)
		}
		vpc, err := gwtypes.NewVni(uint32(vni))
		if err != nil {
			return pipeline.IngressConfig{}, fmt.Errorf("--iface-vpc %s=%s: %w", iface, vniStr, err)
		}
		out.IfaceVpc[iface] = vpc
	}
	return out, nil
}
