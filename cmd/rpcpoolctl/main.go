package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/arata-dev/rpcpool/pkg/rpcpool"
	"google.golang.org/grpc/health/grpc_health_v1"
)

var rootCmd = &cobra.Command{
	Use:     "rpcpoolctl",
	Short:   "rpcpoolctl - exercise a resilient RPC transport channel pool from the command line",
	Version: "0.1.0",
}

var probeCmd = &cobra.Command{
	Use:   "probe [host:port]",
	Short: "Call the standard health-check RPC against a peer through the pool's retry engine",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

var configPath string
var retries int
var timeout time.Duration

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVar(&configPath, "config", "", "path to a rpcpool config file (defaults to ./rpcpool.yaml if present)")
	probeCmd.Flags().IntVar(&retries, "retries", rpcpool.DefaultRetries, "additional attempts after the first failure")
	probeCmd.Flags().DurationVar(&timeout, "timeout", 0, "per-attempt timeout override (0 uses the pool's default)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := rpcpool.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool := rpcpool.New(cfg.ToOptions())

	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}

	var timeoutPtr *time.Duration
	if timeout > 0 {
		timeoutPtr = &timeout
	}

	perAttempt := cfg.GRPCTimeout + cfg.ConnectTimeout
	if timeout > 0 {
		perAttempt = timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), perAttempt*time.Duration(retries+1))
	defer cancel()

	status, err := rpcpool.WithChannelTimeout(ctx, pool, addr, checkHealth, timeoutPtr, retries)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}

	fmt.Printf("%s: %s\n", addr, status)
	stats := pool.Stats()
	fmt.Printf("requests=%d succeeded=%d failed=%d retries=%d\n",
		stats.RequestsTotal, stats.RequestsSucceeded, stats.RequestsFailed, stats.Retries)
	return nil
}

func checkHealth(ctx context.Context, ch rpcpool.Channel) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	resp, err := grpc_health_v1.NewHealthClient(ch.ClientConn()).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return 0, err
	}
	return resp.Status, nil
}

func parseAddress(hostport string) (rpcpool.Address, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return rpcpool.Address{}, fmt.Errorf("expected host:port, got %q: %w", hostport, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return rpcpool.Address{}, fmt.Errorf("invalid port in %q: %w", hostport, err)
	}
	return rpcpool.Address{Host: host, Port: port}, nil
}
