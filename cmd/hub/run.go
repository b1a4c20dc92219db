package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/farcasterxyz/hubcore/hub"
	"github.com/farcasterxyz/hubcore/rpc"
	"github.com/farcasterxyz/hubcore/service"
	"github.com/farcasterxyz/hubcore/version"
)

// NewRunCmd returns the command that starts a Hub node.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "run a hub node",
		PreRunE: loadConfig,
		RunE:    runHub,
	}
	AddRunFlags(cmd)
	return cmd
}

// AddRunFlags registers every flag mirrored by config.Config's
// mapstructure tags.
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", cliConfig.DataDir, "Top-level directory for data and configuration")
	cmd.Flags().String("log", cliConfig.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("nickname", cliConfig.Nickname, "Optional human-readable identity reported by GetInfo")

	cmd.Flags().StringP("listen", "l", cliConfig.BindAddr, "Listen IP:Port for peer sync RPCs")
	cmd.Flags().StringP("advertise", "a", cliConfig.AdvertiseAddr, "Advertise IP:Port, if different from --listen")
	cmd.Flags().Int("max-pool", cliConfig.MaxPool, "Connection pool size max per peer")
	cmd.Flags().DurationP("rpc-timeout", "t", cliConfig.RPCTimeout, "Timeout for a single sync RPC call")
	cmd.Flags().Duration("sync-interval", cliConfig.SyncInterval, "Interval between periodic diff-sync cycles")
	cmd.Flags().Int("shards", cliConfig.ShardCount, "Number of serial per-fid merge queues")
	cmd.Flags().String("network", cliConfig.Network, "mainnet, testnet, or devnet")
	cmd.Flags().StringSlice("peers", cliConfig.Peers, "Initial peer addresses for diff-sync")

	cmd.Flags().Bool("no-http", cliConfig.NoHTTP, "Disable the debug/status HTTP surface")
	cmd.Flags().StringP("http-listen", "s", cliConfig.HTTPAddr, "Listen IP:Port for the debug/status HTTP service")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := bindFlagsLoadViper(cmd); err != nil {
		return err
	}

	cliConfig.Logger().WithFields(logrus.Fields{
		"datadir":       cliConfig.DataDir,
		"log":           cliConfig.LogLevel,
		"listen":        cliConfig.BindAddr,
		"advertise":     cliConfig.AdvertiseAddr,
		"max-pool":      cliConfig.MaxPool,
		"rpc-timeout":   cliConfig.RPCTimeout,
		"sync-interval": cliConfig.SyncInterval,
		"shards":        cliConfig.ShardCount,
		"network":       cliConfig.Network,
		"nickname":      cliConfig.Nickname,
		"peers":         cliConfig.Peers,
		"no-http":       cliConfig.NoHTTP,
		"http-listen":   cliConfig.HTTPAddr,
	}).Debug("RUN")

	return nil
}

// bindFlagsLoadViper registers cmd's flags with viper, unmarshals them
// into cliConfig, then overlays a hub.toml/.json/.yaml config file from
// DataDir if one exists.
func bindFlagsLoadViper(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if err := viper.Unmarshal(cliConfig); err != nil {
		return err
	}

	viper.SetConfigName("hub")
	viper.AddConfigPath(cliConfig.DataDir)

	if err := viper.ReadInConfig(); err == nil {
		cliConfig.Logger().Debugf("using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		cliConfig.Logger().Debugf("no config file found in: %s", cliConfig.DataDir)
	} else {
		return err
	}

	return viper.Unmarshal(cliConfig)
}

func runHub(cmd *cobra.Command, args []string) error {
	logger := cliConfig.Logger()

	if err := os.MkdirAll(cliConfig.DataDir, 0o755); err != nil {
		logger.WithError(err).Error("cannot create data directory")
		return err
	}

	advertise := cliConfig.AdvertiseAddr
	if advertise == "" {
		advertise = cliConfig.BindAddr
	}
	transport, err := rpc.NewNetworkTransport(cliConfig.BindAddr, advertise, cliConfig.MaxPool, cliConfig.RPCTimeout, logger)
	if err != nil {
		logger.WithError(err).Error("cannot initialize network transport")
		return err
	}

	h, err := hub.New(logger.Logger, hub.Options{
		Version:      version.Version,
		Nickname:     cliConfig.Nickname,
		Network:      cliConfig.NetworkID(),
		StorePath:    cliConfig.BadgerDir(),
		ShardCount:   cliConfig.ShardCount,
		SyncInterval: cliConfig.SyncInterval,
		Transport:    transport,
		Peers:        cliConfig.Peers,
	})
	if err != nil {
		logger.WithError(err).Error("cannot initialize hub")
		return err
	}

	h.Start()

	var statusSrv *service.Service
	if !cliConfig.NoHTTP {
		statusSrv = service.NewService(cliConfig.HTTPAddr, h, logger)
		go statusSrv.Serve()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("hub: shutting down")
	if statusSrv != nil {
		_ = statusSrv.Stop()
	}
	return h.Stop()
}
