package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agencycal/calib/pkg/server"
	"github.com/agencycal/calib/pkg/version"
)

// NewServeCommand .
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the calib server in the foreground",
		GroupID: gServer,
		Long: `Run the calib server in the foreground.

The server reads its configuration from --config. Send SIGHUP to reload it.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
				"config":  configPath,
			}).Info("calib server starting")
			return server.Run(configPath)
		},
	}
}
