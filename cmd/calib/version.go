package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agencycal/calib/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)

			v, err := anonymousClient().GetVersion(context.Background())
			if err != nil {
				logrus.Debugf("server version unavailable: %v", err)
				return
			}
			if v.Version != version.Version {
				logrus.WithFields(logrus.Fields{
					"clientVersion": version.Version,
					"serverVersion": v.Version,
				}).Warn("version mismatch between client and server")
			}
		},
	}
}
