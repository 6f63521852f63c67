/*
 * stream-share is a project to efficiently share the use of an IPTV service.
 * Copyright (C) 2025  Lucas Duport
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Command gatewayd is the gateway's entry point: it bootstraps the Catalog
// Store, wires it into the Session Registry and httpapi gin engine, and
// exposes one-shot ingestion subcommands for m3u and Xtream Codes sources.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lucasduport/iptv-gateway/internal/catalogstore"
	"github.com/lucasduport/iptv-gateway/internal/httpapi"
	"github.com/lucasduport/iptv-gateway/internal/ingest/m3uingest"
	"github.com/lucasduport/iptv-gateway/internal/ingest/xtreamingest"
	"github.com/lucasduport/iptv-gateway/internal/logging"
)

var cfgFile string

func dbConfigFromViper() catalogstore.Config {
	return catalogstore.Config{
		Host:     viper.GetString("db-host"),
		Port:     viper.GetString("db-port"),
		Name:     viper.GetString("db-name"),
		User:     viper.GetString("db-user"),
		Password: viper.GetString("db-password"),
	}
}

var rootCmd = &cobra.Command{
	Use:   "gatewayd",
	Short: "IPTV gateway: live-stream session sharing, variant failover, and admission control",
	Long: `gatewayd is an IPTV gateway sitting between upstream M3U/Xtream
providers and downstream IPTV clients. It shares one upstream connection per
logical channel across every attached client, pre-buffers new sessions to a
clean MPEG-TS sync point, bridges late joiners from a rolling buffer, and
fails over across source variants before any byte reaches a client.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Info("gatewayd: starting up")

		store, err := catalogstore.Open(dbConfigFromViper())
		if err != nil {
			return fmt.Errorf("gatewayd: open catalog store: %w", err)
		}
		defer store.Close()

		server := httpapi.NewServer(store, viper.GetInt("port"))
		return server.Run()
	},
}

var ingestM3UCmd = &cobra.Command{
	Use:   "ingest-m3u SOURCE_ID PLAYLIST_URL",
	Short: "Parse an m3u-kind Source's playlist and upsert its channels into the Catalog Store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := catalogstore.Open(dbConfigFromViper())
		if err != nil {
			return fmt.Errorf("gatewayd: open catalog store: %w", err)
		}
		defer store.Close()

		sourceID, err := parseSourceID(args[0])
		if err != nil {
			return err
		}
		count, err := m3uingest.Run(store, sourceID, args[1])
		if err != nil {
			return err
		}
		logging.Info("gatewayd: ingest-m3u: %d channels ingested for source %d", count, sourceID)
		return nil
	},
}

var ingestXtreamCmd = &cobra.Command{
	Use:   "ingest-xtream SOURCE_ID BASE_URL USERNAME PASSWORD",
	Short: "Pull an xtream-kind Source's live streams and upsert its channels into the Catalog Store",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := catalogstore.Open(dbConfigFromViper())
		if err != nil {
			return fmt.Errorf("gatewayd: open catalog store: %w", err)
		}
		defer store.Close()

		sourceID, err := parseSourceID(args[0])
		if err != nil {
			return err
		}
		count, err := xtreamingest.Run(context.Background(), store, sourceID, args[1], args[2], args[3])
		if err != nil {
			return err
		}
		logging.Info("gatewayd: ingest-xtream: %d channels ingested for source %d", count, sourceID)
		return nil
	},
}

func parseSourceID(raw string) (int, error) {
	var id int
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil {
		return 0, fmt.Errorf("gatewayd: invalid source id %q: %w", raw, err)
	}
	return id, nil
}

func main() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(ingestM3UCmd, ingestXtreamCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.gatewayd.yaml)")

	rootCmd.Flags().Int("port", 8080, "Downstream HTTP listening port")
	rootCmd.PersistentFlags().String("db-host", "localhost", "Catalog Store Postgres host")
	rootCmd.PersistentFlags().String("db-port", "5432", "Catalog Store Postgres port")
	rootCmd.PersistentFlags().String("db-name", "gateway", "Catalog Store Postgres database name")
	rootCmd.PersistentFlags().String("db-user", "gateway", "Catalog Store Postgres user")
	rootCmd.PersistentFlags().String("db-password", "", "Catalog Store Postgres password")

	if err := viper.BindPFlags(rootCmd.Flags()); err != nil {
		logging.Error("gatewayd: binding flags to viper: %v", err)
		os.Exit(1)
	}
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		logging.Error("gatewayd: binding persistent flags to viper: %v", err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".gatewayd")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}
