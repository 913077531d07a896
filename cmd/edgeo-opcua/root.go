// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	opcua "github.com/edgeo-scada/opcua-async"
)

var (
	cfgFile       string
	spaceFile     string
	timeout       int
	pollInterval  time.Duration
	queueCapacity int
	overflow      string
	traceFile     string
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "edgeo-opcua",
	Short: "OPC UA async client developer tool",
	Long: `A command line tool that drives the asynchronous OPC UA client runtime
against a simulated server whose address space is described in YAML.

Examples:
  edgeo-opcua browse -n "ns=2;s=Plant" -d 2
  edgeo-opcua read -n "ns=2;s=Plant.Line1.Temperature"
  edgeo-opcua --space plant.yaml subscribe -n "ns=2;s=Plant.Line1.Speed" --simulate 500ms
  edgeo-opcua --trace session.cbor read -n "ns=2;s=Plant.Line1.Speed"
  edgeo-opcua trace view session.cbor`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&spaceFile, "space", "", "Address space file (YAML); built-in plant if empty")
	rootCmd.PersistentFlags().IntVarP(&timeout, "timeout", "t", 5000, "Operation timeout in milliseconds")
	rootCmd.PersistentFlags().DurationVar(&pollInterval, "poll-interval", opcua.DefaultPollInterval, "Poll loop interval")
	rootCmd.PersistentFlags().IntVar(&queueCapacity, "queue-capacity", opcua.DefaultQueueCapacity, "Notification queue capacity per monitored item")
	rootCmd.PersistentFlags().StringVar(&overflow, "overflow", opcua.DropNewest.String(), "Overflow policy (drop-newest, drop-oldest)")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "Write a CBOR protocol trace to this file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	for _, name := range []string{"space", "timeout", "poll-interval", "queue-capacity", "overflow", "trace", "verbose"} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}
	viper.SetEnvPrefix("OPCUA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
