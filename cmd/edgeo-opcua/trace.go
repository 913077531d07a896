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
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/opcua-async/trace"
	"github.com/edgeo-scada/opcua-async/ua"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect protocol trace files",
}

var traceViewCmd = &cobra.Command{
	Use:   "view <file>",
	Short: "Print the events of a trace file",
	Long: `Print the events recorded with --trace.

Examples:
  edgeo-opcua trace view session.cbor
  edgeo-opcua trace view session.cbor -k DROPPED
  edgeo-opcua trace view session.cbor --subscription 1`,
	Args: cobra.ExactArgs(1),
	RunE: runTraceView,
}

var (
	traceKind         string
	traceSubscription uint32
	traceSince        time.Duration
)

func init() {
	traceViewCmd.Flags().StringVarP(&traceKind, "kind", "k", "", "Only show events of this kind (SUBMIT, COMPLETE, DROPPED, ...)")
	traceViewCmd.Flags().Uint32Var(&traceSubscription, "subscription", 0, "Only show events of this subscription")
	traceViewCmd.Flags().DurationVar(&traceSince, "since", 0, "Only show events newer than this")
	traceCmd.AddCommand(traceViewCmd)
}

func runTraceView(cmd *cobra.Command, args []string) error {
	filter := trace.Filter{SubscriptionID: traceSubscription}
	if traceKind != "" {
		kind, ok := trace.ParseKind(traceKind)
		if !ok {
			return fmt.Errorf("unknown event kind: %s", traceKind)
		}
		filter.Kind = &kind
	}
	if traceSince > 0 {
		start := time.Now().Add(-traceSince)
		filter.TimeStart = &start
	}

	r, err := trace.NewReader(args[0], filter)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer r.Close()

	count := 0
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to decode trace: %w", err)
		}
		count++
		fmt.Println(formatEvent(ev))
	}
	fmt.Printf("%d events\n", count)
	return nil
}

func formatEvent(ev trace.Event) string {
	line := fmt.Sprintf("%s %-13s", ev.Timestamp.Format("15:04:05.000000"), ev.Kind)
	if ev.Service != "" {
		line += " " + ev.Service
	}
	if ev.RequestID != 0 {
		line += fmt.Sprintf(" req=%d", ev.RequestID)
	}
	if ev.SubscriptionID != 0 {
		line += fmt.Sprintf(" sub=%d", ev.SubscriptionID)
	}
	if ev.ItemID != 0 {
		line += fmt.Sprintf(" item=%d", ev.ItemID)
	}
	if ev.Kind == trace.KindComplete {
		line += " status=" + ua.StatusCode(ev.Status).String()
	}
	if ev.Duration > 0 {
		line += " took=" + ev.Duration.String()
	}
	if ev.State != "" {
		line += " state=" + ev.State
	}
	if ev.Message != "" {
		line += " msg=" + fmt.Sprintf("%q", ev.Message)
	}
	return line
}
