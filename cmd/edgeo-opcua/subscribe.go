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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	opcua "github.com/edgeo-scada/opcua-async"
	"github.com/edgeo-scada/opcua-async/engine"
	"github.com/edgeo-scada/opcua-async/opcuatest"
	"github.com/edgeo-scada/opcua-async/ua"
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Subscribe to data changes and events",
	Long: `Subscribe to data changes on variables and events on objects, and
print notifications as they are delivered.

With --simulate the simulated server changes the subscribed values and
emits events at the given period.

Examples:
  edgeo-opcua subscribe -n "ns=2;s=Plant.Line1.Speed" --simulate 500ms
  edgeo-opcua subscribe -n "ns=2;s=Plant.Line1.Temperature" -e "ns=2;s=Plant" --simulate 1s -c 10
  edgeo-opcua --queue-capacity 1 --overflow drop-oldest subscribe -n "ns=2;s=Plant.Line2.Count" --simulate 10ms`,
	RunE: runSubscribe,
}

var (
	subscribeNodeIDs  []string
	subscribeEventIDs []string
	publishInterval   float64
	sampleInterval    float64
	simulatePeriod    time.Duration
	notificationLimit int64
)

func init() {
	subscribeCmd.Flags().StringArrayVarP(&subscribeNodeIDs, "node", "n", nil, "Variable node ID(s) to monitor (can specify multiple)")
	subscribeCmd.Flags().StringArrayVarP(&subscribeEventIDs, "events", "e", nil, "Event notifier node ID(s) to monitor (can specify multiple)")
	subscribeCmd.Flags().Float64VarP(&publishInterval, "interval", "i", 1000, "Publishing interval in milliseconds")
	subscribeCmd.Flags().Float64Var(&sampleInterval, "sample", 250, "Sampling interval in milliseconds")
	subscribeCmd.Flags().DurationVar(&simulatePeriod, "simulate", 0, "Change subscribed values on the simulated server at this period")
	subscribeCmd.Flags().Int64VarP(&notificationLimit, "count", "c", 0, "Stop after this many notifications (0 runs until interrupted)")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	if len(subscribeNodeIDs) == 0 && len(subscribeEventIDs) == 0 {
		return errors.New("at least one --node or --events is required")
	}
	dataIDs, err := parseNodeIDs(subscribeNodeIDs)
	if err != nil {
		return err
	}
	eventIDs, err := parseNodeIDs(subscribeEventIDs)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nReceived interrupt, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	sess, err := connect(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	client := sess.client

	setupCtx, setupCancel := context.WithTimeout(ctx, operationTimeout())
	defer setupCancel()

	sub, err := client.CreateSubscription(setupCtx, opcua.WithPublishingInterval(publishInterval))
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	defer sub.Close()

	fmt.Printf("Subscription created (ID: %d, Interval: %.0fms)\n", sub.ID, sub.RevisedPublishingInterval)

	var items []*opcua.MonitoredItem
	collect := func(ids []ua.NodeID, results []opcua.MonitoredItemResult) {
		for i, r := range results {
			if r.Err != nil {
				fmt.Printf("  %s: %v\n", ids[i], r.Err)
				continue
			}
			fmt.Printf("  [%d] %s (%s, ID: %d, Interval: %.0fms)\n",
				len(items)+1, ids[i], r.Item.Kind, r.Item.ID, r.Item.RevisedSamplingInterval)
			items = append(items, r.Item)
		}
	}

	fmt.Println("Monitoring:")
	if len(dataIDs) > 0 {
		results, err := sub.CreateMonitoredItems(setupCtx, dataIDs, opcua.WithSamplingInterval(sampleInterval))
		if err != nil {
			return fmt.Errorf("failed to create monitored items: %w", err)
		}
		collect(dataIDs, results)
	}
	if len(eventIDs) > 0 {
		results, err := sub.CreateMonitoredItems(setupCtx, eventIDs, opcua.WithAttribute(ua.AttributeEventNotifier))
		if err != nil {
			return fmt.Errorf("failed to create event items: %w", err)
		}
		collect(eventIDs, results)
	}
	if len(items) == 0 {
		return errors.New("no monitored item could be created")
	}
	fmt.Println("\nWaiting for notifications (Ctrl+C to stop)...")
	fmt.Println()

	g, gctx := errgroup.WithContext(ctx)
	var received atomic.Int64
	for _, item := range items {
		g.Go(func() error {
			return printNotifications(gctx, item, &received, cancel)
		})
	}
	if simulatePeriod > 0 {
		g.Go(func() error {
			simulate(gctx, sess, dataIDs, eventIDs)
			return nil
		})
	}

	err = g.Wait()
	for _, item := range items {
		if n := item.Dropped(); n > 0 {
			fmt.Printf("%s: %d notifications dropped\n", item.NodeID, n)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printNotifications(ctx context.Context, item *opcua.MonitoredItem, received *atomic.Int64, stop context.CancelFunc) error {
	for {
		n, err := item.Next(ctx)
		if errors.Is(err, opcua.ErrItemClosed) {
			fmt.Printf("%s: monitored item closed\n", item.NodeID)
			return nil
		}
		if err != nil {
			return err
		}

		ts := time.Now().Format("15:04:05.000")
		if n.Kind == engine.KindEvent {
			fmt.Printf("[%s] %s event %v\n", ts, item.NodeID, n.Fields)
		} else {
			fmt.Printf("[%s] %s = %v\n", ts, item.NodeID, n.Value.Interface())
		}

		if notificationLimit > 0 && received.Add(1) >= notificationLimit {
			stop()
			return nil
		}
	}
}

// simulate drives value changes and events on the simulated server.
func simulate(ctx context.Context, sess *session, dataIDs, eventIDs []ua.NodeID) {
	ticker := time.NewTicker(simulatePeriod)
	defer ticker.Stop()

	var seq uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		seq++
		for _, id := range dataIDs {
			dv, err := sess.client.ReadValue(ctx, id)
			if err != nil || dv.Value == nil {
				continue
			}
			if next, ok := bump(*dv.Value); ok {
				sess.server.SetValue(id, next)
			}
		}
		for _, id := range eventIDs {
			emitEvent(sess.server, id, seq)
		}
	}
}

func emitEvent(srv *opcuatest.Server, source ua.NodeID, seq uint32) {
	srv.EmitEvent(source,
		ua.MustVariant(fmt.Sprintf("simulated event %d", seq)),
		ua.MustVariant(uint16(100+seq%900)),
	)
}
