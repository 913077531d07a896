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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/opcua-async/ua"
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write a value to an OPC UA node",
	Long: `Write a value to an OPC UA node and read it back.

The simulated server lives for one invocation, so written values do not
persist between runs.

Examples:
  edgeo-opcua write -n "ns=2;s=Plant.Line1.Speed" --value 1500 -T int32
  edgeo-opcua write -n "ns=2;s=Plant.Line1.Temperature" --value 25.5 -T double`,
	RunE: runWrite,
}

var (
	writeNodeID string
	writeValue  string
	writeType   string
)

func init() {
	writeCmd.Flags().StringVarP(&writeNodeID, "node", "n", "", "Node ID to write to")
	writeCmd.Flags().StringVar(&writeValue, "value", "", "Value to write")
	writeCmd.Flags().StringVarP(&writeType, "type", "T", "auto", "Value type: auto, bool, int16, uint16, int32, uint32, int64, uint64, float, double, string")
	writeCmd.MarkFlagRequired("node")
	writeCmd.MarkFlagRequired("value")
}

func runWrite(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout())
	defer cancel()

	nodeID, err := ua.ParseNodeID(writeNodeID)
	if err != nil {
		return fmt.Errorf("invalid node ID: %w", err)
	}
	variant, err := parseValue(writeValue, writeType)
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}

	sess, err := connect(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.client.WriteValue(ctx, nodeID, variant); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	fmt.Printf("Successfully wrote value to %s\n", nodeID)
	fmt.Printf("  Value: %s\n", variant)
	fmt.Printf("  Type: %s\n", variant.Type)

	dv, err := sess.client.ReadValue(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("read back failed: %w", err)
	}
	fmt.Println("Read back:")
	printDataValue(*dv)

	return nil
}
