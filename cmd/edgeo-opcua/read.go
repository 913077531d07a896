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

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read values from OPC UA nodes",
	Long: `Read attribute values from OPC UA nodes. Large node lists are split
into concurrent batches.

Examples:
  edgeo-opcua read -n "ns=2;s=Plant.Line1.Temperature"
  edgeo-opcua read -n "ns=2;s=Plant.Line1.Speed" -a DisplayName
  edgeo-opcua read -n "ns=2;s=Plant.Line1.Speed" -n "ns=2;s=Plant.Line1.Running"`,
	RunE: runRead,
}

var (
	readNodeIDs   []string
	readAttribute string
)

func init() {
	readCmd.Flags().StringArrayVarP(&readNodeIDs, "node", "n", nil, "Node ID(s) to read (can specify multiple)")
	readCmd.Flags().StringVarP(&readAttribute, "attribute", "a", "Value", "Attribute to read: NodeId, NodeClass, BrowseName, DisplayName, Value, etc.")
	readCmd.MarkFlagRequired("node")
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout())
	defer cancel()

	attrID, err := parseAttributeID(readAttribute)
	if err != nil {
		return err
	}
	nodeIDs, err := parseNodeIDs(readNodeIDs)
	if err != nil {
		return err
	}

	sess, err := connect(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	nodesToRead := make([]ua.ReadValueID, len(nodeIDs))
	for i, id := range nodeIDs {
		nodesToRead[i] = ua.ReadValueID{NodeID: id, AttributeID: attrID}
	}

	results, err := sess.client.ReadMany(ctx, nodesToRead)
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}

	for i, result := range results {
		fmt.Printf("Node: %s\n", nodeIDs[i])
		fmt.Printf("  Attribute: %s\n", attrID)
		printDataValue(result)
		fmt.Println()
	}

	return nil
}
