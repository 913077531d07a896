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
	"strings"

	"github.com/spf13/cobra"

	opcua "github.com/edgeo-scada/opcua-async"
	"github.com/edgeo-scada/opcua-async/ua"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the OPC UA address space",
	Long: `Browse nodes in the address space, following continuation points
until every reference has been collected.

Examples:
  edgeo-opcua browse
  edgeo-opcua browse -n "ns=2;s=Plant" -d 3
  edgeo-opcua browse -n "i=84" -d 2 --page-size 2`,
	RunE: runBrowse,
}

var (
	browseNodeID   string
	browseDepth    int
	browsePageSize int
)

func init() {
	browseCmd.Flags().StringVarP(&browseNodeID, "node", "n", ua.ObjectsFolder.String(), "Node ID to start browsing from")
	browseCmd.Flags().IntVarP(&browseDepth, "depth", "d", 1, "Number of levels to browse")
	browseCmd.Flags().IntVar(&browsePageSize, "page-size", 0, "Simulated server page size (0 disables paging)")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout())
	defer cancel()

	root, err := ua.ParseNodeID(browseNodeID)
	if err != nil {
		return fmt.Errorf("invalid node ID: %w", err)
	}
	if browseDepth < 1 {
		return fmt.Errorf("depth must be at least 1")
	}

	sess, err := connect(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	sess.server.SetPageSize(browsePageSize)

	tree, err := sess.client.BrowseTree(ctx, root, browseDepth)
	if err != nil {
		return fmt.Errorf("browse failed: %w", err)
	}

	fmt.Printf("%s\n", root)
	printTree(root, tree.Entries, 1)

	for _, f := range tree.Failures {
		fmt.Printf("failed: %s: %v\n", f.NodeID, f.Err)
	}
	return nil
}

// printTree prints the children of parent found at depth, recursively.
func printTree(parent ua.NodeID, entries []opcua.TreeEntry, depth int) {
	for _, e := range entries {
		if e.Depth != depth || !e.Parent.Equal(parent) {
			continue
		}
		ref := e.Reference
		fmt.Printf("%s%s (%s) [%s]\n",
			strings.Repeat("  ", depth), ref.DisplayName.Text, ref.NodeID, ref.NodeClass)
		printTree(ref.NodeID, entries, depth+1)
	}
}
