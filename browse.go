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
package opcua

import (
	"context"
	"log/slog"

	"github.com/edgeo-scada/opcua-async/ua"
)

// BrowseNodeResult holds every reference found for one browsed node, or
// the error that stopped its browse.
type BrowseNodeResult struct {
	NodeID     ua.NodeID
	References []ua.ReferenceDescription
	Err        error
}

// continuation is an outstanding continuation point and the index of the
// node it belongs to.
type continuation struct {
	point []byte
	index int
}

// BrowseAll browses nodes exhaustively. Nodes are browsed in rounds of at
// most the browse batch size; continuation points are followed with
// BrowseNext until the server has returned every reference. References
// of a node are merged in the order the server returned them.
//
// A node whose browse fails in any round gets an error in its own result
// and loses the references gathered for it so far. Other nodes are not
// affected. The call as a whole fails only if a request could not be
// carried out, in which case outstanding continuation points are
// released in the background.
func (c *Client) BrowseAll(ctx context.Context, nodes []ua.BrowseDescription) ([]BrowseNodeResult, error) {
	if len(nodes) == 0 {
		return nil, ErrEmptyRequest
	}
	results := make([]BrowseNodeResult, len(nodes))
	seen := make([]map[string]struct{}, len(nodes))
	for i, n := range nodes {
		results[i].NodeID = n.NodeID
	}

	size := c.opts.browseBatchSize
	for start := 0; start < len(nodes); start += size {
		end := min(start+size, len(nodes))
		c.logger.Debug("browse round",
			slog.Int("first", start),
			slog.Int("nodes", end-start))

		browsed, err := c.Browse(ctx, nodes[start:end])
		if err != nil {
			return nil, err
		}

		var pending []continuation
		for i, r := range browsed {
			pending = c.mergeBrowseResult(ua.ServiceBrowse, start+i, r, results, seen, pending)
		}

		for len(pending) > 0 {
			points := make([][]byte, len(pending))
			for i, p := range pending {
				points[i] = p.point
			}
			if err := ctx.Err(); err != nil {
				c.releaseContinuations(points)
				return nil, err
			}

			next, err := c.BrowseNext(ctx, false, points)
			if err != nil {
				c.releaseContinuations(points)
				return nil, err
			}

			outstanding := pending
			pending = nil
			for i, r := range next {
				pending = c.mergeBrowseResult(ua.ServiceBrowseNext, outstanding[i].index, r, results, seen, pending)
			}
		}
	}
	return results, nil
}

// mergeBrowseResult folds one Browse or BrowseNext result into the
// result of node idx and returns pending with the node's continuation
// point appended, if any.
func (c *Client) mergeBrowseResult(svc ua.ServiceID, idx int, r ua.BrowseResult, results []BrowseNodeResult, seen []map[string]struct{}, pending []continuation) []continuation {
	res := &results[idx]
	if r.StatusCode.IsBad() {
		if len(res.References) > 0 {
			c.logger.Debug("browse failed, discarding gathered references",
				slog.String("node_id", res.NodeID.String()),
				slog.Int("references", len(res.References)))
		}
		res.References = nil
		res.Err = NewServiceError(svc, r.StatusCode, res.NodeID.String())
		return pending
	}

	if seen[idx] == nil {
		seen[idx] = make(map[string]struct{})
	}
	for _, ref := range r.References {
		key := ref.ReferenceTypeID.String() + "|" + ref.NodeID.String()
		if _, dup := seen[idx][key]; dup {
			c.logger.Debug("duplicate reference",
				slog.String("node_id", res.NodeID.String()),
				slog.String("target", ref.NodeID.String()))
		}
		seen[idx][key] = struct{}{}
		res.References = append(res.References, ref)
	}

	if len(r.ContinuationPoint) > 0 {
		pending = append(pending, continuation{point: r.ContinuationPoint, index: idx})
	}
	return pending
}

func (c *Client) releaseContinuations(points [][]byte) {
	c.logger.Debug("releasing continuation points", slog.Int("count", len(points)))
	c.fireAndForget(&ua.BrowseNextRequest{
		ReleaseContinuationPoints: true,
		ContinuationPoints:        points,
	})
}

// TreeEntry is one reference found by BrowseTree.
type TreeEntry struct {
	Depth     int
	Parent    ua.NodeID
	Reference ua.ReferenceDescription
}

// BrowseTreeResult is the outcome of BrowseTree. Failures lists the nodes
// whose references could not be browsed.
type BrowseTreeResult struct {
	Entries  []TreeEntry
	Failures []BrowseNodeResult
}

// BrowseTree walks forward hierarchical references from root, level by
// level, down to depth levels. Each node is expanded once even if it is
// reachable through several paths.
func (c *Client) BrowseTree(ctx context.Context, root ua.NodeID, depth int) (*BrowseTreeResult, error) {
	out := &BrowseTreeResult{}
	visited := map[string]struct{}{root.String(): {}}
	level := []ua.NodeID{root}

	for d := 1; d <= depth && len(level) > 0; d++ {
		descs := make([]ua.BrowseDescription, len(level))
		for i, n := range level {
			descs[i] = NewBrowseDescription(n, ua.BrowseDirectionForward)
		}
		results, err := c.BrowseAll(ctx, descs)
		if err != nil {
			return out, err
		}

		var next []ua.NodeID
		for _, r := range results {
			if r.Err != nil {
				out.Failures = append(out.Failures, r)
				continue
			}
			for _, ref := range r.References {
				out.Entries = append(out.Entries, TreeEntry{Depth: d, Parent: r.NodeID, Reference: ref})
				key := ref.NodeID.String()
				if _, ok := visited[key]; ok {
					continue
				}
				visited[key] = struct{}{}
				next = append(next, ref.NodeID)
			}
		}
		level = next
	}
	return out, nil
}
