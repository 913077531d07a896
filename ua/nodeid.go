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

package ua

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidNodeID is returned by ParseNodeID for malformed input.
var ErrInvalidNodeID = errors.New("ua: invalid node ID")

// ParseNodeID parses the textual NodeID forms "ns=2;i=1", "ns=2;s=Tag",
// "g=<uuid>", "b=<hex>". Without a type prefix a numeric identifier is
// assumed if it parses, a string identifier otherwise.
func ParseNodeID(s string) (NodeID, error) {
	ns := uint16(0)
	identifier := s

	if strings.HasPrefix(s, "ns=") {
		parts := strings.SplitN(s, ";", 2)
		if len(parts) != 2 {
			return NodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
		}
		nsVal, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "ns="), 10, 16)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: namespace in %q", ErrInvalidNodeID, s)
		}
		ns = uint16(nsVal)
		identifier = parts[1]
	}

	switch {
	case strings.HasPrefix(identifier, "i="):
		id, err := strconv.ParseUint(identifier[2:], 10, 32)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: numeric id in %q", ErrInvalidNodeID, s)
		}
		return NewNumericNodeID(ns, uint32(id)), nil
	case strings.HasPrefix(identifier, "s="):
		return NewStringNodeID(ns, identifier[2:]), nil
	case strings.HasPrefix(identifier, "g="):
		id, err := uuid.Parse(identifier[2:])
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: guid in %q", ErrInvalidNodeID, s)
		}
		return NewGUIDNodeID(ns, id), nil
	case strings.HasPrefix(identifier, "b="):
		b, err := hex.DecodeString(identifier[2:])
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: opaque id in %q", ErrInvalidNodeID, s)
		}
		return NewOpaqueNodeID(ns, b), nil
	}

	if identifier == "" {
		return NodeID{}, fmt.Errorf("%w: empty identifier", ErrInvalidNodeID)
	}
	if id, err := strconv.ParseUint(identifier, 10, 32); err == nil {
		return NewNumericNodeID(ns, uint32(id)), nil
	}
	return NewStringNodeID(ns, identifier), nil
}

// MustParseNodeID is like ParseNodeID but panics on error.
func MustParseNodeID(s string) NodeID {
	n, err := ParseNodeID(s)
	if err != nil {
		panic(err)
	}
	return n
}

// String formats the NodeID in the form accepted by ParseNodeID.
func (n NodeID) String() string {
	var id string
	switch n.Type {
	case NodeIDTypeNumeric:
		id = fmt.Sprintf("i=%d", n.Numeric)
	case NodeIDTypeString:
		id = "s=" + n.StringID
	case NodeIDTypeGUID:
		id = "g=" + n.GUID.String()
	case NodeIDTypeOpaque:
		id = "b=" + hex.EncodeToString(n.Opaque)
	default:
		return fmt.Sprintf("<unknown type %d>", n.Type)
	}
	if n.Namespace == 0 {
		return id
	}
	return fmt.Sprintf("ns=%d;%s", n.Namespace, id)
}

// Equal reports whether two NodeIDs identify the same node.
func (n NodeID) Equal(o NodeID) bool {
	return n.String() == o.String()
}

// MarshalText implements encoding.TextMarshaler.
func (n NodeID) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NodeID) UnmarshalText(b []byte) error {
	parsed, err := ParseNodeID(string(b))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
