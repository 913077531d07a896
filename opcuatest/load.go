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
package opcuatest

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edgeo-scada/opcua-async/ua"
)

// AddressSpace is the YAML description of nodes to add to a server.
//
//	nodes:
//	  - id: ns=2;s=Plant
//	    name: Plant
//	    class: Object
//	    eventNotifier: true
//	  - id: ns=2;s=Plant.Temperature
//	    parent: ns=2;s=Plant
//	    name: Temperature
//	    class: Variable
//	    type: Double
//	    value: 21.5
//	    writable: true
type AddressSpace struct {
	Nodes []NodeSpec `yaml:"nodes"`
}

// NodeSpec describes one node. Parent defaults to the Objects folder.
type NodeSpec struct {
	ID            string      `yaml:"id"`
	Parent        string      `yaml:"parent,omitempty"`
	Name          string      `yaml:"name"`
	Class         string      `yaml:"class,omitempty"`
	Type          string      `yaml:"type,omitempty"`
	Value         interface{} `yaml:"value,omitempty"`
	Writable      bool        `yaml:"writable,omitempty"`
	EventNotifier bool        `yaml:"eventNotifier,omitempty"`
}

// LoadError reports a malformed address space.
type LoadError struct {
	File    string
	Node    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString("opcuatest: ")
	if e.File != "" {
		b.WriteString(e.File + ": ")
	}
	if e.Node != "" {
		b.WriteString("node " + e.Node + ": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// LoadServer returns a new server populated from a YAML address space.
func LoadServer(r io.Reader) (*Server, error) {
	var space AddressSpace
	if err := yaml.NewDecoder(r).Decode(&space); err != nil && err != io.EOF {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	s := NewServer()
	if err := s.Load(&space); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadServerFile is LoadServer reading from a file.
func LoadServerFile(path string) (*Server, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	defer f.Close()

	s, err := LoadServer(f)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
		}
		return nil, err
	}
	return s, nil
}

// Load adds the nodes of space in order. A parent must be declared before
// its children.
func (s *Server) Load(space *AddressSpace) error {
	for _, spec := range space.Nodes {
		if err := s.loadNode(spec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) loadNode(spec NodeSpec) error {
	fail := func(msg string, cause error) error {
		return &LoadError{Node: spec.ID, Message: msg, Cause: cause}
	}

	id, err := ua.ParseNodeID(spec.ID)
	if err != nil {
		return fail("invalid id", err)
	}
	parent := ua.ObjectsFolder
	if spec.Parent != "" {
		if parent, err = ua.ParseNodeID(spec.Parent); err != nil {
			return fail("invalid parent", err)
		}
	}
	s.mu.Lock()
	_, parentKnown := s.nodes[parent.String()]
	_, exists := s.nodes[id.String()]
	s.mu.Unlock()
	if !parentKnown {
		return fail("unknown parent "+parent.String(), nil)
	}
	if exists {
		return fail("duplicate id", nil)
	}

	name := spec.Name
	if name == "" {
		name = spec.ID
	}

	class := ua.NodeClassObject
	if spec.Class != "" {
		var ok bool
		if class, ok = ua.ParseNodeClass(spec.Class); !ok {
			return fail("unknown class "+spec.Class, nil)
		}
	}

	switch class {
	case ua.NodeClassObject:
		if strings.EqualFold(spec.Type, "Folder") {
			s.AddFolder(parent, id, name)
		} else {
			s.AddObject(parent, id, name, spec.EventNotifier)
		}
	case ua.NodeClassVariable:
		v, err := variantOf(spec.Type, spec.Value)
		if err != nil {
			return fail("invalid value", err)
		}
		s.AddVariable(parent, id, name, v, spec.Writable)
	default:
		return fail("unsupported class "+class.String(), nil)
	}
	return nil
}

// variantOf converts a decoded YAML scalar to a variant of the named
// type. Without a type name the type is inferred from the value.
func variantOf(typeName string, value interface{}) (ua.Variant, error) {
	if typeName == "" {
		return ua.NewVariant(value)
	}
	switch strings.ToLower(typeName) {
	case "boolean", "bool":
		b, ok := value.(bool)
		if !ok {
			return ua.Variant{}, fmt.Errorf("%v is not a boolean", value)
		}
		return ua.NewVariant(b)
	case "int32":
		n, err := asInt(value)
		return ua.Variant{Type: ua.TypeInt32, Value: int32(n)}, err
	case "int64":
		n, err := asInt(value)
		return ua.Variant{Type: ua.TypeInt64, Value: n}, err
	case "uint32":
		n, err := asInt(value)
		if err == nil && n < 0 {
			err = fmt.Errorf("%d is negative", n)
		}
		return ua.Variant{Type: ua.TypeUInt32, Value: uint32(n)}, err
	case "float":
		f, err := asFloat(value)
		return ua.Variant{Type: ua.TypeFloat, Value: float32(f)}, err
	case "double":
		f, err := asFloat(value)
		return ua.Variant{Type: ua.TypeDouble, Value: f}, err
	case "string":
		return ua.Variant{Type: ua.TypeString, Value: fmt.Sprint(value)}, nil
	default:
		return ua.Variant{}, fmt.Errorf("unsupported type %q", typeName)
	}
}

func asInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("%v is not an integer", v)
	}
}

func asFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("%v is not a number", v)
	}
}
