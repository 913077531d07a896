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
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	opcua "github.com/edgeo-scada/opcua-async"
	"github.com/edgeo-scada/opcua-async/opcuatest"
	"github.com/edgeo-scada/opcua-async/trace"
	"github.com/edgeo-scada/opcua-async/ua"
)

//go:embed space.yaml
var builtinSpace []byte

const simulatedEndpoint = "opc.tcp://simulated:4840"

// session bundles a connected client with the simulated server behind it.
type session struct {
	client *opcua.Client
	server *opcuatest.Server
	closer func()
}

func (s *session) Close() {
	s.closer()
}

// loadServer builds the simulated server from --space or the built-in
// address space.
func loadServer() (*opcuatest.Server, error) {
	if path := viper.GetString("space"); path != "" {
		return opcuatest.LoadServerFile(path)
	}
	return opcuatest.LoadServer(bytes.NewReader(builtinSpace))
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildClientOptions creates client options from flags, environment and
// config file.
func buildClientOptions(srv *opcuatest.Server, logger *slog.Logger) ([]opcua.Option, func(), error) {
	policy, ok := opcua.ParseOverflowPolicy(viper.GetString("overflow"))
	if !ok {
		return nil, nil, fmt.Errorf("unknown overflow policy: %s", viper.GetString("overflow"))
	}

	opts := []opcua.Option{
		opcua.WithDialer(srv.Dial),
		opcua.WithPollInterval(viper.GetDuration("poll-interval")),
		opcua.WithQueueCapacity(viper.GetInt("queue-capacity")),
		opcua.WithOverflowPolicy(policy),
		opcua.WithTimeoutHint(operationTimeout()),
		opcua.WithLogger(logger),
	}

	closeTrace := func() {}
	if path := viper.GetString("trace"); path != "" {
		fl, err := trace.NewFileLogger(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open trace file: %w", err)
		}
		var tracer trace.Logger = fl
		if viper.GetBool("verbose") {
			tracer = trace.NewMultiLogger(fl, trace.NewSlogAdapter(logger))
		}
		opts = append(opts, opcua.WithTracer(tracer))
		closeTrace = func() { fl.Close() }
	}
	return opts, closeTrace, nil
}

// connect starts a simulated server and dials it.
func connect(ctx context.Context) (*session, error) {
	srv, err := loadServer()
	if err != nil {
		return nil, fmt.Errorf("failed to load address space: %w", err)
	}

	logger := newLogger()
	opts, closeTrace, err := buildClientOptions(srv, logger)
	if err != nil {
		return nil, err
	}

	client, err := opcua.Dial(ctx, simulatedEndpoint, opts...)
	if err != nil {
		closeTrace()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &session{
		client: client,
		server: srv,
		closer: func() {
			dctx, cancel := context.WithTimeout(context.Background(), operationTimeout())
			defer cancel()
			if err := client.Disconnect(dctx); err != nil && !opcua.IsDisconnected(err) {
				logger.Warn("disconnect", slog.String("error", err.Error()))
			}
			closeTrace()
		},
	}, nil
}

func operationTimeout() time.Duration {
	return time.Duration(viper.GetInt("timeout")) * time.Millisecond
}

func parseNodeIDs(ids []string) ([]ua.NodeID, error) {
	out := make([]ua.NodeID, len(ids))
	for i, s := range ids {
		n, err := ua.ParseNodeID(s)
		if err != nil {
			return nil, fmt.Errorf("invalid node ID %q: %w", s, err)
		}
		out[i] = n
	}
	return out, nil
}

// parseAttributeID matches attribute names case-insensitively.
func parseAttributeID(name string) (ua.AttributeID, error) {
	for id := ua.AttributeNodeID; id <= ua.AttributeUserExecutable; id++ {
		if strings.EqualFold(id.String(), name) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown attribute: %s", name)
}

func parseValue(value, typeName string) (ua.Variant, error) {
	typeName = strings.ToLower(typeName)

	// Auto-detect type if not specified
	if typeName == "auto" {
		typeName = detectType(value)
	}

	switch typeName {
	case "bool", "boolean":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return ua.Variant{}, err
		}
		return ua.Variant{Type: ua.TypeBoolean, Value: v}, nil

	case "int16":
		v, err := strconv.ParseInt(value, 10, 16)
		if err != nil {
			return ua.Variant{}, err
		}
		return ua.Variant{Type: ua.TypeInt16, Value: int16(v)}, nil

	case "uint16":
		v, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return ua.Variant{}, err
		}
		return ua.Variant{Type: ua.TypeUInt16, Value: uint16(v)}, nil

	case "int32", "int":
		v, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return ua.Variant{}, err
		}
		return ua.Variant{Type: ua.TypeInt32, Value: int32(v)}, nil

	case "uint32", "uint":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return ua.Variant{}, err
		}
		return ua.Variant{Type: ua.TypeUInt32, Value: uint32(v)}, nil

	case "int64":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return ua.Variant{}, err
		}
		return ua.Variant{Type: ua.TypeInt64, Value: v}, nil

	case "uint64":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return ua.Variant{}, err
		}
		return ua.Variant{Type: ua.TypeUInt64, Value: v}, nil

	case "float", "float32":
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return ua.Variant{}, err
		}
		return ua.Variant{Type: ua.TypeFloat, Value: float32(v)}, nil

	case "double", "float64":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return ua.Variant{}, err
		}
		return ua.Variant{Type: ua.TypeDouble, Value: v}, nil

	case "string":
		return ua.Variant{Type: ua.TypeString, Value: value}, nil

	default:
		return ua.Variant{}, fmt.Errorf("unknown type: %s", typeName)
	}
}

func detectType(value string) string {
	if value == "true" || value == "false" {
		return "bool"
	}
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return "int64"
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return "double"
	}
	return "string"
}

// bump returns v moved one step, for the subscribe simulator.
func bump(v ua.Variant) (ua.Variant, bool) {
	switch x := v.Value.(type) {
	case bool:
		return ua.Variant{Type: v.Type, Value: !x}, true
	case int32:
		return ua.Variant{Type: v.Type, Value: x + 1}, true
	case uint32:
		return ua.Variant{Type: v.Type, Value: x + 1}, true
	case int64:
		return ua.Variant{Type: v.Type, Value: x + 1}, true
	case float32:
		return ua.Variant{Type: v.Type, Value: x + 0.1}, true
	case float64:
		return ua.Variant{Type: v.Type, Value: x + 0.5}, true
	}
	return v, false
}

func printDataValue(dv ua.DataValue) {
	if dv.StatusCode.IsBad() {
		fmt.Printf("  Status: %s\n", dv.StatusCode)
		return
	}
	if dv.Value != nil {
		fmt.Printf("  Value: %s\n", dv.Value)
		fmt.Printf("  Type: %s\n", dv.Value.Type)
	} else {
		fmt.Printf("  Value: <null>\n")
	}
	if !dv.SourceTimestamp.IsZero() {
		fmt.Printf("  SourceTimestamp: %s\n", dv.SourceTimestamp.Format(time.RFC3339Nano))
	}
	if !dv.ServerTimestamp.IsZero() {
		fmt.Printf("  ServerTimestamp: %s\n", dv.ServerTimestamp.Format(time.RFC3339Nano))
	}
	fmt.Printf("  Status: %s\n", dv.StatusCode)
}
