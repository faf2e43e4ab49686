// Package config loads workflow graph manifests from YAML: an open-read-unmarshal-validate
// pipeline producing an engine.GraphConfig.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coachpo/streamflow/core/engine"
)

// Manifest is the on-disk YAML shape of a workflow graph.
type Manifest struct {
	Name            string           `yaml:"name"`
	ContinueOnError bool             `yaml:"continue_on_error"`
	Nodes           []NodeSpec       `yaml:"nodes"`
	Connections     []ConnectionSpec `yaml:"connections"`
}

// NodeSpec declares one node instance.
type NodeSpec struct {
	ID     string         `yaml:"id"`
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
}

// ConnectionSpec declares one edge between two node ports, written "node.port" on each side.
type ConnectionSpec struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// Load reads and validates a workflow manifest from path.
func Load(path string) (Manifest, error) {
	reader, closer, err := open(path)
	if err != nil {
		return Manifest{}, err
	}
	defer closer()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Manifest{}, fmt.Errorf("read workflow manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal workflow manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate performs structural validation independent of node-type registration, which the
// engine itself enforces at LoadConfig time.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("workflow manifest requires a name")
	}
	if len(m.Nodes) == 0 {
		return fmt.Errorf("workflow manifest requires at least one node")
	}
	for i, n := range m.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			return fmt.Errorf("nodes[%d]: id required", i)
		}
		if strings.TrimSpace(n.Type) == "" {
			return fmt.Errorf("nodes[%d]: type required", i)
		}
	}
	for i, c := range m.Connections {
		if !strings.Contains(c.Source, ".") {
			return fmt.Errorf("connections[%d]: source %q must be \"node.port\"", i, c.Source)
		}
		if !strings.Contains(c.Target, ".") {
			return fmt.Errorf("connections[%d]: target %q must be \"node.port\"", i, c.Target)
		}
	}
	return nil
}

// ToGraphConfig converts the manifest into the engine's GraphConfig.
func (m Manifest) ToGraphConfig() (engine.GraphConfig, error) {
	cfg := engine.GraphConfig{
		Name:            m.Name,
		ContinueOnError: m.ContinueOnError,
		Nodes:           make([]engine.NodeConfig, len(m.Nodes)),
	}
	for i, n := range m.Nodes {
		cfg.Nodes[i] = engine.NodeConfig{ID: n.ID, Type: n.Type, Config: n.Config}
	}
	for i, c := range m.Connections {
		srcNode, srcPort, err := splitPort(c.Source)
		if err != nil {
			return engine.GraphConfig{}, fmt.Errorf("connections[%d]: %w", i, err)
		}
		dstNode, dstPort, err := splitPort(c.Target)
		if err != nil {
			return engine.GraphConfig{}, fmt.Errorf("connections[%d]: %w", i, err)
		}
		cfg.Connections = append(cfg.Connections, engine.ConnectionConfig{
			SourceNode: srcNode, SourcePort: srcPort,
			TargetNode: dstNode, TargetPort: dstPort,
		})
	}
	return cfg, nil
}

func splitPort(ref string) (node, port string, err error) {
	idx := strings.LastIndex(ref, ".")
	if idx <= 0 || idx == len(ref)-1 {
		return "", "", fmt.Errorf("malformed port reference %q", ref)
	}
	return ref[:idx], ref[idx+1:], nil
}

func open(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	if candidate == "" {
		candidate = "config/workflow.yaml"
	}
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path supplied by the operator invoking the CLI.
	if err != nil {
		return nil, nil, fmt.Errorf("open workflow manifest: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
