package descriptor

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fedreduce/internal/datasite"
)

// Ext is the descriptor file extension.
const Ext = ".yaml"

// ErrNoDescriptor is returned by Find when a folder holds no descriptor.
var ErrNoDescriptor = errors.New("no descriptor found")

// Load reads, schema-checks, decodes and validates a descriptor file.
// Identities are normalised.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load descriptor: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) && ce.Path == "" {
			ce.Path = path
		}
		return nil, err
	}
	return p, nil
}

// Parse decodes and validates descriptor YAML.
func Parse(data []byte) (*Project, error) {
	if err := CheckSchema(data); err != nil {
		return nil, err
	}
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, &ConfigError{Message: err.Error()}
	}
	p.Author = datasite.Normalize(p.Author)
	for i, id := range p.Workflow.Datasites {
		p.Workflow.Datasites[i] = datasite.Normalize(id)
	}
	for i := range p.Steps {
		if p.Steps[i].Run != "" {
			p.Steps[i].Run = datasite.Normalize(p.Steps[i].Run)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Find returns the descriptor inside a project folder: <folder>.yaml when
// present, otherwise the lexically first *.yaml anywhere below dir.
func Find(dir string) (string, error) {
	preferred := filepath.Join(dir, filepath.Base(dir)+Ext)
	if info, err := os.Stat(preferred); err == nil && !info.IsDir() {
		return preferred, nil
	}

	var found []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), Ext) {
			found = append(found, p)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w in %s", ErrNoDescriptor, dir)
		}
		return "", fmt.Errorf("find descriptor in %s: %w", dir, err)
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoDescriptor, dir)
	}
	sort.Strings(found)
	return found[0], nil
}

// MergeDatasites adds ids to workflow.datasites of the descriptor at path.
// The resulting list is the sorted set union. The file is rewritten by
// editing the YAML tree, so unrelated keys and comments are kept.
// It returns the merged list.
func MergeDatasites(path string, ids []string) ([]string, error) {
	doc, err := readNode(path)
	if err != nil {
		return nil, err
	}
	root := doc.Content[0]

	workflow := mappingValue(root, "workflow")
	if workflow == nil || workflow.Kind != yaml.MappingNode {
		workflow = &yaml.Node{Kind: yaml.MappingNode}
		setMappingValue(root, "workflow", workflow)
	}

	var existing []string
	if list := mappingValue(workflow, "datasites"); list != nil {
		if err := list.Decode(&existing); err != nil {
			return nil, &ConfigError{Path: path, Field: "workflow.datasites", Message: err.Error()}
		}
	}
	merged := datasite.Dedupe(existing, ids)

	list := &yaml.Node{Kind: yaml.SequenceNode}
	for _, id := range merged {
		list.Content = append(list.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: id})
	}
	setMappingValue(workflow, "datasites", list)

	if err := writeNode(path, doc); err != nil {
		return nil, err
	}
	return merged, nil
}

// SetFields sets top-level scalar string fields of the descriptor at path.
func SetFields(path string, fields map[string]string) error {
	doc, err := readNode(path)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		setMappingValue(doc.Content[0], k, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fields[k]})
	}
	return writeNode(path, doc)
}

// Fields reads top-level scalar fields without validating the document.
func Fields(path string) (map[string]string, error) {
	doc, err := readNode(path)
	if err != nil {
		return nil, err
	}
	root := doc.Content[0]
	out := make(map[string]string)
	for i := 0; i+1 < len(root.Content); i += 2 {
		if v := root.Content[i+1]; v.Kind == yaml.ScalarNode {
			out[root.Content[i].Value] = v.Value
		}
	}
	return out, nil
}

func readNode(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Path: path, Message: err.Error()}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, &ConfigError{Path: path, Message: "descriptor must be a mapping"}
	}
	return &doc, nil
}

func writeNode(path string, doc *yaml.Node) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	return nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func setMappingValue(m *yaml.Node, key string, val *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = val
			return
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		val,
	)
}
