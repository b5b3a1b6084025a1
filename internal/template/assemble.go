// Package template assembles the deployable CloudFormation template from the
// source template and the handler code it inlines.
package template

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// nameSuffixToken marks where the source template wants a per-stack unique
// name suffix.
const nameSuffixToken = "__NAME__SUFFIX__"

// nameSuffixExpr derives the suffix from the last segment of the stack id,
// which is unique per stack instance.
const nameSuffixExpr = `Fn::Select: [0, Fn::Split: ["-", Fn::Select: [2, Fn::Split: ["/", Ref: "AWS::StackId"]]]]`

// Assemble parses the source template, substitutes the name-suffix token,
// inlines each code body into the named resource's Code.ZipFile, and renders
// the result with multiline strings as YAML block scalars.
func Assemble(templateYAML []byte, code map[string]string) ([]byte, error) {
	src := strings.ReplaceAll(string(templateYAML), nameSuffixToken, nameSuffixExpr)

	var doc map[string]any
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	// Deterministic inline order so errors are stable.
	names := make([]string, 0, len(code))
	for name := range code {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := setZipFile(doc, name, code[name]); err != nil {
			return nil, err
		}
	}

	node, err := toNode(doc)
	if err != nil {
		return nil, err
	}

	var out strings.Builder
	enc := yaml.NewEncoder(&out)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	return []byte(out.String()), nil
}

// setZipFile writes body to Resources.<name>.Properties.Code.ZipFile.
func setZipFile(doc map[string]any, name, body string) error {
	resources, ok := doc["Resources"].(map[string]any)
	if !ok {
		return fmt.Errorf("template has no Resources section")
	}
	resource, ok := resources[name].(map[string]any)
	if !ok {
		return fmt.Errorf("template has no resource %q", name)
	}
	props, ok := resource["Properties"].(map[string]any)
	if !ok {
		return fmt.Errorf("resource %q has no Properties", name)
	}
	codeBlock, ok := props["Code"].(map[string]any)
	if !ok {
		return fmt.Errorf("resource %q has no Code block", name)
	}
	codeBlock["ZipFile"] = body
	return nil
}

// toNode converts a decoded YAML value back into a node tree, forcing
// literal block style on multiline strings so the inlined code stays
// readable in the output.
func toNode(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range keys {
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
			valNode, err := toNode(t[k])
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, keyNode, valNode)
		}
		return node, nil
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range t {
			child, err := toNode(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	case string:
		node := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t}
		if strings.Contains(t, "\n") {
			node.Style = yaml.LiteralStyle
		}
		return node, nil
	default:
		node := &yaml.Node{}
		if err := node.Encode(v); err != nil {
			return nil, fmt.Errorf("failed to encode value %v: %w", v, err)
		}
		return node, nil
	}
}
