package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Document is the serialisable form of a Prototype.
type Document struct {
	ID    string         `yaml:"id" json:"id"`
	Name  string         `yaml:"name" json:"name"`
	Nodes []NodeDocument `yaml:"nodes" json:"nodes"`
}

type NodeDocument struct {
	ID     int             `yaml:"id" json:"id"`
	Kind   string          `yaml:"kind" json:"kind"`
	Inputs []InputDocument `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Noise  *NoiseSettings  `yaml:"noise,omitempty" json:"noise,omitempty"`
}

// InputDocument sets one slot by name, either from another node or from a
// literal. Slots that are not listed keep their defaults.
type InputDocument struct {
	Slot    string    `yaml:"slot" json:"slot"`
	Source  *int      `yaml:"source,omitempty" json:"source,omitempty"`
	Literal []float32 `yaml:"literal,omitempty,flow" json:"literal,omitempty"`
}

// Document captures the prototype. Inputs still at their default literal are
// omitted.
func (p *Prototype) Document() Document {
	doc := Document{ID: p.ID.String(), Name: p.Name, Nodes: make([]NodeDocument, 0, len(p.nodes))}
	for i, n := range p.nodes {
		nd := NodeDocument{ID: i, Kind: n.kind.String()}
		for slot, in := range n.inputs {
			spec := kindTable[n.kind].inputs[slot]
			switch {
			case in.Linked():
				src := int(in.Source)
				nd.Inputs = append(nd.Inputs, InputDocument{Slot: spec.Name, Source: &src})
			case in.Literal != spec.Default:
				nd.Inputs = append(nd.Inputs, InputDocument{Slot: spec.Name, Literal: in.Literal.components()})
			}
		}
		if n.kind.IsNoise() {
			noise := n.noise
			nd.Noise = &noise
		}
		doc.Nodes = append(doc.Nodes, nd)
	}
	return doc
}

// FromDocument rebuilds a prototype. Node ids must be dense and start at 0 so
// that handles survive the round trip.
func FromDocument(doc Document) (*Prototype, error) {
	p := NewPrototype(doc.Name)
	if doc.ID != "" {
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: graph id %q: %v", ErrMisconfigured, doc.ID, err)
		}
		p.ID = id
	}

	nodes := append([]NodeDocument(nil), doc.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	for i, nd := range nodes {
		if nd.ID != i {
			return nil, fmt.Errorf("%w: node ids must be dense from 0, found %d at position %d", ErrUnknownNode, nd.ID, i)
		}
		kind, err := ParseKind(nd.Kind)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", nd.ID, err)
		}
		if _, err := p.AddNode(kind); err != nil {
			return nil, err
		}
	}

	for _, nd := range nodes {
		id := NodeID(nd.ID)
		kind := p.nodes[id].kind
		if nd.Noise != nil {
			if err := p.SetNoise(id, *nd.Noise); err != nil {
				return nil, err
			}
		}
		for _, in := range nd.Inputs {
			slot, ok := kind.slotIndex(in.Slot)
			if !ok {
				return nil, nodeErr(id, kind, fmt.Errorf("%w: no slot named %q", ErrSlotOutOfRange, in.Slot))
			}
			if in.Source != nil {
				if len(in.Literal) > 0 {
					return nil, nodeErr(id, kind, fmt.Errorf("%w: slot %q has both source and literal", ErrMisconfigured, in.Slot))
				}
				if err := p.SetLinkInput(id, slot, NodeID(*in.Source)); err != nil {
					return nil, err
				}
				continue
			}
			v, err := valueFromComponents(kindTable[kind].inputs[slot].Type, in.Literal)
			if err != nil {
				return nil, nodeErr(id, kind, err)
			}
			if err := p.SetLiteral(id, slot, v); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// ParseDocument decodes a YAML or JSON graph document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode graph document: %w", err)
	}
	if len(doc.Nodes) == 0 {
		return Document{}, errors.New("decode graph document: no nodes")
	}
	return doc, nil
}

// EncodeYAML renders a graph document as YAML.
func EncodeYAML(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode graph document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode graph document: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJSON renders a graph document as JSON.
func EncodeJSON(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode graph document: %w", err)
	}
	return data, nil
}

// LoadProgram parses and compiles a graph document in one step.
func LoadProgram(data []byte) (*Program, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	p, err := FromDocument(doc)
	if err != nil {
		return nil, err
	}
	return p.Compile()
}
