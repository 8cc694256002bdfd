// Package project converts between a live graph and the versioned document
// persisted on disk. The engine never does file I/O itself; Snapshot and
// Restore operate on in-memory documents and leave reading/writing to the
// caller.
package project

import (
	"encoding/json"
	"fmt"
)

// Version is the document schema version this build reads and writes.
const Version = 1

// NodeDoc is one node in a persisted document. Parameters are stored as the
// cty JSON encoding of each value; the node type's schema supplies the cty
// type on restore.
type NodeDoc struct {
	ID         string                     `json:"id"`
	Type       string                     `json:"type"`
	Parameters map[string]json.RawMessage `json:"parameters"`
	Position   [2]float64                 `json:"position"`
}

// EdgeDoc is one connection in a persisted document.
type EdgeDoc struct {
	FromNode string `json:"from_node"`
	FromPort string `json:"from_port"`
	ToNode   string `json:"to_node"`
	ToPort   string `json:"to_port"`
}

// Document is the persisted form of a graph.
type Document struct {
	Version  int               `json:"version"`
	Name     string            `json:"name,omitempty"`
	Nodes    []NodeDoc         `json:"nodes"`
	Edges    []EdgeDoc         `json:"edges"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SerializationError reports a malformed document. Restore fails atomically:
// when one is returned, no partial graph is produced.
type SerializationError struct {
	Detail string
	Err    error
}

func (e *SerializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("serialization: %s: %v", e.Detail, e.Err)
	}
	return "serialization: " + e.Detail
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Encode renders the document as indented JSON.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, &SerializationError{Detail: "encoding document", Err: err}
	}
	return data, nil
}

// Decode parses a JSON document, validating the schema version.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &SerializationError{Detail: "parsing document", Err: err}
	}
	if doc.Version != Version {
		return nil, &SerializationError{Detail: fmt.Sprintf("unsupported document version %d", doc.Version)}
	}
	return &doc, nil
}
