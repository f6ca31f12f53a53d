// Package seed reads and writes credit catalog files in YAML.
//
// A seed file is either a top-level list of items or a document with a
// "credits" key:
//
//	credits:
//	  - paperCode: ES-101
//	    paperName: Applied Mathematics I
//	    theory: 4
//	  - paperCode: ES-151
//	    theory: 0
//	    practical: 1
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/shared"
)

// ErrEmptySeed is returned when a seed file holds no items.
var ErrEmptySeed = shared.NewDomainError("seed", "Parse", shared.ErrInvalidInput, "seed file has no credit items")

// Document is the keyed form of a seed file.
type Document struct {
	Credits []credit.Item `yaml:"credits"`
}

// Parse decodes a seed file. Paper codes are normalized and every item is
// validated; the first invalid item fails the parse with its position.
func Parse(r io.Reader) ([]credit.Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, shared.WrapError("seed", "Parse", shared.ErrInvalidFormat, "invalid YAML", err)
	}
	if len(node.Content) == 0 {
		return nil, ErrEmptySeed
	}

	var items []credit.Item
	switch root := node.Content[0]; root.Kind {
	case yaml.SequenceNode:
		err = root.Decode(&items)
	case yaml.MappingNode:
		var doc Document
		err = root.Decode(&doc)
		items = doc.Credits
	default:
		return nil, shared.NewDomainError("seed", "Parse", shared.ErrInvalidFormat, "seed must be a list or a credits mapping")
	}
	if err != nil {
		return nil, shared.WrapError("seed", "Parse", shared.ErrInvalidFormat, "invalid credit item", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptySeed
	}

	for i := range items {
		items[i].PaperCode = shared.NormalizePaperCode(string(items[i].PaperCode))
		if err := items[i].Validate(); err != nil {
			return nil, fmt.Errorf("item %d (%s): %w", i+1, items[i].PaperCode, err)
		}
	}
	return items, nil
}

// Write encodes items in the keyed form.
func Write(w io.Writer, items []credit.Item) error {
	if items == nil {
		items = []credit.Item{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Document{Credits: items}); err != nil {
		return fmt.Errorf("encode seed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode seed: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// IsEmpty reports whether err is an empty seed.
func IsEmpty(err error) bool {
	return errors.Is(err, ErrEmptySeed)
}
