// Package fixture provides file-backed pipeline collaborators.
//
// A sketch document lists strokes, the classifier's labels, the grouper's
// joined pairs and the recognizer's templates. The collaborators built from
// it answer from those tables, which makes a document a reproducible stand
// in for the external stages.
package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/paulmach/orb"

	"github.com/fyrsmithlabs/sketchd/internal/assembly"
	"github.com/fyrsmithlabs/sketchd/internal/recognition"
	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

const maxDocumentSize = 16 * 1024 * 1024

// Document is a sketch document.
type Document struct {
	ID        string                `json:"id" toml:"id"`
	Strokes   []Stroke              `json:"strokes" toml:"strokes"`
	Labels    map[string]string     `json:"labels" toml:"labels"`
	Pairs     []assembly.JoinedPair `json:"pairs" toml:"pairs"`
	Templates []Template            `json:"templates" toml:"templates"`
}

// Stroke is a stroke as written in a document.
type Stroke struct {
	ID     sketch.StrokeID `json:"id" toml:"id"`
	Points [][2]float64    `json:"points" toml:"points"`
}

// Template is a reference symbol the fixture recognizer matches against.
type Template struct {
	Symbol   string                        `json:"symbol" toml:"symbol"`
	Strokes  []sketch.StrokeID             `json:"strokes" toml:"strokes"`
	Score    float64                       `json:"score" toml:"score"`
	Errors   []recognition.StructuralError `json:"errors,omitempty" toml:"errors"`
	Metadata map[string]string             `json:"metadata,omitempty" toml:"metadata"`
}

// Load reads a document. The format follows the extension: .json or .toml.
func Load(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat document: %w", err)
	}
	if info.Size() > maxDocumentSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrDocumentTooLarge, info.Size(), maxDocumentSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return DecodeJSON(data)
	case ".toml":
		return DecodeTOML(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// DecodeJSON parses and validates a JSON document. Unknown fields are
// rejected.
func DecodeJSON(data []byte) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DecodeTOML parses and validates a TOML document. Unknown keys are
// rejected.
func DecodeTOML(data []byte) (*Document, error) {
	var doc Document
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %s", ErrInvalidDocument, undecoded[0])
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks that every reference names a declared stroke.
func (d *Document) Validate() error {
	known := make(map[sketch.StrokeID]struct{}, len(d.Strokes))
	for i, st := range d.Strokes {
		if st.ID == "" {
			return fmt.Errorf("%w: stroke %d has no id", ErrInvalidDocument, i)
		}
		if _, dup := known[st.ID]; dup {
			return fmt.Errorf("%w: duplicate stroke %s", ErrInvalidDocument, st.ID)
		}
		if len(st.Points) == 0 {
			return fmt.Errorf("%w: stroke %s has no points", ErrInvalidDocument, st.ID)
		}
		known[st.ID] = struct{}{}
	}

	check := func(where string, id sketch.StrokeID) error {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: %s references unknown stroke %q", ErrInvalidDocument, where, id)
		}
		return nil
	}
	for id := range d.Labels {
		if err := check("labels", sketch.StrokeID(id)); err != nil {
			return err
		}
	}
	for i, p := range d.Pairs {
		where := fmt.Sprintf("pair %d", i)
		if err := check(where, p.A); err != nil {
			return err
		}
		if err := check(where, p.B); err != nil {
			return err
		}
	}
	for _, tpl := range d.Templates {
		if tpl.Symbol == "" {
			return fmt.Errorf("%w: template without symbol", ErrInvalidDocument)
		}
		if len(tpl.Strokes) == 0 {
			return fmt.Errorf("%w: template %s has no strokes", ErrInvalidDocument, tpl.Symbol)
		}
		if tpl.Score < 0 || tpl.Score > 1 {
			return fmt.Errorf("%w: template %s score %f outside [0,1]", ErrInvalidDocument, tpl.Symbol, tpl.Score)
		}
		for _, id := range tpl.Strokes {
			if err := check("template "+tpl.Symbol, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Sketch builds a sketch holding the document's strokes in order. A
// document id, when present, becomes the sketch id.
func (d *Document) Sketch() (*sketch.Sketch, error) {
	sk := sketch.New()
	if d.ID != "" {
		sk.ID = d.ID
	}
	for _, st := range d.Strokes {
		if err := sk.AddStroke(sketch.NewStroke(st.ID, lineString(st.Points))); err != nil {
			return nil, err
		}
	}
	return sk, nil
}

func lineString(points [][2]float64) orb.LineString {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = orb.Point{p[0], p[1]}
	}
	return ls
}
