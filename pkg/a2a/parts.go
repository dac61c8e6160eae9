package a2a

import (
	"encoding/json"
)

// Part is one element of a message or artifact body. Concrete variants are
// TextPart, FilePart and DataPart, discriminated on the wire by "kind".
type Part interface {
	PartKind() string
}

// TextPart carries plain text.
type TextPart struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartKind returns the discriminator value for text parts.
func (p *TextPart) PartKind() string { return KindText }

// MarshalJSON writes the part with "kind" as the first property.
func (p *TextPart) MarshalJSON() ([]byte, error) {
	type alias TextPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{Kind: KindText, alias: (*alias)(p)})
}

// FilePart carries file content, inline or by reference.
type FilePart struct {
	File     FileContent    `json:"file"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartKind returns the discriminator value for file parts.
func (p *FilePart) PartKind() string { return KindFile }

// MarshalJSON writes the part with "kind" as the first property.
func (p *FilePart) MarshalJSON() ([]byte, error) {
	type alias FilePart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{Kind: KindFile, alias: (*alias)(p)})
}

// DataPart carries an arbitrary JSON object.
type DataPart struct {
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartKind returns the discriminator value for data parts.
func (p *DataPart) PartKind() string { return KindData }

// MarshalJSON writes the part with "kind" as the first property.
func (p *DataPart) MarshalJSON() ([]byte, error) {
	type alias DataPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{Kind: KindData, alias: (*alias)(p)})
}

// NewTextPart builds a text part.
func NewTextPart(text string) *TextPart {
	return &TextPart{Text: text}
}

// NewFilePartBytes builds a file part with inline base64 content.
func NewFilePartBytes(name, mimeType, b64 string) *FilePart {
	return &FilePart{File: FileContent{Name: name, MimeType: mimeType, Bytes: b64}}
}

// NewFilePartURI builds a file part referencing external content.
func NewFilePartURI(name, mimeType, uri string) *FilePart {
	return &FilePart{File: FileContent{Name: name, MimeType: mimeType, URI: uri}}
}

// NewDataPart builds a data part.
func NewDataPart(data map[string]any) *DataPart {
	return &DataPart{Data: data}
}

// readKind extracts and validates the "kind" discriminator from raw JSON.
func readKind(raw []byte) (string, error) {
	var probe struct {
		Kind json.RawMessage `json:"kind"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", ErrInvalidRequest("malformed object").WithCause(err)
	}
	if len(probe.Kind) == 0 || string(probe.Kind) == "null" {
		return "", ErrInvalidRequest("missing kind discriminator")
	}
	var kind string
	if err := json.Unmarshal(probe.Kind, &kind); err != nil {
		return "", ErrInvalidRequest("kind discriminator is not a string").WithCause(err)
	}
	if kind == "" {
		return "", ErrInvalidRequest("empty kind discriminator")
	}
	return kind, nil
}

// UnmarshalPart decodes a single Part from its JSON representation,
// dispatching on the "kind" discriminator.
func UnmarshalPart(raw []byte) (Part, error) {
	kind, err := readKind(raw)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindText:
		var p TextPart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, ErrInvalidRequest("malformed text part").WithCause(err)
		}
		return &p, nil
	case KindFile:
		var p FilePart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, ErrInvalidRequest("malformed file part").WithCause(err)
		}
		if err := p.File.Validate(); err != nil {
			return nil, err
		}
		return &p, nil
	case KindData:
		var p DataPart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, ErrInvalidRequest("malformed data part").WithCause(err)
		}
		return &p, nil
	default:
		return nil, ErrInvalidRequest("unknown part kind: " + kind)
	}
}

// unmarshalParts decodes a JSON array of parts.
func unmarshalParts(raw []json.RawMessage) ([]Part, error) {
	if raw == nil {
		return nil, nil
	}
	parts := make([]Part, 0, len(raw))
	for _, r := range raw {
		p, err := UnmarshalPart(r)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, nil
}
