// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// CONTENT PART SUM TYPE
// =============================================================================

// PartKind is the wire discriminator of a content part.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
	PartFile  PartKind = "file"
)

// ContentPart is one typed unit of message content.
// The set of implementations is closed: Text, Image and File.
type ContentPart interface {
	Kind() PartKind
	isContentPart()
}

// Text is a plain text part. Assistant text parts grow by concatenation.
type Text struct {
	Text string
}

// Image is an inline image encoded as a data URI.
type Image struct {
	ImageDataURI string
	MediaType    string
}

// File is an attached file encoded as a data URI.
type File struct {
	DataURI   string
	MediaType string
	Filename  string
}

func (Text) Kind() PartKind  { return PartText }
func (Image) Kind() PartKind { return PartImage }
func (File) Kind() PartKind  { return PartFile }

func (Text) isContentPart()  {}
func (Image) isContentPart() {}
func (File) isContentPart()  {}

// UnknownPartError reports a content part kind this build cannot handle.
type UnknownPartError struct {
	Kind string
}

// Error implements the error interface.
func (e *UnknownPartError) Error() string {
	return fmt.Sprintf("unknown content part kind %q", e.Kind)
}

// UnknownPart builds the error returned from the default branch of a
// type switch over ContentPart.
func UnknownPart(p ContentPart) error {
	return &UnknownPartError{Kind: fmt.Sprintf("%T", p)}
}

// =============================================================================
// CONTENT SEQUENCE
// =============================================================================

// Content is the ordered sequence of parts of a message.
type Content []ContentPart

// wirePart is the JSON shape of a single part.
type wirePart struct {
	Type      PartKind `json:"type"`
	Text      *string  `json:"text,omitempty"`
	Image     string   `json:"image,omitempty"`
	Data      string   `json:"data,omitempty"`
	MediaType string   `json:"mediaType,omitempty"`
	Filename  string   `json:"filename,omitempty"`
}

// MarshalJSON encodes the parts with a "type" discriminator.
func (c Content) MarshalJSON() ([]byte, error) {
	wire := make([]wirePart, 0, len(c))
	for _, p := range c {
		switch v := p.(type) {
		case Text:
			text := v.Text
			wire = append(wire, wirePart{Type: PartText, Text: &text})
		case Image:
			wire = append(wire, wirePart{Type: PartImage, Image: v.ImageDataURI, MediaType: v.MediaType})
		case File:
			wire = append(wire, wirePart{Type: PartFile, Data: v.DataURI, MediaType: v.MediaType, Filename: v.Filename})
		default:
			return nil, UnknownPart(p)
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes parts and rejects unknown kinds.
func (c *Content) UnmarshalJSON(data []byte) error {
	var wire []wirePart
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := make(Content, 0, len(wire))
	for _, w := range wire {
		switch w.Type {
		case PartText:
			var text string
			if w.Text != nil {
				text = *w.Text
			}
			out = append(out, Text{Text: text})
		case PartImage:
			out = append(out, Image{ImageDataURI: w.Image, MediaType: w.MediaType})
		case PartFile:
			out = append(out, File{DataURI: w.Data, MediaType: w.MediaType, Filename: w.Filename})
		default:
			return &UnknownPartError{Kind: string(w.Type)}
		}
	}
	*c = out
	return nil
}

// Clone returns a copy that shares nothing with c.
// Parts are plain values, so copying the slice is enough.
func (c Content) Clone() Content {
	if c == nil {
		return nil
	}
	out := make(Content, len(c))
	copy(out, c)
	return out
}

// HasText reports whether any part is a Text part.
func (c Content) HasText() bool {
	for _, p := range c {
		if _, ok := p.(Text); ok {
			return true
		}
	}
	return false
}

// FirstText returns the text of the first Text part.
func (c Content) FirstText() (string, bool) {
	for _, p := range c {
		if t, ok := p.(Text); ok {
			return t.Text, true
		}
	}
	return "", false
}

// PlainText joins all Text parts with newlines.
func (c Content) PlainText() string {
	var parts []string
	for _, p := range c {
		if t, ok := p.(Text); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// =============================================================================
// DATA URIS
// =============================================================================

// ErrInvalidDataURI is returned when a data URI cannot be decoded.
var ErrInvalidDataURI = errors.New("invalid data uri")

// EncodeDataURI returns data as a base64 data URI with the given media type.
func EncodeDataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI splits a base64 data URI into its media type and payload.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return mediaType, []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return mediaType, data, nil
}

// PartFromFile turns an attachment into an Image part for image media types
// and a File part for everything else.
func PartFromFile(filename, mediaType string, data []byte) ContentPart {
	uri := EncodeDataURI(mediaType, data)
	if strings.HasPrefix(mediaType, "image/") {
		return Image{ImageDataURI: uri, MediaType: mediaType}
	}
	return File{DataURI: uri, MediaType: mediaType, Filename: filename}
}
