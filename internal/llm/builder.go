package llm

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"parley/internal/extract"
	"parley/internal/models"
)

// ErrEmptyTurn is returned when the current turn produces no content
// blocks at all.
var ErrEmptyTurn = errors.New("turn has no usable content")

// IncomingFile is a document attachment as submitted by the client.
// Data is base64, optionally wrapped in a data URL.
type IncomingFile struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"`
}

// Turn is the content of the current user turn before it is shaped into
// prompt blocks.
type Turn struct {
	Text   string
	Images []string
	Files  []IncomingFile
}

// BuildPrompts turns the stored history plus the current turn into the
// ordered role-tagged prompt list for one completion request. Prior
// messages with empty bodies are dropped; the current turn is always
// appended last with the user role. Any error here is a caller mistake
// (bad payload, unsupported or unreadable document) and must be reported
// without calling the upstream API.
func BuildPrompts(history []models.Message, turn Turn) ([]Prompt, error) {
	prompts := make([]Prompt, 0, len(history)+1)
	for _, msg := range history {
		if msg.Content == "" {
			continue
		}
		prompts = append(prompts, Prompt{
			Role:   msg.Role,
			Blocks: []Block{TextBlock{Text: msg.Content}},
		})
	}

	blocks, err := buildTurnBlocks(turn)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, ErrEmptyTurn
	}

	return append(prompts, Prompt{Role: models.RoleUser, Blocks: blocks}), nil
}

// buildTurnBlocks assembles the current turn in fixed order: text, then
// images in attachment order, then documents.
func buildTurnBlocks(turn Turn) ([]Block, error) {
	var blocks []Block

	if text := strings.TrimSpace(turn.Text); text != "" {
		blocks = append(blocks, TextBlock{Text: text})
	}

	for i, img := range turn.Images {
		mimeType, data, err := decodePayload(img, "image/png")
		if err != nil {
			return nil, fmt.Errorf("invalid image payload at index %d: %w", i, err)
		}
		blocks = append(blocks, ImageBlock{MIMEType: mimeType, Data: data})
	}

	for _, file := range turn.Files {
		block, err := buildDocumentBlock(file)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	return blocks, nil
}

func buildDocumentBlock(file IncomingFile) (Block, error) {
	switch {
	case isPDF(file):
		_, data, err := decodePayload(file.Data, "application/pdf")
		if err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", file.Name, err)
		}
		return FileBlock{Name: file.Name, MIMEType: "application/pdf", Data: data}, nil

	case isDOCX(file):
		_, data, err := decodePayload(file.Data, "")
		if err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", file.Name, err)
		}
		text, err := extract.DOCXText(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file.Name, err)
		}
		return TextBlock{Text: fmt.Sprintf("Contents of %s:\n\n%s", file.Name, text)}, nil

	default:
		return nil, fmt.Errorf("unsupported document type for %s (only PDF and DOCX are accepted)", file.Name)
	}
}

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

func isPDF(file IncomingFile) bool {
	return file.Type == "application/pdf" || strings.EqualFold(filepath.Ext(file.Name), ".pdf")
}

func isDOCX(file IncomingFile) bool {
	return file.Type == docxMIME || strings.EqualFold(filepath.Ext(file.Name), ".docx")
}

// decodePayload accepts raw base64 or a data URL. Anything up to and
// including the first comma is treated as the data-URL prefix and
// stripped; a media type found in the prefix wins over the fallback.
func decodePayload(payload, fallbackMIME string) (string, []byte, error) {
	mimeType := fallbackMIME
	if i := strings.Index(payload, ","); i >= 0 {
		prefix := payload[:i]
		payload = payload[i+1:]
		if m := mimeFromDataURL(prefix); m != "" {
			mimeType = m
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 data: %w", err)
	}
	return mimeType, data, nil
}

// mimeFromDataURL pulls the media type out of a prefix like
// "data:image/jpeg;base64".
func mimeFromDataURL(prefix string) string {
	if !strings.HasPrefix(prefix, "data:") {
		return ""
	}
	rest := strings.TrimPrefix(prefix, "data:")
	if i := strings.Index(rest, ";"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
