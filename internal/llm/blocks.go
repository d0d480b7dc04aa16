package llm

// Block is one piece of prompt content. Exactly one concrete kind per
// value; each kind carries only the fields that apply to it.
type Block interface {
	blockKind() string
}

// TextBlock is plain text, either typed input or text extracted from a
// document.
type TextBlock struct {
	Text string
}

// ImageBlock is an inline image attached to the current turn.
type ImageBlock struct {
	MIMEType string
	Data     []byte
}

// FileBlock is a document forwarded by its raw bytes, keeping the
// uploader's original filename.
type FileBlock struct {
	Name     string
	MIMEType string
	Data     []byte
}

func (TextBlock) blockKind() string  { return "text" }
func (ImageBlock) blockKind() string { return "image" }
func (FileBlock) blockKind() string  { return "file" }

// Prompt is one role-tagged entry in the outbound request.
type Prompt struct {
	Role   string
	Blocks []Block
}
