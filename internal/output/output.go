// Package output builds a renderer-agnostic tree of semantic parts — bold
// text, key/value pairs, code blocks, sections — and renders the same tree
// to either XML (for prompt-facing tool output) or Markdown (for
// human-facing transcripts), mirroring how the agent core never formats a
// tool result as a single hard-coded string.
package output

// Content is the payload of an Element part: either escaped text or raw
// markup that a renderer must not escape (used for embedding pre-rendered
// XML fragments or literal CDATA bodies).
type Content struct {
	Text string
	Raw  string
	// kind distinguishes Text from Raw since both fields share the zero
	// value "". Exactly one of hasText/hasRaw is true for a non-empty Content.
	hasText bool
	hasRaw  bool
}

// TextContent wraps s as escaped text content.
func TextContent(s string) Content { return Content{Text: s, hasText: true} }

// RawContent wraps s as unescaped content (rendered verbatim, CDATA-wrapped
// in XML).
func RawContent(s string) Content { return Content{Raw: s, hasRaw: true} }

func (c Content) isRaw() bool { return c.hasRaw }

// Attr is a single name="value" attribute on an Element part, in insertion
// order (render must not reorder or sort attributes).
type Attr struct {
	Name  string
	Value string
}

// Part is one node in an Output tree. The zero value of Kind selects which
// fields are meaningful; unused fields are left zero.
type Part struct {
	Kind Kind

	Text string // Bold, Italic, Code, Text, ListItem

	Level int    // Heading
	Key   string // KeyValue, KeyValueCode
	Value string // KeyValue, KeyValueCode

	Code     string // CodeBlock
	Language string // CodeBlock

	Items []string // List

	Title string // Section
	Parts []Part  // Section, Element(children)

	Name    string  // Element
	Attrs   []Attr  // Element
	Content Content // Element
}

// Kind identifies which semantic node a Part represents.
type Kind int

const (
	KindBold Kind = iota
	KindItalic
	KindCode
	KindHeading
	KindKeyValue
	KindKeyValueCode
	KindCodeBlock
	KindText
	KindLine
	KindBlankLine
	KindList
	KindListItem
	KindSection
	KindElement
)

// Output is a fluent builder over a sequence of Parts. The zero value is an
// empty document; every method returns the receiver so calls chain.
type Output struct {
	parts []Part
}

// New returns an empty Output.
func New() *Output { return &Output{} }

func (o *Output) push(p Part) *Output {
	o.parts = append(o.parts, p)
	return o
}

// Bold appends bold inline text.
func (o *Output) Bold(text string) *Output { return o.push(Part{Kind: KindBold, Text: text}) }

// Italic appends italic inline text.
func (o *Output) Italic(text string) *Output { return o.push(Part{Kind: KindItalic, Text: text}) }

// Code appends inline code text.
func (o *Output) Code(text string) *Output { return o.push(Part{Kind: KindCode, Text: text}) }

// Heading appends a heading at the given level (1-6).
func (o *Output) Heading(level int, text string) *Output {
	return o.push(Part{Kind: KindHeading, Level: level, Text: text})
}

// H1, H2, H3 are shorthand for Heading(1|2|3, text).
func (o *Output) H1(text string) *Output { return o.Heading(1, text) }
func (o *Output) H2(text string) *Output { return o.Heading(2, text) }
func (o *Output) H3(text string) *Output { return o.Heading(3, text) }

// KV appends a plain key/value pair.
func (o *Output) KV(key, value string) *Output {
	return o.push(Part{Kind: KindKeyValue, Key: key, Value: value})
}

// KVCode appends a key/value pair whose value renders as inline code.
func (o *Output) KVCode(key, value string) *Output {
	return o.push(Part{Kind: KindKeyValueCode, Key: key, Value: value})
}

// CodeBlock appends a fenced code block in the given language (may be "").
func (o *Output) CodeBlock(code, language string) *Output {
	return o.push(Part{Kind: KindCodeBlock, Code: code, Language: language})
}

// Text appends a plain inline text run with no surrounding line break.
func (o *Output) Text(text string) *Output { return o.push(Part{Kind: KindText, Text: text}) }

// Line appends a full text line (line break after).
func (o *Output) Line(text string) *Output { return o.push(Part{Kind: KindLine, Text: text}) }

// BlankLine appends an empty line.
func (o *Output) BlankLine() *Output { return o.push(Part{Kind: KindBlankLine}) }

// List appends a bullet list built from items.
func (o *Output) List(items []string) *Output {
	return o.push(Part{Kind: KindList, Items: append([]string(nil), items...)})
}

// ListItem appends a single bullet item (for building a list incrementally
// alongside other parts, instead of via List).
func (o *Output) ListItem(text string) *Output { return o.push(Part{Kind: KindListItem, Text: text}) }

// Section appends a titled group of nested parts, built via a callback over
// a fresh Output whose resulting parts become the section's children.
func (o *Output) Section(title string, build func(*Output)) *Output {
	inner := New()
	build(inner)
	return o.push(Part{Kind: KindSection, Title: title, Parts: inner.parts})
}

// Part appends an already-built Part verbatim — the escape hatch the other
// builder methods are sugar over.
func (o *Output) Part(p Part) *Output { return o.push(p) }

// Element appends a named element built via an ElementBuilder.
func (o *Output) Element(name string, build func(*ElementBuilder)) *Output {
	eb := &ElementBuilder{name: name}
	build(eb)
	return o.push(eb.build())
}

// When appends the parts built by then when cond is true; otherwise it is a
// no-op. Mirrors conditional tool-output fragments (e.g. only emitting a
// "truncated" notice when truncation actually happened).
func (o *Output) When(cond bool, then func(*Output)) *Output {
	if cond {
		then(o)
	}
	return o
}

// WhenSome appends the parts built by then(v) when v is non-nil.
func WhenSome[T any](o *Output, v *T, then func(*Output, T)) *Output {
	if v != nil {
		then(o, *v)
	}
	return o
}

// Parts returns the built part sequence.
func (o *Output) Parts() []Part { return o.parts }

// RenderXML renders the document as XML via XMLRenderer.
func (o *Output) RenderXML() string { return RenderXML(o.parts) }

// RenderMarkdown renders the document as Markdown via MarkdownRenderer.
func (o *Output) RenderMarkdown() string { return RenderMarkdown(o.parts) }

// NewElement starts a standalone ElementBuilder, for constructing a child
// Part to pass to ElementBuilder.Child/Children without an enclosing Output.
func NewElement(name string) *ElementBuilder { return &ElementBuilder{name: name} }

// Build finishes a standalone ElementBuilder (started via NewElement) into a
// Part, without appending it to any Output.
func (b *ElementBuilder) Build() Part { return b.build() }

// ElementBuilder assembles one Element part: attributes in insertion order,
// then either a content payload or child parts (an element has one or the
// other in practice, though both are allowed).
type ElementBuilder struct {
	name     string
	attrs    []Attr
	children []Part
	content  Content
}

// Attr sets name="value" on the element.
func (b *ElementBuilder) Attr(name, value string) *ElementBuilder {
	b.attrs = append(b.attrs, Attr{Name: name, Value: value})
	return b
}

// AttrIfSome sets name="value" only if value is non-nil.
func (b *ElementBuilder) AttrIfSome(name string, value *string) *ElementBuilder {
	if value != nil {
		b.Attr(name, *value)
	}
	return b
}

// Class appends to the element's class attribute, space-joining with any
// class already set rather than overwriting it.
func (b *ElementBuilder) Class(class string) *ElementBuilder {
	for i := range b.attrs {
		if b.attrs[i].Name == "class" {
			b.attrs[i].Value = b.attrs[i].Value + " " + class
			return b
		}
	}
	return b.Attr("class", class)
}

// Text sets the element's content to escaped text.
func (b *ElementBuilder) Text(text string) *ElementBuilder {
	b.content = TextContent(text)
	return b
}

// CDATA sets the element's content to raw, unescaped text.
func (b *ElementBuilder) CDATA(text string) *ElementBuilder {
	b.content = RawContent(text)
	return b
}

// Child appends a single nested part.
func (b *ElementBuilder) Child(p Part) *ElementBuilder {
	b.children = append(b.children, p)
	return b
}

// Children appends nested parts built via a callback over a fresh Output.
func (b *ElementBuilder) Children(build func(*Output)) *ElementBuilder {
	inner := New()
	build(inner)
	b.children = append(b.children, inner.parts...)
	return b
}

func (b *ElementBuilder) build() Part {
	return Part{
		Kind:    KindElement,
		Name:    b.name,
		Attrs:   b.attrs,
		Parts:   b.children,
		Content: b.content,
	}
}
