package output

import (
	"fmt"
	"strconv"
	"strings"
)

// encodeText escapes the characters that would otherwise be parsed as XML
// markup inside element text content.
func encodeText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// encodeDoubleQuotedAttr escapes the characters unsafe inside a
// double-quoted XML attribute value, in addition to what encodeText covers.
func encodeDoubleQuotedAttr(s string) string {
	r := strings.NewReplacer("&", "&amp;", "\"", "&quot;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// RenderXML renders parts as XML, the format a tool result is sent back to
// the model as: structured tags with escaped text and CDATA-wrapped raw
// payloads such as file contents or shell output.
func RenderXML(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(renderPartXML(p))
	}
	return b.String()
}

func renderPartXML(p Part) string {
	switch p.Kind {
	case KindBold:
		return fmt.Sprintf("<bold>%s</bold>", encodeText(p.Text))
	case KindItalic:
		return fmt.Sprintf("<italic>%s</italic>", encodeText(p.Text))
	case KindCode:
		return fmt.Sprintf("<code>%s</code>", encodeText(p.Text))
	case KindHeading:
		level := strconv.Itoa(p.Level)
		return fmt.Sprintf("<h%s>%s</h%s>", level, encodeText(p.Text), level)
	case KindKeyValue:
		return fmt.Sprintf(`<kv key="%s" value="%s"></kv>`, encodeText(p.Key), encodeText(p.Value))
	case KindKeyValueCode:
		return fmt.Sprintf(`<kv_code key="%s" value="%s"></kv_code>`, encodeText(p.Key), encodeText(p.Value))
	case KindCodeBlock:
		var b strings.Builder
		b.WriteString("<code_block")
		if p.Language != "" {
			fmt.Fprintf(&b, ` language="%s"`, encodeText(p.Language))
		}
		fmt.Fprintf(&b, "><![CDATA[%s]]></code_block>", p.Code)
		return b.String()
	case KindText:
		return encodeText(p.Text)
	case KindLine:
		return encodeText(p.Text) + "\n"
	case KindBlankLine:
		return "\n"
	case KindList:
		var b strings.Builder
		b.WriteString("<list>")
		for _, item := range p.Items {
			fmt.Fprintf(&b, "<item>%s</item>", encodeText(item))
		}
		b.WriteString("</list>")
		return b.String()
	case KindListItem:
		return fmt.Sprintf("<item>%s</item>", encodeText(p.Text))
	case KindSection:
		var b strings.Builder
		fmt.Fprintf(&b, `<section title="%s">`, encodeText(p.Title))
		for _, child := range p.Parts {
			b.WriteString(renderPartXML(child))
		}
		b.WriteString("</section>")
		return b.String()
	case KindElement:
		return renderElementXML(p)
	default:
		return ""
	}
}

func renderElementXML(p Part) string {
	var b strings.Builder

	if len(p.Attrs) == 0 {
		fmt.Fprintf(&b, "<%s>", p.Name)
	} else {
		fmt.Fprintf(&b, "<%s", p.Name)
		for _, a := range p.Attrs {
			fmt.Fprintf(&b, "\n  %s=\"%s\"", a.Name, encodeDoubleQuotedAttr(a.Value))
		}
		b.WriteString("\n>")
	}

	if p.Content.hasText {
		b.WriteString(encodeText(p.Content.Text))
	} else if p.Content.hasRaw {
		fmt.Fprintf(&b, "<![CDATA[%s]]>", p.Content.Raw)
	}

	for _, child := range p.Parts {
		b.WriteString("\n")
		b.WriteString(renderPartXML(child))
	}

	if len(p.Parts) == 0 && len(p.Attrs) == 0 {
		fmt.Fprintf(&b, "</%s>", p.Name)
	} else {
		fmt.Fprintf(&b, "\n</%s>", p.Name)
	}

	return b.String()
}

// RenderMarkdown renders parts as Markdown, the format shown to a human
// reading the transcript rather than the model consuming a tool result.
func RenderMarkdown(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(renderPartMarkdown(p))
	}
	return b.String()
}

func renderPartMarkdown(p Part) string {
	switch p.Kind {
	case KindBold:
		return fmt.Sprintf("**%s**", p.Text)
	case KindItalic:
		return fmt.Sprintf("*%s*", p.Text)
	case KindCode:
		return fmt.Sprintf("`%s`", p.Text)
	case KindHeading:
		return fmt.Sprintf("%s %s", strings.Repeat("#", p.Level), p.Text)
	case KindKeyValue:
		return fmt.Sprintf("- **%s:** %s", p.Key, p.Value)
	case KindKeyValueCode:
		return fmt.Sprintf("- **%s:** `%s`", p.Key, p.Value)
	case KindCodeBlock:
		return fmt.Sprintf("```%s\n%s\n```", p.Language, p.Code)
	case KindText:
		return p.Text
	case KindLine:
		return p.Text + "\n"
	case KindBlankLine:
		return "\n"
	case KindList:
		items := make([]string, len(p.Items))
		for i, item := range p.Items {
			items[i] = "- " + item
		}
		return strings.Join(items, "\n")
	case KindListItem:
		return "- " + p.Text
	case KindSection:
		var b strings.Builder
		fmt.Fprintf(&b, "## %s\n\n", p.Title)
		for _, child := range p.Parts {
			b.WriteString(renderPartMarkdown(child))
		}
		return b.String()
	case KindElement:
		var segments []string
		if p.Content.hasText {
			segments = append(segments, p.Content.Text)
		} else if p.Content.hasRaw {
			segments = append(segments, p.Content.Raw)
		}
		for _, child := range p.Parts {
			segments = append(segments, renderPartMarkdown(child))
		}
		return strings.Join(segments, " ")
	default:
		return ""
	}
}
