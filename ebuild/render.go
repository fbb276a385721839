package ebuild

import (
	"bytes"
	_ "embed"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/etnz/deb2ebuild/kb"
)

// DefaultTemplate is the ebuild skeleton used when no template file is given.
//
//go:embed templates/template.ebuild
var DefaultTemplate string

// LoadTemplate reads a template file, or returns DefaultTemplate when path is empty.
func LoadTemplate(path string) (string, error) {
	if path == "" {
		return DefaultTemplate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading template: %w", err)
	}
	return string(data), nil
}

var shellEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")

// shellQuote escapes s for use between double quotes in bash.
func shellQuote(s string) string {
	return shellEscaper.Replace(s)
}

// Tokens returns the template placeholders with their value for this recipe.
// Values coming from the package are escaped for double-quoted strings.
func (r *Recipe) Tokens() map[string]string {
	return map[string]string{
		"@YEAR@":        strconv.Itoa(r.Year),
		"@EAPI@":        strconv.Itoa(r.EAPI),
		"@INHERIT@":     strings.Join(r.Inherit, " "),
		"@DESCRIPTION@": shellQuote(r.Description),
		"@HOMEPAGE@":    shellQuote(r.Homepage),
		"@SRC_URI@":     r.SrcURI(),
		"@LICENSE@":     shellQuote(r.License),
		"@SLOT@":        r.Slot,
		"@KEYWORDS@":    r.Keywords(),
		"@RESTRICT@":    strings.Join(r.Restrict, " "),
		"@RDEPEND@":     r.Depends,
		"@IUSE@":        strings.Join(r.Flags, " "),
		"@QA_PREBUILT@": "*",
	}
}

// Render substitutes the placeholders of tmpl and appends the S variable and
// the src_prepare and src_install phases.
func (r *Recipe) Render(tmpl string) string {
	var pairs []string
	for token, value := range r.Tokens() {
		pairs = append(pairs, token, value)
	}
	var b strings.Builder
	b.WriteString(strings.NewReplacer(pairs...).Replace(tmpl))

	b.WriteString("\nS=${WORKDIR}\n")
	if r.Prepare != "" {
		b.WriteString("\nsrc_prepare() {\n\tdefault\n")
		b.WriteString(r.Prepare)
		b.WriteString("}\n")
	}
	if r.Install != "" {
		b.WriteString("\nsrc_install() {\n")
		b.WriteString(r.Install)
		b.WriteString("\n}\n")
	}
	return b.String()
}

const metadataHeader = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE pkgmetadata SYSTEM "http://www.gentoo.org/dtd/metadata.dtd">
<pkgmetadata>
`

// Metadata renders the metadata.xml document: the long description, or the
// short one when there is none, and the description of every flag of the
// recipe known to the use-descriptions table. lookup may be nil.
func (r *Recipe) Metadata(lookup kb.Lookup) []byte {
	var b bytes.Buffer
	b.WriteString(metadataHeader)

	text := r.LongDescription
	if text == "" {
		text = r.Description
	}
	if text != "" {
		b.WriteString("\t<longdescription>\n")
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line == "" {
				b.WriteString("\n")
				continue
			}
			b.WriteString("\t\t")
			escape(&b, line)
			b.WriteString("\n")
		}
		b.WriteString("\t</longdescription>\n")
	}

	var flags []string
	for _, flag := range r.Flags {
		if _, ok := kb.First(lookup, kb.UseDescriptions, flag); ok {
			flags = append(flags, flag)
		}
	}
	if len(flags) > 0 {
		b.WriteString("\t<use>\n")
		for _, flag := range flags {
			desc, _ := kb.Joined(lookup, kb.UseDescriptions, flag)
			b.WriteString(`		<flag name="`)
			escape(&b, flag)
			b.WriteString(`">`)
			escape(&b, desc)
			b.WriteString("</flag>\n")
		}
		b.WriteString("\t</use>\n")
	}

	b.WriteString("</pkgmetadata>\n")
	return b.Bytes()
}

func escape(b *bytes.Buffer, s string) {
	// Writes to a bytes.Buffer never fail.
	_ = xml.EscapeText(b, []byte(s))
}
