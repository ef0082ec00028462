// Package sanitize turns HTML-ish ticket bodies into plain text through ordered, named rules.
package sanitize

import (
	"regexp"
	"strings"
)

// Placeholder is returned when a body sanitizes to nothing.
const Placeholder = "Sem conteúdo."

// Rule is a single named text transform. Every rule must never lengthen its input.
type Rule struct {
	Name  string
	Apply func(string) string
}

// Replace builds a rule replacing every match of pattern with the literal repl.
func Replace(name, pattern, repl string) Rule {
	re := regexp.MustCompile(pattern)
	return Rule{
		Name: name,
		Apply: func(s string) string {
			return re.ReplaceAllLiteralString(s, repl)
		},
	}
}

// Pipeline applies its rules in order, repeating full passes until the text stops changing.
type Pipeline struct {
	rules       []Rule
	placeholder string
}

// New builds a pipeline. An empty placeholder falls back to Placeholder.
func New(placeholder string, rules ...Rule) *Pipeline {
	if placeholder == "" {
		placeholder = Placeholder
	}
	return &Pipeline{rules: append([]Rule(nil), rules...), placeholder: placeholder}
}

// WithPlaceholder returns a copy of the pipeline using a different placeholder.
func (p *Pipeline) WithPlaceholder(placeholder string) *Pipeline {
	return New(placeholder, p.rules...)
}

// Rules returns the rules in application order.
func (p *Pipeline) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// RuleNames lists rule names in application order.
func (p *Pipeline) RuleNames() []string {
	names := make([]string, 0, len(p.rules))
	for _, r := range p.rules {
		names = append(names, r.Name)
	}
	return names
}

// Placeholder returns the text used for empty results.
func (p *Pipeline) Placeholder() string {
	return p.placeholder
}

// Clean sanitizes raw. The result is never empty and Clean(Clean(x)) == Clean(x).
func (p *Pipeline) Clean(raw string) string {
	out := raw
	for {
		next := p.pass(out)
		if next == out {
			break
		}
		// rules only shrink, so a changing pass always terminates
		out = next
	}
	if out == "" {
		return p.placeholder
	}
	return out
}

func (p *Pipeline) pass(s string) string {
	for _, r := range p.rules {
		s = r.Apply(s)
	}
	return s
}

var entityReplacer = strings.NewReplacer("&nbsp;", " ", "&amp;", "&")

// HTMLRules strip markup from a body: line-break tags become newlines, other tags go away,
// a fixed set of entities is decoded and blank lines collapse.
func HTMLRules() []Rule {
	return []Rule{
		Replace("normalize-newlines", `\r\n?`, "\n"),
		Replace("line-breaks", `(?i)<br\s*/?>|</div\s*>|</p\s*>`, "\n"),
		Replace("strip-tags", `<[^>]+>`, ""),
		{Name: "decode-entities", Apply: entityReplacer.Replace},
		Replace("collapse-blank-lines", `\n\s*\n`, "\n"),
		{Name: "trim", Apply: strings.TrimSpace},
	}
}

// BoilerplateRules strip mail boilerplate. They expect whitespace already collapsed and trimmed.
// A greeting line goes only when nothing but an addressee follows it.
func BoilerplateRules() []Rule {
	return []Rule{
		Replace("greeting",
			`(?i)\A`+greetingWords+`(?:[ \t]*[,!]?[ \t]+`+addresseeWord+`(?:[ \t]+`+addresseeWord+`){0,2})?[ \t]*[,!:]?[ \t]*\n`, ""),
		greetingPrefix(),
		Replace("quoted-thread",
			`(?is)\n[^\n]*(?:wrote|escreveu):[ \t]*\n.*\z`, ""),
		Replace("original-message",
			`(?is)\n-{2,}[ \t]*(?:original message|mensagem original)[ \t]*-{2,}.*\z`, ""),
		Replace("signature",
			`(?is)\n[ \t]*(?:atenciosamente|att\.?|abra[çc]os|cordialmente|obrigad[oa]|best regards|kind regards|regards)[ \t]*[,.!]?[ \t]*(?:\n.*)?\z`, ""),
		Replace("signature-delimiter", `(?s)\n-- ?\n.*\z`, ""),
		Replace("reference-link-lines", `(?m)^[ \t]*\[\d+\][ \t]*(?:https?|mailto):\S*[ \t]*(?:\n|\z)`, ""),
		Replace("reference-markers", `\[\d+\]`, ""),
		Replace("collapse-blank-lines", `\n\s*\n`, "\n"),
		{Name: "trim", Apply: strings.TrimSpace},
	}
}

const (
	greetingWords = `(?:ol[áa]|oi|prezad[oa]s?(?:\(a\))?|bom dia|boa tarde|boa noite|hello|hi|dear)`
	addresseeWord = `[^\s,!.:;?]+`
)

var greetingPrefixPattern = regexp.MustCompile(`(?i)\A` + greetingWords + `[ \t]*[,!][ \t]*`)

// greetingPrefix drops "Bom dia, " in front of text on the same line and keeps the text.
func greetingPrefix() Rule {
	return Rule{
		Name: "greeting-prefix",
		Apply: func(s string) string {
			loc := greetingPrefixPattern.FindStringIndex(s)
			if loc == nil || loc[1] == len(s) || s[loc[1]] == '\n' {
				return s
			}
			return s[loc[1]:]
		},
	}
}

var (
	htmlPipeline    = New(Placeholder, HTMLRules()...)
	messagePipeline = New(Placeholder, append(HTMLRules(), BoilerplateRules()...)...)
)

// HTML returns the markup-only pipeline.
func HTML() *Pipeline { return htmlPipeline }

// Message returns the markup pipeline followed by boilerplate removal.
func Message() *Pipeline { return messagePipeline }

// Clean runs the HTML pipeline.
func Clean(raw string) string {
	return htmlPipeline.Clean(raw)
}

// CleanMessage runs the message pipeline.
func CleanMessage(raw string) string {
	return messagePipeline.Clean(raw)
}
