package jenkins

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

const (
	tagParametersProperty   = "hudson.model.ParametersDefinitionProperty"
	tagParameterDefinitions = "parameterDefinitions"
	tagChoices              = "choices"
	tagString               = "string"
	choiceDefinitionSuffix  = "ChoiceParameterDefinition"
)

// ParameterDef is one build parameter declared in a job's config.xml.
// Choices is nil unless the parameter is a choice parameter with a choices
// element; an empty choices element yields an empty, non-nil slice.
type ParameterDef struct {
	Type         string   `json:"type"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	DefaultValue string   `json:"defaultValue"`
	Choices      []string `json:"choices,omitzero"`
}

// Parameters is the result of ParseParameters.
//
// HasParam is true whenever the job carries a ParametersDefinitionProperty,
// even if the property holds no parameterDefinitions element.
type Parameters struct {
	HasParam   bool           `json:"has_param"`
	Parameters []ParameterDef `json:"parameters"`
}

// ParseParameters extracts the build parameter definitions from a job's
// config.xml.
func ParseParameters(configXML string) (*Parameters, error) {
	root, err := parseTree(configXML)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedConfig, err)
	}

	result := &Parameters{Parameters: []ParameterDef{}}

	prop := root.find(tagParametersProperty)
	if prop == nil {
		return result, nil
	}
	result.HasParam = true

	defs := prop.child(tagParameterDefinitions)
	if defs == nil {
		return result, nil
	}

	for _, p := range defs.children {
		def := ParameterDef{
			Type:         typeName(p.tag),
			Name:         p.childText("name"),
			Description:  p.childText("description"),
			DefaultValue: p.childText("defaultValue"),
		}
		if strings.HasSuffix(def.Type, choiceDefinitionSuffix) {
			if choices := p.child(tagChoices); choices != nil {
				def.Choices = []string{}
				choices.walk(func(n *element) {
					if n != choices && n.tag == tagString {
						def.Choices = append(def.Choices, strings.TrimSpace(n.text))
					}
				})
			}
		}
		result.Parameters = append(result.Parameters, def)
	}
	return result, nil
}

// element is a minimal DOM node. text holds the character data that appears
// before the first child element.
type element struct {
	tag      string
	text     string
	children []*element
}

// find returns the first element in document order, e itself included,
// whose tag is name.
func (e *element) find(name string) *element {
	if e.tag == name {
		return e
	}
	for _, c := range e.children {
		if found := c.find(name); found != nil {
			return found
		}
	}
	return nil
}

func (e *element) child(name string) *element {
	for _, c := range e.children {
		if c.tag == name {
			return c
		}
	}
	return nil
}

func (e *element) childText(name string) string {
	if c := e.child(name); c != nil {
		return strings.TrimSpace(c.text)
	}
	return ""
}

func (e *element) walk(fn func(*element)) {
	fn(e)
	for _, c := range e.children {
		c.walk(fn)
	}
}

// normalizeTag reduces a tag to its last segment. encoding/xml already moves
// prefixes into Name.Space; a literal "{namespace}" form is stripped here.
func normalizeTag(name xml.Name) string {
	tag := name.Local
	if i := strings.LastIndexByte(tag, '}'); i >= 0 {
		tag = tag[i+1:]
	}
	return tag
}

// typeName reduces a parameter definition tag such as
// "hudson.model.StringParameterDefinition" to its class name.
func typeName(tag string) string {
	if i := strings.LastIndexByte(tag, '.'); i >= 0 {
		return tag[i+1:]
	}
	return tag
}

// Jenkins writes config.xml with an XML 1.1 declaration, which encoding/xml
// refuses. The documents do not use any 1.1-only constructs.
var xml11Declaration = regexp.MustCompile(`^(\s*<\?xml[^>]*?version\s*=\s*)(['"])1\.1(['"])`)

// charsetReader decodes documents that declare an encoding other than UTF-8.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

func parseTree(doc string) (*element, error) {
	doc = strings.TrimPrefix(doc, "\ufeff")
	doc = xml11Declaration.ReplaceAllString(doc, "${1}${2}1.0${3}")

	dec := xml.NewDecoder(strings.NewReader(doc))
	dec.CharsetReader = charsetReader
	var (
		root  *element
		stack []*element
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{tag: normalizeTag(t.Name)}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("junk after document element <%s>", root.tag)
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if strings.TrimSpace(string(t)) != "" {
					return nil, errors.New("text outside the document element")
				}
				continue
			}
			if top := stack[len(stack)-1]; len(top.children) == 0 {
				top.text += string(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("no document element")
	}
	return root, nil
}
