// Package parser turns raw annotation-service responses into annotations.
//
// Two wire schemas are accepted. Schema A is the comment list:
//
//	{"comments": [{"line_number": 3, "comment": "..."}]}
//
// with 1-based line numbers. Schema B is the range list:
//
//	[{"lineRange": [2, 4], "title": "...", "description": "..."}]
//
// with 0-based inclusive ranges. Schema A is tried first, then Schema B.
// Models rarely answer with bare JSON, so the payload is located in stages
// the same way for both schemas: the whole response, then fenced code
// blocks, then the first JSON value embedded in prose.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/billie-coop/margin/internal/annotations"
	"github.com/billie-coop/margin/internal/changes"
)

// ErrParse is returned when a response matches neither schema.
var ErrParse = errors.New("response matches no known schema")

// Schema names reported in Result.Schema.
const (
	SchemaComments = "comments"
	SchemaRanges   = "ranges"
)

// Extraction methods reported in Result.Method.
const (
	MethodDirect   = "direct_json"
	MethodMarkdown = "markdown_json"
	MethodEmbedded = "embedded_json"
)

// maxTitleLen bounds titles derived from Schema A comments.
const maxTitleLen = 60

// Result is a successfully parsed response.
type Result struct {
	Annotations []annotations.Annotation
	Schema      string
	Method      string
}

// Empty reports whether the service had nothing to say.
func (r *Result) Empty() bool {
	return r == nil || len(r.Annotations) == 0
}

// Parser extracts annotations from service responses.
type Parser struct {
	newID func() string
}

// Option configures a Parser.
type Option func(*Parser)

// WithIDGenerator replaces the annotation id generator.
func WithIDGenerator(fn func() string) Option {
	return func(p *Parser) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// New creates a parser.
func New(opts ...Option) *Parser {
	p := &Parser{newID: uuid.NewString}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// maxEmbeddedCandidates bounds how many '{' or '[' offsets are tried when
// looking for JSON inside prose.
const maxEmbeddedCandidates = 64

var fenceRegex = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n(.*?)\\n?```")

// Parse extracts annotations from response. requestID is recorded as the
// origin of every annotation. Errors wrap ErrParse.
func (p *Parser) Parse(response, requestID string) (*Result, error) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response", ErrParse)
	}

	// Stage 1: the response is the JSON document.
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if res, ok := p.decode([]byte(trimmed), requestID); ok {
			res.Method = MethodDirect
			return res, nil
		}
	}

	// Stage 2: fenced code blocks.
	for _, match := range fenceRegex.FindAllStringSubmatch(response, -1) {
		if res, ok := p.decode([]byte(strings.TrimSpace(match[1])), requestID); ok {
			res.Method = MethodMarkdown
			return res, nil
		}
	}

	// Stage 3: the first JSON value embedded in prose.
	tried := 0
	for i := 0; i < len(response) && tried < maxEmbeddedCandidates; i++ {
		if response[i] != '{' && response[i] != '[' {
			continue
		}
		tried++
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(response[i:])).Decode(&raw); err != nil {
			continue
		}
		if res, ok := p.decode(raw, requestID); ok {
			res.Method = MethodEmbedded
			return res, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrParse, truncate(trimmed, 80))
}

// decode tries Schema A then Schema B on one candidate document.
func (p *Parser) decode(data []byte, requestID string) (*Result, bool) {
	if anns, ok := p.decodeComments(data, requestID); ok {
		return &Result{Annotations: anns, Schema: SchemaComments}, true
	}
	if anns, ok := p.decodeRanges(data, requestID); ok {
		return &Result{Annotations: anns, Schema: SchemaRanges}, true
	}
	return nil, false
}

type commentsPayload struct {
	Comments *[]struct {
		LineNumber *int    `json:"line_number"`
		Comment    *string `json:"comment"`
	} `json:"comments"`
}

func (p *Parser) decodeComments(data []byte, requestID string) ([]annotations.Annotation, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, false
	}

	var payload commentsPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Comments == nil {
		return nil, false
	}

	out := make([]annotations.Annotation, 0, len(*payload.Comments))
	for _, c := range *payload.Comments {
		if c.LineNumber == nil || c.Comment == nil {
			return nil, false
		}
		line := max(0, *c.LineNumber-1)
		out = append(out, annotations.Annotation{
			ID:              p.newID(),
			Range:           changes.Range{Start: line, End: line},
			Title:           titleFrom(*c.Comment),
			Body:            *c.Comment,
			OriginRequestID: requestID,
		})
	}
	return out, true
}

type rangeItem struct {
	LineRange   []int   `json:"lineRange"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (p *Parser) decodeRanges(data []byte, requestID string) ([]annotations.Annotation, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, false
	}

	var items []rangeItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false
	}

	out := make([]annotations.Annotation, 0, len(items))
	for _, it := range items {
		if len(it.LineRange) != 2 || it.Title == nil || it.Description == nil {
			return nil, false
		}
		start, end := it.LineRange[0], it.LineRange[1]
		if start > end {
			start, end = end, start
		}
		out = append(out, annotations.Annotation{
			ID:              p.newID(),
			Range:           changes.Range{Start: start, End: end},
			Title:           *it.Title,
			Body:            *it.Description,
			OriginRequestID: requestID,
		})
	}
	return out, true
}

// titleFrom takes the first sentence or line of a comment.
func titleFrom(comment string) string {
	title := strings.TrimSpace(comment)
	if i := strings.IndexAny(title, "\n"); i >= 0 {
		title = title[:i]
	}
	if i := strings.Index(title, ". "); i >= 0 {
		title = title[:i+1]
	}
	return truncate(title, maxTitleLen)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
