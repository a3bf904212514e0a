package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FunctionName is one of the function names a page runtime accepts.
type FunctionName string

const (
	FnScrollPage      FunctionName = "scroll_page"
	FnScrollToContent FunctionName = "scroll_to_content"
	FnGoBackToTop     FunctionName = "go_back_to_top"
	FnClickElement    FunctionName = "click_element"
	FnFillField       FunctionName = "fill_field"
	FnToggleElement   FunctionName = "toggle_element"
	FnNavigateToPage  FunctionName = "navigate_to_page"
	FnGetPageContext  FunctionName = "get_page_context"
)

// Functions lists the catalogue in a stable order
var Functions = []FunctionName{
	FnScrollPage,
	FnScrollToContent,
	FnGoBackToTop,
	FnClickElement,
	FnFillField,
	FnToggleElement,
	FnNavigateToPage,
	FnGetPageContext,
}

// LookupFunction reports whether name is in the catalogue
func LookupFunction(name string) (FunctionName, bool) {
	for _, fn := range Functions {
		if string(fn) == name {
			return fn, true
		}
	}
	return "", false
}

// Kind separates fire-and-forget commands from ones the caller waits on
type Kind int

const (
	KindMutating Kind = iota
	KindRead
)

func (k Kind) String() string {
	if k == KindRead {
		return "read"
	}
	return "mutating"
}

// Kind reports whether callers wait for the function's response
func (f FunctionName) Kind() Kind {
	if f == FnGetPageContext {
		return KindRead
	}
	return KindMutating
}

// DetailLevel bounds the size of a page context snapshot
type DetailLevel string

const (
	DetailMinimal  DetailLevel = "minimal"
	DetailStandard DetailLevel = "standard"
	DetailDetailed DetailLevel = "detailed"
)

// ParseDetailLevel defaults to standard for empty or unknown values
func ParseDetailLevel(s string) DetailLevel {
	switch DetailLevel(strings.ToLower(strings.TrimSpace(s))) {
	case DetailMinimal:
		return DetailMinimal
	case DetailDetailed:
		return DetailDetailed
	default:
		return DetailStandard
	}
}

// Command is the closed set of typed commands. Every implementation lives in
// this file; executors switch over them exhaustively.
type Command interface {
	Function() FunctionName
	command()
}

type ScrollPage struct {
	Direction     string `json:"direction"`
	TargetSection string `json:"target_section"`
}

type ScrollToContent struct{}

type GoBackToTop struct{}

type ClickElement struct {
	TargetText     string `json:"target_text"`
	ElementType    string `json:"element_type"`
	NthMatch       Index  `json:"nth_match"`
	ContextText    string `json:"context_text"`
	ParentContains string `json:"parent_contains"`
	ElementIndex   *Index `json:"element_index"`
}

// Context returns the disambiguating text, preferring context_text
func (c ClickElement) Context() string {
	if c.ContextText != "" {
		return c.ContextText
	}
	return c.ParentContains
}

type FillField struct {
	Value     string `json:"value"`
	FieldHint string `json:"field_hint"`
}

type ToggleElement struct {
	Target string `json:"target"`
}

type NavigateToPage struct {
	URL      string `json:"url"`
	PageName string `json:"page_name"`
}

type GetPageContext struct {
	DetailLevel DetailLevel `json:"detail_level"`
}

func (ScrollPage) Function() FunctionName      { return FnScrollPage }
func (ScrollToContent) Function() FunctionName { return FnScrollToContent }
func (GoBackToTop) Function() FunctionName     { return FnGoBackToTop }
func (ClickElement) Function() FunctionName    { return FnClickElement }
func (FillField) Function() FunctionName       { return FnFillField }
func (ToggleElement) Function() FunctionName   { return FnToggleElement }
func (NavigateToPage) Function() FunctionName  { return FnNavigateToPage }
func (GetPageContext) Function() FunctionName  { return FnGetPageContext }

func (ScrollPage) command()      {}
func (ScrollToContent) command() {}
func (GoBackToTop) command()     {}
func (ClickElement) command()    {}
func (FillField) command()       {}
func (ToggleElement) command()   {}
func (NavigateToPage) command()  {}
func (GetPageContext) command()  {}

// ParseCommand turns a function name and its loosely typed parameters into
// a Command, validating required fields.
func ParseCommand(name string, params map[string]any) (Command, error) {
	fn, ok := LookupFunction(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}

	var cmd Command
	var err error
	switch fn {
	case FnScrollPage:
		var c ScrollPage
		err = decodeParams(params, &c)
		if err == nil && c.Direction == "" && c.TargetSection == "" {
			c.Direction = "down"
		}
		cmd = c
	case FnScrollToContent:
		cmd = ScrollToContent{}
	case FnGoBackToTop:
		cmd = GoBackToTop{}
	case FnClickElement:
		var c ClickElement
		err = decodeParams(params, &c)
		if err == nil && strings.TrimSpace(c.TargetText) == "" && c.ElementIndex == nil {
			err = fmt.Errorf("%w: target_text or element_index is required", ErrInvalidParams)
		}
		if err == nil && (c.NthMatch < 0 || (c.ElementIndex != nil && *c.ElementIndex < 0)) {
			err = fmt.Errorf("%w: indexes must not be negative", ErrInvalidParams)
		}
		cmd = c
	case FnFillField:
		var c FillField
		err = decodeParams(params, &c)
		if err == nil {
			if _, present := params["value"]; !present {
				err = fmt.Errorf("%w: value is required", ErrInvalidParams)
			}
		}
		cmd = c
	case FnToggleElement:
		var c ToggleElement
		err = decodeParams(params, &c)
		if err == nil && strings.TrimSpace(c.Target) == "" {
			err = fmt.Errorf("%w: target is required", ErrInvalidParams)
		}
		cmd = c
	case FnNavigateToPage:
		var c NavigateToPage
		err = decodeParams(params, &c)
		if err == nil && strings.TrimSpace(c.URL) == "" {
			err = fmt.Errorf("%w: url is required", ErrInvalidParams)
		}
		cmd = c
	case FnGetPageContext:
		var raw struct {
			DetailLevel string `json:"detail_level"`
		}
		err = decodeParams(params, &raw)
		cmd = GetPageContext{DetailLevel: ParseDetailLevel(raw.DetailLevel)}
	}
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

func decodeParams(params map[string]any, v any) error {
	if len(params) == 0 {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// Index is a non-negative position that also accepts numeric strings,
// since agents send "2" as often as 2.
type Index int

func (i *Index) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
		if len(data) == 0 {
			return nil
		}
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	*i = Index(int(f))
	return nil
}
