package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		fn      string
		params  map[string]any
		want    Command
		wantErr error
	}{
		{
			name:   "scroll defaults to down",
			fn:     "scroll_page",
			params: nil,
			want:   ScrollPage{Direction: "down"},
		},
		{
			name:   "click with string nth",
			fn:     "click_element",
			params: map[string]any{"target_text": "Add to Cart", "nth_match": "1", "parent_contains": "Red"},
			want:   ClickElement{TargetText: "Add to Cart", NthMatch: 1, ParentContains: "Red"},
		},
		{
			name:   "click with float nth",
			fn:     "click_element",
			params: map[string]any{"target_text": "Buy", "nth_match": 2.0},
			want:   ClickElement{TargetText: "Buy", NthMatch: 2},
		},
		{
			name:    "click without target",
			fn:      "click_element",
			params:  map[string]any{"element_type": "button"},
			wantErr: ErrInvalidParams,
		},
		{
			name:    "fill without value",
			fn:      "fill_field",
			params:  map[string]any{"field_hint": "email"},
			wantErr: ErrInvalidParams,
		},
		{
			name:   "fill with empty value clears",
			fn:     "fill_field",
			params: map[string]any{"value": "", "field_hint": "email"},
			want:   FillField{FieldHint: "email"},
		},
		{
			name:    "toggle without target",
			fn:      "toggle_element",
			wantErr: ErrInvalidParams,
		},
		{
			name:    "navigate without url",
			fn:      "navigate_to_page",
			params:  map[string]any{"page_name": "pricing"},
			wantErr: ErrInvalidParams,
		},
		{
			name: "page context defaults to standard",
			fn:   "get_page_context",
			want: GetPageContext{DetailLevel: DetailStandard},
		},
		{
			name:   "page context minimal",
			fn:     "get_page_context",
			params: map[string]any{"detail_level": "MINIMAL"},
			want:   GetPageContext{DetailLevel: DetailMinimal},
		},
		{
			name:    "unknown function",
			fn:      "open_pod_bay_doors",
			wantErr: ErrUnknownFunction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.fn, tt.params)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, FunctionName(tt.fn), got.Function())
		})
	}
}

func TestClickElementIndex(t *testing.T) {
	cmd, err := ParseCommand("click_element", map[string]any{"element_index": 3})
	require.NoError(t, err)
	click := cmd.(ClickElement)
	require.NotNil(t, click.ElementIndex)
	assert.Equal(t, Index(3), *click.ElementIndex)
}

func TestFunctionKinds(t *testing.T) {
	for _, fn := range Functions {
		want := KindMutating
		if fn == FnGetPageContext {
			want = KindRead
		}
		assert.Equal(t, want, fn.Kind(), string(fn))
	}
}

func TestTopicsAndRequestID(t *testing.T) {
	assert.Equal(t, "commands/abc", CommandTopic("abc"))
	assert.Equal(t, "responses/abc", ResponseTopic("abc"))
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "call_1-1700000000123", NewRequestID("call_1", at))
}
