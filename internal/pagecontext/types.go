package pagecontext

// Hard caps on snapshot size. Extraction truncates at these limits.
const (
	MaxNavigation      = 20
	MaxNavTextLen      = 50
	MaxInteractive     = 100
	MaxInteractiveText = 200
	MaxForms           = 5
	MaxFormFields      = 20
	MaxSections        = 10
	MaxLandmarks       = 20
	MaxLandmarkItems   = 10
	MaxTextNodes       = 100
	MaxDataKeys        = 50
	MaxDataValues      = 10
	MaxDataValueLen    = 200
	MaxInputFields     = 50
	MaxContainers      = 30
	MaxClickables      = 10
	MaxArticleExcerpt  = 500
	MaxArticleMarkdown = 4000
)

// Snapshot is a bounded description of a page. Only the fields for the
// requested detail level are set; the rest are omitted from JSON.
type Snapshot struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Timestamp  int64  `json:"timestamp"`
	Navigation []Link `json:"navigation"`

	InteractiveElements []Interactive `json:"interactiveElements,omitempty"`
	PageType            string        `json:"pageType,omitempty"`

	Forms           []Form       `json:"forms,omitempty"`
	ContentSections []Section    `json:"contentSections,omitempty"`
	DeepContext     *DeepContext `json:"deepContext,omitempty"`
}

// Link is a navigation entry
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Interactive is a clickable element with its inferred purpose. Index can be
// passed back as click_element's element_index.
type Interactive struct {
	Index       int    `json:"index"`
	Type        string `json:"type"`
	Text        string `json:"text"`
	Purpose     string `json:"purpose"`
	ItemContext string `json:"itemContext,omitempty"`
	VisibleText string `json:"visibleText,omitempty"`
	Title       string `json:"title,omitempty"`
	Role        string `json:"role,omitempty"`
	Href        string `json:"href,omitempty"`
}

// Form lists a form's fillable fields
type Form struct {
	ID     string  `json:"id,omitempty"`
	Fields []Field `json:"fields"`
}

// Field is one form control
type Field struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Label       string `json:"label,omitempty"`
}

// Section is a content region
type Section struct {
	Heading    string `json:"heading,omitempty"`
	HasButtons bool   `json:"hasButtons"`
}

// DeepContext is the detailed-level bundle
type DeepContext struct {
	SemanticStructure []Landmark          `json:"semanticStructure"`
	TextContent       []TextNode          `json:"textContent"`
	DataAttributes    map[string][]string `json:"dataAttributes"`
	InputFields       []InputField        `json:"inputFields"`
	VisualHierarchy   []Container         `json:"visualHierarchy"`
	Article           *Article            `json:"article,omitempty"`
}

// Landmark is a semantic region with its outline
type Landmark struct {
	Tag       string     `json:"tag"`
	Role      string     `json:"role,omitempty"`
	ID        string     `json:"id,omitempty"`
	Classes   []string   `json:"classes,omitempty"`
	AriaLabel string     `json:"ariaLabel,omitempty"`
	Headings  []Heading  `json:"headings,omitempty"`
	Lists     [][]string `json:"lists,omitempty"`
	Tables    [][]string `json:"tables,omitempty"`
}

// Heading is an h1-h6 entry
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// TextNode is visible short text with the context needed to interpret it
type TextNode struct {
	Text           string            `json:"text"`
	Tag            string            `json:"tag"`
	Label          string            `json:"label,omitempty"`
	DataAttributes map[string]string `json:"dataAttributes,omitempty"`
	Classes        []string          `json:"classes,omitempty"`
}

// InputField is a visible control with its resolved label
type InputField struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Value       string `json:"value,omitempty"`
	Label       string `json:"label,omitempty"`
	ItemContext string `json:"itemContext,omitempty"`
	NearbyText  string `json:"nearbyText,omitempty"`
}

// Container is a card or grid cell
type Container struct {
	Tag              string           `json:"tag"`
	Classes          []string         `json:"classes,omitempty"`
	Heading          string           `json:"heading,omitempty"`
	Text             string           `json:"text,omitempty"`
	Clickables       []Clickable      `json:"clickableElements,omitempty"`
	InputFields      []string         `json:"inputFields,omitempty"`
	QuantityControls *QuantityControl `json:"quantityControls,omitempty"`
}

// Clickable is a control inside a container
type Clickable struct {
	Text    string `json:"text"`
	Type    string `json:"type"`
	Purpose string `json:"purpose"`
}

// QuantityControl is a quantity stepper or select
type QuantityControl struct {
	Kind     string `json:"kind"` // "stepper" or "select"
	Name     string `json:"name,omitempty"`
	Value    string `json:"value,omitempty"`
	Increase string `json:"increase,omitempty"`
	Decrease string `json:"decrease,omitempty"`
}

// Article is a readability digest of the main content
type Article struct {
	Title    string `json:"title,omitempty"`
	Byline   string `json:"byline,omitempty"`
	SiteName string `json:"siteName,omitempty"`
	Excerpt  string `json:"excerpt,omitempty"`
	Markdown string `json:"markdown,omitempty"` // article body, truncated
}
