// Package analysis defines core types shared across pipeline subsystems.
package analysis

import "time"

// Status represents the lifecycle state of an analysis record.
type Status string

// Record status values persisted in the result store.
const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Category tags a recommendation with the analyzer that produced it.
type Category string

// Recommendation categories, one per analyzer capability.
const (
	CategoryText          Category = "TEXT"
	CategorySEO           Category = "SEO"
	CategoryPerformance   Category = "PERFORMANCE"
	CategoryAccessibility Category = "A11Y"
	CategorySecurity      Category = "SECURITY"
	CategoryStructure     Category = "STRUCTURE"
)

// Recommendation is a single advisory item surfaced to the client.
type Recommendation struct {
	Message  string   `json:"message"`
	Category Category `json:"category"`
}

// Entity is a named entity recognized in the page text.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Sentiment holds normalized sentiment scores for the page text.
// Positive, Negative and Neutral are in [0,1]; Compound is in [-1,1].
type Sentiment struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Compound float64 `json:"compound"`
}

// TextData is the text analyzer's structured output.
type TextData struct {
	FrequencyDistribution map[string]int `json:"frequency_distribution"`
	Entities              []Entity       `json:"entities"`
	Sentiment             Sentiment      `json:"sentiment"`
	Language              string         `json:"language,omitempty"`
}

// SEOData is the SEO analyzer's structured output.
type SEOData struct {
	HasTitleTag       bool   `json:"has_title_tag"`
	TitleLength       int    `json:"title_length"`
	HasDescriptionTag bool   `json:"has_description_tag"`
	DescriptionLength int    `json:"description_length"`
	HasH1             bool   `json:"has_h1"`
	CanonicalURL      string `json:"canonical_url,omitempty"`
}

// PerformanceData is the performance analyzer's structured output.
type PerformanceData struct {
	PageSizeBytes    int   `json:"page_size_bytes"`
	ScriptCount      int   `json:"script_count"`
	StylesheetCount  int   `json:"stylesheet_count"`
	ImageCount       int   `json:"image_count"`
	InlineStyleCount int   `json:"inline_style_count"`
	FetchMillis      int64 `json:"fetch_millis"`
}

// AccessibilityData is the accessibility analyzer's structured output.
type AccessibilityData struct {
	HasAltForImages         bool `json:"has_alt_for_images"`
	MissingAltCount         int  `json:"missing_alt_count"`
	HasProperHeadings       bool `json:"has_proper_headings"`
	HasHTMLLang             bool `json:"has_html_lang"`
	FormInputsWithoutLabels int  `json:"form_inputs_without_labels"`
}

// SecurityData is the security analyzer's structured output.
type SecurityData struct {
	UsesHTTPS           bool `json:"uses_https"`
	ValidSSLCertificate bool `json:"valid_ssl_certificate"`
	HSTSHeader          bool `json:"hsts_header"`
	ContentTypeOptions  bool `json:"content_type_options"`
	FrameOptions        bool `json:"frame_options"`
	CSPHeader           bool `json:"csp_header"`
}

// StructureData is the structure analyzer's structured output.
type StructureData struct {
	RedirectCount     int  `json:"redirect_count"`
	BrokenLinksCount  int  `json:"broken_links_count"`
	CheckedLinksCount int  `json:"checked_links_count"`
	HasSitemap        bool `json:"has_sitemap"`
	HasRobotsTxt      bool `json:"has_robots_txt"`
	NavCount          int  `json:"nav_count"`
	FooterCount       int  `json:"footer_count"`
}

// Report is the unified output of one aggregator pass. It is transient:
// the results stage maps it into the persisted Record.
type Report struct {
	FrequencyDistribution map[string]int    `json:"frequency_distribution"`
	Entities              []Entity          `json:"entities"`
	Sentiment             Sentiment         `json:"sentiment"`
	SEOData               SEOData           `json:"seo_data"`
	PerformanceData       PerformanceData   `json:"performance_data"`
	AccessibilityData     AccessibilityData `json:"accessibility_data"`
	SecurityData          SecurityData      `json:"security_data"`
	StructureData         StructureData     `json:"structure_data"`
	Recommendations       []Recommendation  `json:"recommendations"`
}

// Record is the durable analysis row, one per correlation id.
// Analyzer fields stay empty until the record transitions to completed.
type Record struct {
	CorrelationID string     `json:"correlation_id"`
	URL           string     `json:"url"`
	Status        Status     `json:"status"`
	Report        Report     `json:"report"`
	ErrorText     string     `json:"error_text,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// View is the public projection of a Record returned by the gateway and
// mirrored into the cache. Cache entries are this struct, serialized.
type View struct {
	CorrelationID         string            `json:"correlation_id"`
	Status                Status            `json:"status"`
	FrequencyDistribution map[string]int    `json:"frequency_distribution"`
	Entities              []Entity          `json:"entities"`
	Sentiment             Sentiment         `json:"sentiment"`
	SEOData               SEOData           `json:"seo_data"`
	PerformanceData       PerformanceData   `json:"performance_data"`
	AccessibilityData     AccessibilityData `json:"accessibility_data"`
	SecurityData          SecurityData      `json:"security_data"`
	StructureData         StructureData     `json:"structure_data"`
	Recommendations       []Recommendation  `json:"recommendations"`
}

// NewView builds the public projection of a record.
func NewView(rec Record) View {
	return View{
		CorrelationID:         rec.CorrelationID,
		Status:                rec.Status,
		FrequencyDistribution: rec.Report.FrequencyDistribution,
		Entities:              rec.Report.Entities,
		Sentiment:             rec.Report.Sentiment,
		SEOData:               rec.Report.SEOData,
		PerformanceData:       rec.Report.PerformanceData,
		AccessibilityData:     rec.Report.AccessibilityData,
		SecurityData:          rec.Report.SecurityData,
		StructureData:         rec.Report.StructureData,
		Recommendations:       rec.Report.Recommendations,
	}
}

// ParseJob is the envelope published to the parse queue at submission.
type ParseJob struct {
	CorrelationID string `json:"correlation_id"`
	URL           string `json:"url"`
}

// ParseResult carries extracted page content to the analyze queue.
type ParseResult struct {
	CorrelationID string `json:"correlation_id"`
	URL           string `json:"url"`
	Content       string `json:"content"`
}

// AnalyzeResult carries the merged report to the results queue.
type AnalyzeResult struct {
	CorrelationID string `json:"correlation_id"`
	URL           string `json:"url"`
	Report        Report `json:"report"`
}
