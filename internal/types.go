package internal

type SourceFormat string

const (
	FormatXLSX  SourceFormat = "xlsx"
	FormatCSV   SourceFormat = "csv"
	FormatPDF   SourceFormat = "pdf"
	FormatImage SourceFormat = "image"
	FormatHTML  SourceFormat = "html"
)

func SupportedFormat(f SourceFormat) bool {
	switch f {
	case FormatXLSX, FormatCSV, FormatPDF, FormatImage, FormatHTML:
		return true
	default:
		return false
	}
}

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyVES Currency = "VES"
)

func SupportedCurrency(c Currency) bool {
	return c == CurrencyUSD || c == CurrencyVES
}

// ListState is the processing state machine of a PriceList:
// PENDING -> PROCESSING -> COMPLETED, PROCESSING -> ERROR.
type ListState string

const (
	ListPending    ListState = "PENDING"
	ListProcessing ListState = "PROCESSING"
	ListCompleted  ListState = "COMPLETED"
	ListError      ListState = "ERROR"
)

type PriceList struct {
	ID           int
	CompanyID    string
	SupplierName string
	ListDate     *string
	Currency     Currency
	ExchangeRate *float64 // VES per reference unit; required for VES lists
	SourceRef    string
	SourceFormat SourceFormat
	State        ListState
	ProductCount int
	ErrorMessage *string
	CreatedAt    string
	UpdatedAt    string
}

// RawRecord is one line item as returned by the extraction capability,
// before normalization and persistence.
type RawRecord struct {
	Code       *string  `json:"code,omitempty"`
	Name       string   `json:"name"`
	Packaging  *string  `json:"packaging,omitempty"`
	Price      float64  `json:"price"`
	Unit       *string  `json:"unit,omitempty"`
	Brand      *string  `json:"brand,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type ListRecord struct {
	ID             int
	ListID         int
	OriginalCode   *string
	OriginalName   string
	NormalizedName string
	Packaging      *string
	Unit           *string
	UnitPrice      float64
	Currency       Currency
	Brand          *string
	Confidence     float64 // extraction confidence, 0..100
	CatalogID      *int
}

// CatalogEntry is the company-scoped canonical product used as the join
// key across supplier lists.
type CatalogEntry struct {
	ID             int
	CompanyID      string
	Code           string
	CanonicalName  string
	AlternateNames []string
	Packaging      *string
	Unit           *string
	Category       *string
	Brand          *string
	Active         bool
}

type RunState string

const (
	RunPending RunState = "PENDING"
	RunRunning RunState = "RUNNING"
	RunDone    RunState = "DONE"
	RunError   RunState = "ERROR"
)

type ComparisonRun struct {
	ID            int
	CompanyID     string
	ListIDs       []int
	TotalCompared int
	Matched       int
	MatchRate     float64
	State         RunState
	CreatedAt     string
}

type SupplierPrice struct {
	SupplierName string   `json:"supplierName"`
	Price        float64  `json:"price"`
	Currency     Currency `json:"currency"`
	PriceUSD     float64  `json:"priceUSD"`
	Confidence   float64  `json:"confidencePercent"`
	RecordID     int      `json:"recordId"`
	ListID       int      `json:"listId"`
}

type BestPrice struct {
	SupplierName string  `json:"supplierName"`
	Amount       float64 `json:"amount"`
}

const AnomalyAbnormalRise = "abnormal-rise"

type ComparisonResult struct {
	ID          int
	RunID       int
	CatalogID   *int
	ProductName string
	Prices      []SupplierPrice
	Best        BestPrice
	SpreadPct   float64
	Anomaly     *string
}

// ComparisonStats aggregates a finished run.
type ComparisonStats struct {
	TotalCompared     int
	Matched           int
	WithSavings       int // spread above the small reporting threshold
	AvgSpreadPct      float64
	BestSupplier      string
	BestSupplierShare float64 // share of compared products it wins, 0..1
	Anomalies         int
}

// ProcessStats is returned by the list processor for one run.
type ProcessStats struct {
	ListID        int
	Extracted     int
	Matched       int
	AvgConfidence float64
	ElapsedMs     int64
	TokensUsed    int
	EstimatedCost float64
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
