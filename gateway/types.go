package gateway

import "encoding/json"

// StampInfo is the gateway's view of a postage stamp batch. Optional fields
// vary across gateway versions; pointers distinguish absent from zero.
type StampInfo struct {
	BatchID       string   `json:"batchID"`
	Utilization   *float64 `json:"utilization"`
	Usable        bool     `json:"usable"`
	Label         string   `json:"label,omitempty"`
	Depth         int      `json:"depth"`
	Amount        string   `json:"amount"`
	BucketDepth   int      `json:"bucketDepth"`
	ImmutableFlag bool     `json:"immutableFlag"`
	BatchTTL      int64    `json:"batchTTL"`

	BlockNumber        *int64 `json:"blockNumber,omitempty"`
	Exists             *bool  `json:"exists,omitempty"`
	Start              *int64 `json:"start,omitempty"`
	Owner              string `json:"owner,omitempty"`
	ExpectedExpiration string `json:"expectedExpiration,omitempty"`
	Local              *bool  `json:"local,omitempty"`
}

type StampList struct {
	Stamps     []StampInfo `json:"stamps"`
	TotalCount int         `json:"total_count"`
}

// PurchaseRequest creates a new stamp batch. DurationHours is the preferred
// parameter; Amount is the legacy PLUR quantity.
type PurchaseRequest struct {
	DurationHours *int    `json:"duration_hours,omitempty"`
	Size          string  `json:"size,omitempty"`
	Depth         *int    `json:"depth,omitempty"`
	Label         string  `json:"label,omitempty"`
	Amount        *uint64 `json:"amount,omitempty"`
}

type PurchaseResponse struct {
	BatchID string `json:"batchID"`
	Message string `json:"message,omitempty"`
}

type ExtendRequest struct {
	Amount uint64 `json:"amount"`
}

type ExtendResponse struct {
	BatchID string `json:"batchID"`
	Message string `json:"message,omitempty"`
}

// UploadResult is the outcome of a data upload. SignedDocument is only
// present when notary signing was requested.
type UploadResult struct {
	Reference      string          `json:"reference"`
	SignedDocument json.RawMessage `json:"signed_document,omitempty"`
	Message        string          `json:"message,omitempty"`
}

type WalletInfo struct {
	WalletAddress string `json:"walletAddress"`
	BZZBalance    string `json:"bzzBalance"`
}

type ChequebookInfo struct {
	ChequebookAddress string `json:"chequebookAddress"`
	AvailableBalance  string `json:"availableBalance"`
	TotalBalance      string `json:"totalBalance"`
}

// PoolStatus describes the pre-warmed stamp reserve. Map keys are decimal
// depth strings.
type PoolStatus struct {
	Enabled           bool                `json:"enabled"`
	ReserveConfig     map[string]int      `json:"reserve_config"`
	CurrentLevels     map[string]int      `json:"current_levels"`
	AvailableStamps   map[string][]string `json:"available_stamps"`
	TotalStamps       int                 `json:"total_stamps"`
	LowReserveWarning bool                `json:"low_reserve_warning"`
	LastCheck         string              `json:"last_check,omitempty"`
	NextCheck         string              `json:"next_check,omitempty"`
	Errors            []string            `json:"errors,omitempty"`
}

type AcquireRequest struct {
	Size  string `json:"size,omitempty"`
	Depth *int   `json:"depth,omitempty"`
}

// AcquireResponse reports a pool acquisition. FallbackUsed is set when the
// pool substituted a larger size class than requested.
type AcquireResponse struct {
	Success      bool   `json:"success"`
	BatchID      string `json:"batch_id,omitempty"`
	Depth        int    `json:"depth,omitempty"`
	SizeName     string `json:"size_name,omitempty"`
	Message      string `json:"message"`
	FallbackUsed bool   `json:"fallback_used"`
}

// HealthIssue is one diagnostic from the stamp health check.
type HealthIssue struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// StampHealth is the gateway-side health check result: errors block uploads,
// warnings do not.
type StampHealth struct {
	StampID   string         `json:"stamp_id"`
	CanUpload bool           `json:"can_upload"`
	Errors    []HealthIssue  `json:"errors,omitempty"`
	Warnings  []HealthIssue  `json:"warnings,omitempty"`
	Status    map[string]any `json:"status,omitempty"`
}

type NotaryInfo struct {
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
	Address   string `json:"address,omitempty"`
	Message   string `json:"message,omitempty"`
}
