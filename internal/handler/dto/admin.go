package dto

import (
	"time"

	"github.com/penshort/shortlink/internal/config"
	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/utm"
)

// ParameterSetRequest is the body of parameter set create and update calls.
// Enabled defaults to true on create.
type ParameterSetRequest struct {
	ID               string   `json:"id"`
	Label            string   `json:"label"`
	Description      string   `json:"description,omitempty"`
	Enabled          *bool    `json:"enabled,omitempty"`
	Source           string   `json:"source,omitempty"`
	Medium           string   `json:"medium,omitempty"`
	Campaign         string   `json:"campaign,omitempty"`
	Term             string   `json:"term,omitempty"`
	Content          string   `json:"content,omitempty"`
	CustomParameters []string `json:"custom_parameters,omitempty"`
}

// ToModel converts the request into a ParameterSet.
func (r ParameterSetRequest) ToModel() *model.ParameterSet {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &model.ParameterSet{
		ID:               r.ID,
		Label:            r.Label,
		Description:      r.Description,
		Enabled:          enabled,
		Source:           r.Source,
		Medium:           r.Medium,
		Campaign:         r.Campaign,
		Term:             r.Term,
		Content:          r.Content,
		CustomParameters: r.CustomParameters,
	}
}

// PreviewResponse lists the parameters a set resolves to.
type PreviewResponse struct {
	ParameterSetID string     `json:"parameter_set_id"`
	Parameters     []utm.Pair `json:"parameters"`
}

// TargetRequest is the body of PUT /api/v1/targets/{type}/{id}.
type TargetRequest struct {
	Bundle       string `json:"bundle,omitempty"`
	Label        string `json:"label"`
	Published    bool   `json:"published"`
	CanonicalURL string `json:"canonical_url"`
}

// AliasRequest is the body of PUT /api/v1/aliases.
type AliasRequest struct {
	Alias      string `json:"alias"`
	SystemPath string `json:"system_path"`
}

// DeletedResponse reports how many rows a delete removed.
type DeletedResponse struct {
	Deleted int64 `json:"deleted"`
}

// TotalClicksResponse is returned by GET /api/v1/reports/total.
type TotalClicksResponse struct {
	Clicks int64      `json:"clicks"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
}

// TopShortlinksResponse is returned by GET /api/v1/reports/top.
type TopShortlinksResponse struct {
	Data []model.ShortlinkClicks `json:"data"`
}

// ClickListResponse lists raw click events.
type ClickListResponse struct {
	Data []*model.ClickEvent `json:"data"`
}

// IssueListResponse lists broken destinations ordered by shortlink id.
type IssueListResponse struct {
	Data    []model.DestinationIssue `json:"data"`
	Flagged bool                     `json:"flagged"`
}

// RedirectChainListResponse lists destinations answering with a redirect.
type RedirectChainListResponse struct {
	Data []model.RedirectChain `json:"data"`
}

// SettingsResponse wraps the active module settings.
type SettingsResponse struct {
	Settings config.Settings `json:"settings"`
}
