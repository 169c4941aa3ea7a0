package model

// IssueType names a broken-destination condition.
type IssueType string

const (
	IssueDeleted     IssueType = "deleted"
	IssueUnpublished IssueType = "unpublished"
	IssueInvalidPath IssueType = "invalid_path"
)

// DestinationIssue describes why a shortlink destination is broken.
type DestinationIssue struct {
	ShortlinkID int64     `json:"shortlink_id"`
	Label       string    `json:"label"`
	Path        string    `json:"path"`
	Type        IssueType `json:"type"`
	Message     string    `json:"message"`
}

// RedirectChain records a destination that answered with a 3xx.
type RedirectChain struct {
	ShortlinkID int64  `json:"shortlink_id"`
	Label       string `json:"label"`
	URL         string `json:"url"`
	Status      int    `json:"status"`
	Location    string `json:"location"`
}
