package sharing

import "time"

// GrantResponse is the outward-facing representation of a share grant.
type GrantResponse struct {
	GrantID    string     `json:"grantId"`
	DocumentID string     `json:"documentId"`
	GranteeID  string     `json:"granteeId"`
	GranterID  string     `json:"granterId"`
	Level      string     `json:"level"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func toResponse(grant ShareGrant) GrantResponse {
	return GrantResponse{
		GrantID:    grant.ID,
		DocumentID: grant.DocumentID,
		GranteeID:  grant.GranteeID,
		GranterID:  grant.GranterID,
		Level:      string(grant.Level),
		ExpiresAt:  grant.ExpiresAt,
		CreatedAt:  grant.CreatedAt,
	}
}

// BulkGrantItem is the per-grantee outcome returned by bulk grant.
type BulkGrantItem struct {
	GranteeID string         `json:"granteeId"`
	OK        bool           `json:"ok"`
	Error     string         `json:"error,omitempty"`
	Grant     *GrantResponse `json:"grant,omitempty"`
}
