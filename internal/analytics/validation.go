package analytics

import (
	"fmt"

	"github.com/penshort/shortlink/internal/model"
)

const ipHashLength = 64

// ValidateClickPayload validates click payload fields read back from the stream.
func ValidateClickPayload(payload ClickPayload) error {
	if payload.ShortlinkID <= 0 {
		return fmt.Errorf("shortlink_id is required")
	}
	if payload.IPHash != "" && (len(payload.IPHash) != ipHashLength || !isHex(payload.IPHash)) {
		return fmt.Errorf("ip_hash must be %d hex chars", ipHashLength)
	}
	if payload.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be set")
	}
	if len(payload.Referrer) > model.MaxReferrerLength {
		return fmt.Errorf("referrer too long")
	}
	if len(payload.UserAgent) > model.MaxUserAgentLength {
		return fmt.Errorf("user_agent too long")
	}
	return nil
}

func isHex(value string) bool {
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F') {
			continue
		}
		return false
	}
	return true
}
