package core

import (
	"time"

	"github.com/PaulFidika/mealkit/ledger"
	"github.com/PaulFidika/mealkit/mealwindow"
	"github.com/PaulFidika/mealkit/reject"
)

// ScanResponse is the caller-facing outcome of a scan.
type ScanResponse struct {
	Accepted  bool            `json:"accepted"`
	MealSlot  mealwindow.Slot `json:"meal_slot,omitempty"`
	RecordID  string          `json:"record_id,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	Reason    reject.Reason   `json:"reason,omitempty"`
	Detail    map[string]any  `json:"detail,omitempty"`
	Retryable bool            `json:"retryable,omitempty"`
}

// Respond renders the result of Scan or RecordManual. Errors that are not
// rejections are reported as StorageUnavailable without their cause.
func Respond(rec ledger.Record, err error) ScanResponse {
	if err == nil {
		ts := rec.Timestamp
		return ScanResponse{
			Accepted:  true,
			MealSlot:  rec.Slot,
			RecordID:  rec.ID.String(),
			Timestamp: &ts,
		}
	}
	e, ok := reject.As(err)
	if !ok {
		return ScanResponse{Reason: reject.StorageUnavailable, Retryable: true}
	}
	return ScanResponse{
		Reason:    e.Reason,
		Detail:    e.Detail,
		Retryable: reject.Retryable(e),
	}
}
