package alert

import (
	"strconv"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
)

// ForTransaction builds the alert for a resolved transaction. Confirmed
// transactions produce no alert.
func ForTransaction(entry model.HistoryEntry, network string) (Alert, bool) {
	var typ AlertType
	var title string
	switch entry.Status {
	case model.TxStatusFailed:
		typ, title = AlertTypeTxFailed, "Transaction failed"
	case model.TxStatusTimeout:
		typ, title = AlertTypeTxTimeout, "Transaction timed out"
	case model.TxStatusDropped:
		typ, title = AlertTypeTxDropped, "Transaction dropped"
	default:
		return Alert{}, false
	}

	fields := map[string]string{
		"tx_id":         entry.ID,
		"priority":      entry.Priority.String(),
		"confirmations": strconv.Itoa(entry.ConfirmationCount),
		"age":           entry.LastUpdatedAt.Sub(entry.CreatedAt).Round(time.Second).String(),
	}
	if entry.Hash != "" {
		fields["hash"] = entry.Hash
	}

	return Alert{
		Type:    typ,
		Chain:   entry.Chain.String(),
		Network: network,
		Title:   title,
		Message: entry.LastError,
		Fields:  fields,
	}, true
}
