package parse

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"tidbyt.dev/transit/model"
)

type transferRecord struct {
	FromStopID      string `csv:"from_stop_id"`
	ToStopID        string `csv:"to_stop_id"`
	TransferType    int8   `csv:"transfer_type"`
	MinTransferTime string `csv:"min_transfer_time"`
}

// Only stop-to-stop transfers are kept. Records scoped to specific
// routes or trips are not distinguished, and the first record for a
// stop pair wins.
func (p *staticParser) parseTransfers(data io.Reader) error {
	seen := map[[2]string]bool{}

	return eachRecord(data, func(row int, t *transferRecord) error {
		if t.FromStopID == "" || t.ToStopID == "" {
			return fmt.Errorf("missing from_stop_id or to_stop_id")
		}
		if !p.stops[t.FromStopID] {
			return fmt.Errorf("unknown from_stop_id '%s'", t.FromStopID)
		}
		if !p.stops[t.ToStopID] {
			return fmt.Errorf("unknown to_stop_id '%s'", t.ToStopID)
		}

		transferType := model.TransferType(t.TransferType)
		if transferType < model.TransferTypeRecommended || transferType > model.TransferTypeNotPossible {
			return fmt.Errorf("invalid transfer_type %d", t.TransferType)
		}

		var minTime int32
		if t.MinTransferTime != "" {
			n, err := strconv.Atoi(t.MinTransferTime)
			if err != nil {
				return errors.Wrap(err, "parsing min_transfer_time")
			}
			if n < 0 {
				return fmt.Errorf("negative min_transfer_time")
			}
			minTime = int32(n)
		} else if transferType == model.TransferTypeMinTime {
			return fmt.Errorf("transfer_type 2 without min_transfer_time")
		}

		key := [2]string{t.FromStopID, t.ToStopID}
		if seen[key] {
			return nil
		}
		seen[key] = true

		return p.writer.WriteTransfer(model.Transfer{
			FromStopID:      t.FromStopID,
			ToStopID:        t.ToStopID,
			Type:            transferType,
			MinTransferTime: minTime,
		})
	})
}
