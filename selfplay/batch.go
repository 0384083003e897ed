package selfplay

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
)

// EncodeBatch serializes a contiguous slice of records as a JSON array.
// Callers flushing incrementally pass the sub-range they want; nothing
// here requires the whole store.
func EncodeBatch(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(records)
}

// DecodeBatch parses a JSON array of records. A malformed element is
// dropped and the rest of the batch still decodes: one corrupted game
// must not discard an entire flush. Only a payload that is not a JSON
// array at all fails. Drops are logged at debug level; callers wanting
// a count must instrument here.
func DecodeBatch(data []byte) ([]Record, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(raw))
	for i, elem := range raw {
		rec, err := DecodeRecord(elem)
		if err != nil {
			log.Debug().Err(err).Int("index", i).Msg("dropping malformed record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadBatchFile reads a whole batch file and decodes it into *records.
// Unlike the per-element tolerance above, a read or top-level parse
// failure fails the call as a whole and leaves *records untouched. On
// success *records is replaced with the decoded batch.
func LoadBatchFile(path string, records *[]Record) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	decoded, err := DecodeBatch(data)
	if err != nil {
		return err
	}
	*records = decoded
	return nil
}
