package engine

import (
	"encoding/json"

	phraseerrors "phrasepool.dev/errors"
)

func unmarshalInto(value string, out interface{}) error {
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return phraseerrors.ErrUnmarshal
	}
	return nil
}
