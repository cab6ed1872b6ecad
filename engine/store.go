package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"

	phraseerrors "phrasepool.dev/errors"
)

// Storage collections. Rounds, Phrasesets, Votes, and ResultViews are kept
// as system-owned Nakama storage objects (UserID is the system user) rather
// than per-player objects: the engine itself is the only writer, and several
// operations (the Round Coordinator reading a copy round's prompt round,
// the Vote Service scanning eligible phrasesets) need to look a record up
// or scan a collection without already knowing which player owns it.
// Ownership for access-control purposes is instead checked against the
// PlayerID/Contributors fields carried inside the JSON body.
const (
	collRounds       = "engine_rounds"
	collPhrasesets   = "engine_phrasesets"
	collVotes        = "engine_votes"
	collResultViews  = "engine_result_views"
	collPlayerState  = "engine_player_state"
	collAbandonments = "engine_abandonments"
)

// ObjectStore wraps Nakama's storage engine with typed get/put/list helpers
// and optimistic-concurrency (Version) plumbing — the same
// read-modify-write-with-OCC-version shape the teacher uses for item
// progression (items/progression.go's PrepareProgressionUpdate).
type ObjectStore struct {
	nk runtime.NakamaModule
}

func NewObjectStore(nk runtime.NakamaModule) *ObjectStore {
	return &ObjectStore{nk: nk}
}

func (s *ObjectStore) get(ctx context.Context, collection, key string, out interface{}) (version string, found bool, err error) {
	objects, err := s.nk.StorageRead(ctx, []*runtime.StorageRead{
		{Collection: collection, Key: key, UserID: ""},
	})
	if err != nil {
		return "", false, fmt.Errorf("storage read %s/%s: %w", collection, key, err)
	}
	if len(objects) == 0 {
		return "", false, nil
	}
	if err := json.Unmarshal([]byte(objects[0].Value), out); err != nil {
		return "", false, phraseerrors.ErrUnmarshal
	}
	return objects[0].Version, true, nil
}

// put writes value at key with an OCC version guard. Pass "" for version to
// create-or-overwrite unconditionally (acceptable for the first write of a
// new entity, since its key is a fresh UUID and cannot collide).
func (s *ObjectStore) put(ctx context.Context, collection, key string, value interface{}, version string) (newVersion string, err error) {
	body, err := json.Marshal(value)
	if err != nil {
		return "", phraseerrors.ErrMarshal
	}
	acks, err := s.nk.StorageWrite(ctx, []*runtime.StorageWrite{
		{
			Collection:      collection,
			Key:             key,
			UserID:          "",
			Value:           string(body),
			Version:         version,
			PermissionRead:  1,
			PermissionWrite: 0,
		},
	})
	if err != nil {
		return "", fmt.Errorf("storage write %s/%s: %w", collection, key, err)
	}
	if len(acks) == 0 {
		return "", phraseerrors.ErrInternal
	}
	return acks[0].Version, nil
}

func (s *ObjectStore) writeOp(collection, key string, value interface{}, version string) (*runtime.StorageWrite, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return nil, phraseerrors.ErrMarshal
	}
	return &runtime.StorageWrite{
		Collection:      collection,
		Key:             key,
		UserID:          "",
		Value:           string(body),
		Version:         version,
		PermissionRead:  1,
		PermissionWrite: 0,
	}, nil
}

// listAll paginates through an entire collection. Acceptable at this
// module's scale (active rounds / open phrasesets number in the hundreds,
// not millions); a higher-volume deployment would maintain a secondary
// index instead of a full collection scan.
func (s *ObjectStore) listAll(ctx context.Context, collection string) ([]*runtime.StorageObject, error) {
	var all []*runtime.StorageObject
	cursor := ""
	for {
		objects, nextCursor, err := s.nk.StorageList(ctx, "", "", collection, 100, cursor)
		if err != nil {
			return nil, fmt.Errorf("storage list %s: %w", collection, err)
		}
		all = append(all, objects...)
		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}
	return all, nil
}
