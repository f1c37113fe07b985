package events

import (
	"encoding/hex"
	"strconv"

	"treekv/core/types"
)

const (
	TypeOwnerMapCreated  = "collections.owner_map_created"
	TypeOwnerMapDetached = "collections.owner_map_detached"
)

// OwnerMapCreated is emitted when an owner's first insert allocates a fresh
// inner map.
type OwnerMapCreated struct {
	Owner      types.AccountID
	Generation uint64
	Prefix     []byte
}

func (OwnerMapCreated) EventType() string { return TypeOwnerMapCreated }

func (e OwnerMapCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnerMapCreated,
		Attributes: map[string]string{
			"owner":      e.Owner.String(),
			"generation": strconv.FormatUint(e.Generation, 10),
			"prefix":     hex.EncodeToString(e.Prefix),
		},
	}
}

// OwnerMapDetached is emitted when an owner's descriptor is removed. The inner
// map's nodes stay in the store; Entries counts them.
type OwnerMapDetached struct {
	Owner      types.AccountID
	Generation uint64
	Entries    uint64
}

func (OwnerMapDetached) EventType() string { return TypeOwnerMapDetached }

func (e OwnerMapDetached) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnerMapDetached,
		Attributes: map[string]string{
			"owner":      e.Owner.String(),
			"generation": strconv.FormatUint(e.Generation, 10),
			"entries":    strconv.FormatUint(e.Entries, 10),
		},
	}
}
