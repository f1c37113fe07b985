package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"

	"treekv/core/types"
	"treekv/native/collections"
	"treekv/storage"
	"treekv/storage/treemap"
)

type invocation struct {
	store    storage.Database
	contract *collections.Contract
	caller   types.AccountID
	args     json.RawMessage
}

// handler is one entry of the call surface. Mutating handlers have their
// writes committed on success; all others run against a discarded overlay.
// init handlers run before the contract state exists.
type handler struct {
	mutating bool
	init     bool
	run      func(inv *invocation) (any, error)
}

var methods = map[string]handler{
	"new": {mutating: true, init: true, run: func(inv *invocation) (any, error) {
		if err := decodeArgs(inv.args, &struct{}{}); err != nil {
			return nil, err
		}
		_, err := collections.Initialize(inv.store)
		return nil, err
	}},
	"insert_flat_string": {mutating: true, run: func(inv *invocation) (any, error) {
		var args stringEntryArgs
		if err := decodeArgs(inv.args, &args); err != nil {
			return nil, err
		}
		if args.Key == nil || args.Value == nil {
			return nil, missing("key", "value")
		}
		return nil, inv.contract.InsertFlatString(*args.Key, *args.Value)
	}},
	"remove_flat_string": {mutating: true, run: func(inv *invocation) (any, error) {
		var args stringKeyArgs
		if err := decodeArgs(inv.args, &args); err != nil {
			return nil, err
		}
		if args.Key == nil {
			return nil, missing("key")
		}
		return nil, inv.contract.RemoveFlatString(*args.Key)
	}},
	"insert_flat_numeric": {mutating: true, run: func(inv *invocation) (any, error) {
		var args numericEntryArgs
		if err := decodeArgs(inv.args, &args); err != nil {
			return nil, err
		}
		if args.Key == nil || args.Value == nil {
			return nil, missing("key", "value")
		}
		return nil, inv.contract.InsertFlatNumeric(*args.Key, *args.Value)
	}},
	"remove_flat_numeric": {mutating: true, run: func(inv *invocation) (any, error) {
		var args numericKeyArgs
		if err := decodeArgs(inv.args, &args); err != nil {
			return nil, err
		}
		if args.Key == nil {
			return nil, missing("key")
		}
		return nil, inv.contract.RemoveFlatNumeric(*args.Key)
	}},
	"insert_owned_numeric": {mutating: true, run: func(inv *invocation) (any, error) {
		var args numericEntryArgs
		if err := decodeArgs(inv.args, &args); err != nil {
			return nil, err
		}
		if args.Key == nil || args.Value == nil {
			return nil, missing("key", "value")
		}
		return nil, inv.contract.InsertOwnedNumeric(inv.caller, *args.Key, *args.Value)
	}},
	"remove_owned_numeric": {mutating: true, run: func(inv *invocation) (any, error) {
		var args numericKeyArgs
		if err := decodeArgs(inv.args, &args); err != nil {
			return nil, err
		}
		if args.Key == nil {
			return nil, missing("key")
		}
		return nil, inv.contract.RemoveOwnedNumeric(inv.caller, *args.Key)
	}},
	"remove_owner_entries": {mutating: true, run: func(inv *invocation) (any, error) {
		if err := decodeArgs(inv.args, &struct{}{}); err != nil {
			return nil, err
		}
		return nil, inv.contract.RemoveOwnerEntries(inv.caller)
	}},

	"get_flat_string": {run: func(inv *invocation) (any, error) {
		var args stringKeyArgs
		if err := decodeArgs(inv.args, &args); err != nil {
			return nil, err
		}
		if args.Key == nil {
			return nil, missing("key")
		}
		return optional(inv.contract.GetFlatString(*args.Key))
	}},
	"get_flat_numeric": {run: func(inv *invocation) (any, error) {
		var args numericKeyArgs
		if err := decodeArgs(inv.args, &args); err != nil {
			return nil, err
		}
		if args.Key == nil {
			return nil, missing("key")
		}
		return optional(inv.contract.GetFlatNumeric(*args.Key))
	}},
	"get_owned_numeric": {run: func(inv *invocation) (any, error) {
		var args ownedKeyArgs
		if err := decodeArgs(inv.args, &args); err != nil {
			return nil, err
		}
		if args.Key == nil {
			return nil, missing("key")
		}
		owner, err := inv.owner(args.Owner)
		if err != nil {
			return nil, err
		}
		return optional(inv.contract.GetOwnedNumeric(owner, *args.Key))
	}},
	"list_flat_strings": {run: func(inv *invocation) (any, error) {
		var args stringRangeArgs
		if err := decodeArgs(inv.args, &args); err != nil {
			return nil, err
		}
		entries, err := inv.contract.FlatStrings(args.From, args.To)
		return toEntries(entries), err
	}},
	"list_flat_numerics": {run: func(inv *invocation) (any, error) {
		var args numericBoundsArgs
		if err := decodeArgs(inv.args, &args); err != nil {
			return nil, err
		}
		entries, err := inv.contract.FlatNumerics(args.From, args.To)
		return toEntries(entries), err
	}},
	"list_owned_numerics": {run: func(inv *invocation) (any, error) {
		var args numericRangeArgs
		if err := decodeArgs(inv.args, &args); err != nil {
			return nil, err
		}
		owner, err := inv.owner(args.Owner)
		if err != nil {
			return nil, err
		}
		entries, err := inv.contract.OwnedNumerics(owner, args.From, args.To)
		return toEntries(entries), err
	}},
	"list_owners": {run: func(inv *invocation) (any, error) {
		if err := decodeArgs(inv.args, &struct{}{}); err != nil {
			return nil, err
		}
		return inv.contract.Owners()
	}},
}

// Methods returns the names of every supported call in no particular order.
func Methods() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	return names
}

type stringEntryArgs struct {
	Key   *string `json:"key"`
	Value *string `json:"value"`
}

type stringKeyArgs struct {
	Key *string `json:"key"`
}

type numericEntryArgs struct {
	Key   *types.U128 `json:"key"`
	Value *string     `json:"value"`
}

type numericKeyArgs struct {
	Key *types.U128 `json:"key"`
}

type ownedKeyArgs struct {
	Owner string      `json:"owner,omitempty"`
	Key   *types.U128 `json:"key"`
}

type stringRangeArgs struct {
	From *string `json:"from,omitempty"`
	To   *string `json:"to,omitempty"`
}

type numericBoundsArgs struct {
	From *types.U128 `json:"from,omitempty"`
	To   *types.U128 `json:"to,omitempty"`
}

type numericRangeArgs struct {
	Owner string      `json:"owner,omitempty"`
	From  *types.U128 `json:"from,omitempty"`
	To    *types.U128 `json:"to,omitempty"`
}

type entry[K any] struct {
	Key   K      `json:"key"`
	Value string `json:"value"`
}

func toEntries[K any](in []treemap.Entry[K, string]) []entry[K] {
	out := make([]entry[K], 0, len(in))
	for _, e := range in {
		out = append(out, entry[K]{Key: e.Key, Value: e.Value})
	}
	return out
}

// optional turns a lookup into a JSON null when the key is absent.
func optional(value string, found bool, err error) (any, error) {
	if err != nil || !found {
		return nil, err
	}
	return value, nil
}

func (inv *invocation) owner(raw string) (types.AccountID, error) {
	if raw == "" {
		return inv.caller, nil
	}
	return types.ParseAccountID(raw)
}

func decodeArgs(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		trimmed = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrInvalidArgs)
	}
	return nil
}

func missing(fields ...string) error {
	return fmt.Errorf("%w: %q required", ErrInvalidArgs, fields)
}
