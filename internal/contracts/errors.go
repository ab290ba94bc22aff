// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: July 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package contracts

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy of the engine. Read-path lookups
// against an unknown key are not errors — callers get an empty result
// and Kind is never observed for them.
type Kind int

const (
	KeyUnknown Kind = iota
	ChannelClosed
	ChannelFull
	LockPoisoned
	InvariantViolated
	NumericIllConditioned
	ConfigInvalid
)

func (k Kind) String() string {
	switch k {
	case KeyUnknown:
		return "key_unknown"
	case ChannelClosed:
		return "channel_closed"
	case ChannelFull:
		return "channel_full"
	case LockPoisoned:
		return "lock_poisoned"
	case InvariantViolated:
		return "invariant_violated"
	case NumericIllConditioned:
		return "numeric_ill_conditioned"
	case ConfigInvalid:
		return "config_invalid"
	default:
		return "unknown"
	}
}

// Error is the engine's typed error. It carries a Kind so callers can
// branch on error category without string matching, and wraps an
// optional underlying cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, contracts.ErrConfigInvalid) etc. work by Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// NewError builds a typed error of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a typed error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// sentinels usable with errors.Is(err, contracts.ErrConfigInvalid) style checks.
var (
	ErrConfigInvalid = &Error{Kind: ConfigInvalid, Msg: "invalid configuration"}
	ErrChannelClosed = &Error{Kind: ChannelClosed, Msg: "channel closed"}
	ErrLockPoisoned  = &Error{Kind: LockPoisoned, Msg: "lock poisoned"}
)

// Recover converts a recovered panic value into a LockPoisoned error,
// mirroring the spec's "surfaces as a textual error without panicking the
// process" requirement for poisoned locks (Go has no native mutex
// poisoning; a panic while a critical section is held is the closest
// analogue).
func Recover(r interface{}) error {
	if r == nil {
		return nil
	}
	return Wrap(LockPoisoned, "recovered panic in critical section", fmt.Errorf("%v", r))
}
