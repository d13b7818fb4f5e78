// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package frame implements the wire-level framing shared by every byte
// on an elysium connection: a u32 big-endian length prefix around a
// body that is either a cleartext handshake payload or an AES-256-GCM
// sealed application payload.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/elysium-mesh/elysium/internal/errs"
)

// MaxSize is the largest body a frame may carry, per the frame codec's
// FrameTooLarge boundary.
const MaxSize = 16 * 1024 * 1024

// Type tags the outer frame as either the cleartext handshake payload
// or an encrypted application payload. It doubles as the frame-type
// byte bound into the AEAD associated data.
type Type byte

const (
	TypeHandshake Type = 0x01
	TypeData      Type = 0x02
)

func (t Type) valid() bool {
	return t == TypeHandshake || t == TypeData
}

// Write encodes body behind a u32 big-endian length prefix.
func Write(w io.Writer, body []byte) error {
	if len(body) > MaxSize {
		return errs.ErrFrameTooLarge
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// Read decodes one length-prefixed body from r, rejecting lengths over
// MaxSize without reading the oversized body.
func Read(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxSize {
		return nil, errs.ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}
