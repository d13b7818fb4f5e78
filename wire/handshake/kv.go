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

// Package handshake implements the cleartext HELLO/ACK exchange that
// establishes a session: canonical length-delimited key/value framing,
// plus the sealed-session-key envelope carried in ACK.
package handshake

import (
	"encoding/binary"
	"fmt"
)

// kvEncode writes an ordered list of (key, value) pairs as:
// u8 keyLen || key || u32-BE valLen || value, repeated, with no outer
// length (the caller's frame.Write length-prefixes the whole thing).
func kvEncode(pairs [][2][]byte) []byte {
	var out []byte
	for _, kv := range pairs {
		key, val := kv[0], kv[1]
		out = append(out, byte(len(key)))
		out = append(out, key...)
		var lv [4]byte
		binary.BigEndian.PutUint32(lv[:], uint32(len(val)))
		out = append(out, lv[:]...)
		out = append(out, val...)
	}
	return out
}

// kvDecode parses the encoding above into a key->value map; the pair
// order is not kept, and a repeated key keeps its last value.
func kvDecode(body []byte) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for len(body) > 0 {
		if len(body) < 1 {
			return nil, fmt.Errorf("handshake kv: truncated key length")
		}
		klen := int(body[0])
		body = body[1:]
		if len(body) < klen+4 {
			return nil, fmt.Errorf("handshake kv: truncated key/value length")
		}
		key := string(body[:klen])
		body = body[klen:]
		vlen := int(binary.BigEndian.Uint32(body[:4]))
		body = body[4:]
		if len(body) < vlen {
			return nil, fmt.Errorf("handshake kv: truncated value")
		}
		out[key] = body[:vlen]
		body = body[vlen:]
	}
	return out, nil
}
