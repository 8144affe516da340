/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	statusOK    byte = 0
	statusError byte = 1

	maxFrame = 1 << 20
)

type windowRequest struct {
	Table  string
	Offset int
	Length int
}

// request: u16 nameLen | name | u32 offset | u32 length
func encodeRequest(req windowRequest) []byte {
	buf := make([]byte, 2+len(req.Table)+8)
	binary.BigEndian.PutUint16(buf, uint16(len(req.Table)))
	copy(buf[2:], req.Table)

	n := 2 + len(req.Table)
	binary.BigEndian.PutUint32(buf[n:], uint32(req.Offset))
	binary.BigEndian.PutUint32(buf[n+4:], uint32(req.Length))

	return buf
}

func readRequest(r io.Reader) (windowRequest, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return windowRequest{}, err
	}

	body := make([]byte, int(binary.BigEndian.Uint16(hdr[:]))+8)
	if _, err := io.ReadFull(r, body); err != nil {
		return windowRequest{}, fmt.Errorf("truncated request: %w", err)
	}

	n := len(body) - 8

	return windowRequest{
		Table:  string(body[:n]),
		Offset: int(binary.BigEndian.Uint32(body[n:])),
		Length: int(binary.BigEndian.Uint32(body[n+4:])),
	}, nil
}

// response: u8 status | u32 len | payload
func encodeResponse(status byte, payload []byte) []byte {
	buf := make([]byte, 5+len(payload))
	buf[0] = status
	binary.BigEndian.PutUint32(buf[1:], uint32(len(payload)))
	copy(buf[5:], payload)

	return buf
}

func readResponse(r io.Reader) ([]byte, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(hdr[1:])
	if size > maxFrame {
		return nil, fmt.Errorf("%w: %d bytes", errFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("truncated response: %w", err)
	}

	if hdr[0] != statusOK {
		return nil, &RemoteError{Message: string(payload)}
	}

	return payload, nil
}

func decodeResponse(msg []byte) ([]byte, error) {
	return readResponse(bytesReader(msg))
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
