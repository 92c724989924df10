// Copyright 2025 Arion Yau
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

package zmq

import (
	"fmt"
)

// Wire protocol: DEALER side frames are
//
//	["", PROTOCOL, command, body]
//
// and the ROUTER side sees the sender identity in front of them.
const (
	PROTOCOL = "SMH01"

	CMD_READY      = "READY"
	CMD_MESSAGE    = "MESSAGE"
	CMD_HEARTBEAT  = "HEARTBEAT"
	CMD_DISCONNECT = "DISCONNECT"
)

// frame is a parsed protocol message without routing identity
type frame struct {
	command string
	body    []byte
}

// parseFrames validates the delimiter and protocol header of parts
func parseFrames(parts [][]byte) (frame, error) {
	if len(parts) < 3 {
		return frame{}, fmt.Errorf("malformed message: %d parts", len(parts))
	}
	if len(parts[0]) != 0 {
		return frame{}, fmt.Errorf("malformed message: missing empty delimiter")
	}
	if string(parts[1]) != PROTOCOL {
		return frame{}, fmt.Errorf("unsupported protocol %q", parts[1])
	}

	f := frame{command: string(parts[2])}
	switch f.command {
	case CMD_READY, CMD_HEARTBEAT, CMD_DISCONNECT:
	case CMD_MESSAGE:
		if len(parts) < 4 || len(parts[3]) == 0 {
			return frame{}, fmt.Errorf("message command without body")
		}
		f.body = parts[3]
	default:
		return frame{}, fmt.Errorf("unknown command %q", f.command)
	}
	return f, nil
}

// buildFrames returns the parts for command and optional body
func buildFrames(command string, body []byte) []interface{} {
	parts := []interface{}{"", PROTOCOL, command}
	if body != nil {
		parts = append(parts, body)
	}
	return parts
}
