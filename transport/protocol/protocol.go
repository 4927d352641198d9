/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package protocol defines the small transport-protocol enum shared by the
// remote syslog hook and the device connection layer: both only ever need to
// pick between TCP, UDP, and "whatever the local platform defaults to".
package protocol

import "strings"

// NetworkProtocol identifies a transport-layer protocol for a network endpoint.
type NetworkProtocol uint8

const (
	// NetworkEmpty means no explicit protocol was given; the caller should
	// fall back to a platform default (e.g. the local syslog socket).
	NetworkEmpty NetworkProtocol = iota
	NetworkTCP
	NetworkUDP
	NetworkUnix
	NetworkUnixGram
)

// Parse maps a case-insensitive string (as found in config files) to a NetworkProtocol.
// An unrecognized value returns NetworkEmpty.
func Parse(s string) NetworkProtocol {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp", "tcp4", "tcp6":
		return NetworkTCP
	case "udp", "udp4", "udp6":
		return NetworkUDP
	case "unix":
		return NetworkUnix
	case "unixgram":
		return NetworkUnixGram
	default:
		return NetworkEmpty
	}
}

// String returns the net.Dial-compatible network name for the protocol.
func (n NetworkProtocol) String() string {
	switch n {
	case NetworkTCP:
		return "tcp"
	case NetworkUDP:
		return "udp"
	case NetworkUnix:
		return "unix"
	case NetworkUnixGram:
		return "unixgram"
	default:
		return ""
	}
}

// Code returns a short, stable identifier suitable for use as a map/cache key.
func (n NetworkProtocol) Code() string {
	if s := n.String(); s != "" {
		return s
	}

	return "local"
}
