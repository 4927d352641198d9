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

package atparser

import (
	"net/netip"
	"strings"
)

// ParseIP parses a bare or quoted IPv4/IPv6 literal as found in AT response
// fields (e.g. "192.168.1.1" or "2001:db8::1"). v6 is detected by the
// presence of a ':' before any ',' in the token.
func ParseIP(s string) (netip.Addr, bool) {
	s = ParseQuotedOrBare(s)
	if s == "" {
		return netip.Addr{}, false
	}

	if idx := strings.IndexAny(s, ",:"); idx >= 0 && s[idx] == ':' {
		return parseIPv6(s)
	}

	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}

	return a, true
}

// parseIPv6 expands a single "::" run-of-zeros and defers to netip for the
// rest, matching the source's limited v6 parser (one elision, no scope id).
func parseIPv6(s string) (netip.Addr, bool) {
	if !strings.Contains(s, "::") {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return netip.Addr{}, false
		}

		return a, true
	}

	parts := strings.SplitN(s, "::", 2)
	left := splitGroups(parts[0])
	right := splitGroups(parts[1])

	fill := 8 - len(left) - len(right)
	if fill < 0 {
		return netip.Addr{}, false
	}

	groups := append([]string{}, left...)
	for i := 0; i < fill; i++ {
		groups = append(groups, "0")
	}
	groups = append(groups, right...)

	a, err := netip.ParseAddr(strings.Join(groups, ":"))
	if err != nil {
		return netip.Addr{}, false
	}

	return a, true
}

func splitGroups(s string) []string {
	if s == "" {
		return nil
	}

	return strings.Split(s, ":")
}

// ParseMAC parses a colon- or dash-separated MAC address token.
func ParseMAC(s string) (string, bool) {
	s = ParseQuotedOrBare(s)
	s = strings.ReplaceAll(s, "-", ":")

	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return "", false
	}

	for _, p := range parts {
		if len(p) != 2 {
			return "", false
		}
	}

	return s, true
}
