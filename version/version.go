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

// Package version checks the AT firmware's reported version against the
// range this driver was built against, so a caller can refuse to drive a
// radio whose command set it does not understand.
package version

import (
	"regexp"

	hscvrs "github.com/hashicorp/go-version"

	liberr "github.com/sabouaram/goesp/errors"
)

// MinSupported and MaxExclusive bound the AT firmware versions this driver
// has been validated against. A firmware reporting 3.x or later is refused:
// its command set has diverged too far from what atparser/atengine expect.
var (
	MinSupported  = hscvrs.Must(hscvrs.NewVersion("2.0.0"))
	MaxExclusive  = hscvrs.Must(hscvrs.NewVersion("3.0.0"))
)

// atVersionRe extracts the AT command-set version from an AT+GMR response,
// e.g. "AT version:2.4.0.0(...)" — the leading two-to-four-component
// dotted number before any parenthesized build metadata.
var atVersionRe = regexp.MustCompile(`AT version:(\d+(?:\.\d+){1,3})`)

// Parse extracts the AT command-set version from raw AT+GMR output.
func Parse(raw string) (*hscvrs.Version, liberr.Error) {
	m := atVersionRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, ErrVersionUnparseable.Error(nil)
	}

	v, err := hscvrs.NewVersion(m[1])
	if err != nil {
		return nil, ErrVersionUnparseable.Error(err)
	}

	return v, nil
}

// Check reports whether v falls in [MinSupported, MaxExclusive).
func Check(v *hscvrs.Version) liberr.Error {
	if v.LessThan(MinSupported) || !v.LessThan(MaxExclusive) {
		return ErrVersionUnsupported.Error(nil)
	}

	return nil
}

// CheckRaw is the Parse+Check convenience used right after AT+GMR completes.
func CheckRaw(raw string) liberr.Error {
	v, err := Parse(raw)
	if err != nil {
		return err
	}

	return Check(v)
}
