/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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
 */

// Package pidctl implements a small PID-style step generator used to spread a
// duration range (e.g. an AT command's retry backoff) over a non-linear
// sequence of intermediate points instead of a plain linear ramp.
package pidctl

import "context"

// Controller generates an intermediate step sequence between two values,
// biasing step size using proportional, integral and derivative gains.
type Controller struct {
	rateP float64
	rateI float64
	rateD float64
}

// New creates a Controller with the given PID gains.
func New(rateP, rateI, rateD float64) *Controller {
	return &Controller{rateP: rateP, rateI: rateI, rateD: rateD}
}

// RangeCtx produces the sequence of intermediate values walking from 'from'
// towards 'to'. Each step is adjusted by accumulated error (integral term)
// and the change since the previous step (derivative term), which makes the
// sequence converge faster as it nears the target than a fixed linear step
// would. The walk stops early if ctx is done.
func (c *Controller) RangeCtx(ctx context.Context, from, to float64) []float64 {
	res := []float64{from}

	if from == to {
		return res
	}

	dir := 1.0
	if to < from {
		dir = -1.0
	}

	span := (to - from) * dir
	if span <= 0 {
		return res
	}

	var (
		integral float64
		prevErr  = span
		cur      = from
	)

	for i := 0; i < 64; i++ {
		select {
		case <-ctx.Done():
			return res
		default:
		}

		remaining := (to - cur) * dir
		if remaining <= 0 {
			break
		}

		integral += remaining
		derivative := prevErr - remaining
		prevErr = remaining

		step := c.rateP*remaining + c.rateI*integral + c.rateD*derivative
		if step <= 0 {
			step = remaining * 0.1
		}
		if step > remaining {
			step = remaining
		}

		cur += step * dir
		res = append(res, cur)

		if remaining-step < span*0.001 {
			break
		}
	}

	if res[len(res)-1] != to {
		res = append(res, to)
	}

	return res
}
