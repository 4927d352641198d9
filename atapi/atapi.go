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

// Package atapi is the public, blocking surface applications call: joining
// Wi-Fi, opening connections, naming/DNS/time helpers, flash persistence,
// and the supplemented WPS/web-server/station-manager/firmware operations.
// Every method submits one or more atengine.Command values and translates
// the result into a plain Go error.
package atapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sabouaram/goesp/atconn"
	"github.com/sabouaram/goesp/atengine"
	"github.com/sabouaram/goesp/atparser"
	"github.com/sabouaram/goesp/certificates/certs"
	"github.com/sabouaram/goesp/config"
	"github.com/sabouaram/goesp/duration"
	"github.com/sabouaram/goesp/netconn"
	"github.com/sabouaram/goesp/version"
)

// API is the entry point applications hold onto. It is safe for concurrent
// use: every method either submits to the engine's queue (itself
// serialized) or only reads from the connection table.
type API struct {
	eng   *atengine.Engine
	conns *atconn.Table
	cfg   config.Config
}

// New builds an API bound to eng/conns, using cfg for field-length limits
// enforced before a command is ever queued.
func New(eng *atengine.Engine, conns *atconn.Table, cfg config.Config) *API {
	return &API{eng: eng, conns: conns, cfg: cfg}
}

func (a *API) run(ctx context.Context, kind string, timeout time.Duration, lines ...string) (atengine.Result, error) {
	if timeout <= 0 {
		timeout = a.cfg.CommandTimeout
	}

	cmd := &atengine.Command{Kind: kind, Lines: lines, Timeout: timeout}
	if err := a.eng.Submit(ctx, cmd); err != nil {
		return atengine.Result{}, err
	}

	res := cmd.Wait()
	if res.Err != nil {
		return res, res.Err
	}

	switch res.Term {
	case atparser.TermOK, atparser.TermSendOK, atparser.TermAlreadyConnected:
		return res, nil
	case atparser.TermError:
		return res, ErrCommandRejected.Error(nil)
	case atparser.TermBusy:
		return res, atengine.ErrBusy.Error(nil)
	default:
		return res, ErrCommandRejected.Error(nil)
	}
}

// Handshake disables command echo and reads back the firmware version
// (AT+GMR), rejecting a radio outside the supported AT version range before
// any application traffic is submitted.
func (a *API) Handshake(ctx context.Context) (string, error) {
	if _, err := a.run(ctx, "ATE0", 0, "ATE0\r\n"); err != nil {
		return "", err
	}

	res, err := a.run(ctx, "GMR", 0, "AT+GMR\r\n")
	if err != nil {
		return "", err
	}

	raw := strings.Join(res.Raw, "\n")
	if verr := version.CheckRaw(raw); verr != nil {
		return raw, verr
	}

	return raw, nil
}

// Join associates with an access point (AT+CWJAP).
func (a *API) Join(ctx context.Context, ssid, password string) error {
	if len(ssid) == 0 || len(ssid) > a.cfg.SSIDMaxLen {
		return atengine.ErrArg.Error(nil)
	}
	if len(password) > a.cfg.PasswordMaxLen {
		return atengine.ErrArg.Error(nil)
	}

	line := fmt.Sprintf("AT+CWJAP=%q,%q\r\n", ssid, password)
	_, err := a.run(ctx, "CWJAP", 20*time.Second, line)

	return err
}

// Quit disassociates from the current access point (AT+CWQAP).
func (a *API) Quit(ctx context.Context) error {
	_, err := a.run(ctx, "CWQAP", 0, "AT+CWQAP\r\n")
	return err
}

// ReconnectConfigure sets the station's auto-reconnect interval and retry
// count (AT+CWRECONNCFG), mirroring the dev console's "reconn_set" command
// wired to lwesp_sta_reconnect_set_config. A zero interval disables
// auto-reconnect.
func (a *API) ReconnectConfigure(ctx context.Context, interval duration.Duration, repeatCount int) error {
	line := fmt.Sprintf("AT+CWRECONNCFG=%d,%d\r\n", int(interval.Time().Seconds()), repeatCount)
	_, err := a.run(ctx, "CWRECONNCFG", 0, line)

	return err
}

// Connect opens a client connection and wraps it in a netconn.Conn. kind
// must be one of atconn.KindTCP/KindUDP/KindSSL.
func (a *API) Connect(ctx context.Context, kind atconn.Kind, host string, port int) (*netconn.Conn, error) {
	slot := a.conns.AllocFree()
	if slot == nil {
		return nil, atengine.ErrNoFreeConn.Error(nil)
	}

	nc := netconn.New(a.eng, a.conns, slot.Index, kind, true, a.cfg.MaxDataLen)
	a.conns.PrepareSlot(slot.Index, kind, nc.Callback(), nil)

	proto := kindProto(kind)
	line := fmt.Sprintf("AT+CIPSTART=%d,%q,%q,%d\r\n", slot.Index, proto, host, port)

	if _, err := a.run(ctx, "CIPSTART", 10*time.Second, line); err != nil {
		return nil, err
	}

	return nc, nil
}

// Listen starts a TCP server on port and returns a netconn.Listener whose
// Accept hands back one netconn.Conn per client (AT+CIPSERVER).
func (a *API) Listen(ctx context.Context, port int) (*netconn.Listener, error) {
	return netconn.Listen(ctx, a.eng, a.conns, port, a.cfg.MaxDataLen)
}

func kindProto(k atconn.Kind) string {
	switch k {
	case atconn.KindUDP, atconn.KindUDPv6:
		return "UDP"
	case atconn.KindSSL, atconn.KindSSLv6:
		return "SSL"
	default:
		return "TCP"
	}
}

// ResolveDNS resolves host through the radio's resolver (AT+CIPDOMAIN).
func (a *API) ResolveDNS(ctx context.Context, host string) (string, error) {
	line := fmt.Sprintf("AT+CIPDOMAIN=%q\r\n", host)

	res, err := a.run(ctx, "CIPDOMAIN", 10*time.Second, line)
	if err != nil {
		return "", err
	}

	for _, raw := range res.Raw {
		if strings.HasPrefix(raw, "+CIPDOMAIN:") {
			return atparser.ParseQuotedOrBare(strings.TrimPrefix(raw, "+CIPDOMAIN:")), nil
		}
	}

	return "", ErrCommandRejected.Error(nil)
}

// Ping measures round-trip time to host (AT+PING).
func (a *API) Ping(ctx context.Context, host string) (time.Duration, error) {
	line := fmt.Sprintf("AT+PING=%q\r\n", host)

	res, err := a.run(ctx, "PING", 10*time.Second, line)
	if err != nil {
		return 0, err
	}

	for _, raw := range res.Raw {
		if strings.HasPrefix(raw, "+") {
			if ms, perr := strconv.Atoi(strings.TrimPrefix(raw, "+")); perr == nil {
				return time.Duration(ms) * time.Millisecond, nil
			}
		}
	}

	return 0, nil
}

// SNTPConfig enables or disables SNTP and sets the timezone/servers
// (AT+CIPSNTPCFG).
func (a *API) SNTPConfig(ctx context.Context, enable bool, timezone int, servers ...string) error {
	enableFlag := 0
	if enable {
		enableFlag = 1
	}

	parts := []string{strconv.Itoa(enableFlag), strconv.Itoa(timezone)}
	for _, s := range servers {
		parts = append(parts, strconv.Quote(s))
	}

	line := fmt.Sprintf("AT+CIPSNTPCFG=%s\r\n", strings.Join(parts, ","))
	_, err := a.run(ctx, "CIPSNTPCFG", 0, line)

	return err
}

// SNTPTime returns the radio's current SNTP-synchronized time string
// (AT+CIPSNTPTIME?).
func (a *API) SNTPTime(ctx context.Context) (string, error) {
	res, err := a.run(ctx, "CIPSNTPTIME", 0, "AT+CIPSNTPTIME?\r\n")
	if err != nil {
		return "", err
	}

	for _, raw := range res.Raw {
		if strings.HasPrefix(raw, "+CIPSNTPTIME:") {
			return strings.TrimPrefix(raw, "+CIPSNTPTIME:"), nil
		}
	}

	return "", ErrCommandRejected.Error(nil)
}

// Hostname returns the station's DHCP hostname (AT+CWHOSTNAME?).
func (a *API) Hostname(ctx context.Context) (string, error) {
	res, err := a.run(ctx, "CWHOSTNAME?", 0, "AT+CWHOSTNAME?\r\n")
	if err != nil {
		return "", err
	}

	for _, raw := range res.Raw {
		if strings.HasPrefix(raw, "+CWHOSTNAME:") {
			return atparser.ParseQuotedOrBare(strings.TrimPrefix(raw, "+CWHOSTNAME:")), nil
		}
	}

	return "", ErrCommandRejected.Error(nil)
}

// SetHostname sets the station's DHCP hostname (AT+CWHOSTNAME).
func (a *API) SetHostname(ctx context.Context, name string) error {
	line := fmt.Sprintf("AT+CWHOSTNAME=%q\r\n", name)
	_, err := a.run(ctx, "CWHOSTNAME", 0, line)

	return err
}

// SetDHCP enables or disables DHCP for mode (0 soft-AP, 1 station, 2 both,
// matching AT+CWDHCP's own encoding).
func (a *API) SetDHCP(ctx context.Context, mode int, enable bool) error {
	enableFlag := 0
	if enable {
		enableFlag = 1
	}

	line := fmt.Sprintf("AT+CWDHCP=%d,%d\r\n", mode, enableFlag)
	_, err := a.run(ctx, "CWDHCP", 0, line)

	return err
}

// flashNamespaces are the persisted regions lwesp_flash.c exposes; every
// write/erase is checked against this set before a command is queued.
var flashNamespaces = map[string]bool{
	"server-cert": true,
	"client-ca":   true,
	"client-cert": true,
	"client-key":  true,
	"phy-init":    true,
	"mqtt-config": true,
}

const flashAlign = 4

// FlashWrite persists data at offset within namespace. Offset and length
// must be 4-byte aligned, matching the firmware's flash sector granularity.
func (a *API) FlashWrite(ctx context.Context, namespace string, offset int, data []byte) error {
	if !flashNamespaces[namespace] {
		return ErrUnknownNamespace.Error(nil)
	}
	if offset%flashAlign != 0 || len(data)%flashAlign != 0 || len(data) == 0 {
		return ErrFlashAlignment.Error(nil)
	}

	line := fmt.Sprintf("AT+SYSFLASH=0,%q,%d,%d\r\n", namespace, offset, len(data))
	_, err := a.run(ctx, "SYSFLASH_WRITE", 5*time.Second, line, string(data))

	return err
}

const flashEraseAlign = 4096

// FlashErase erases namespace. length must be 4 KiB aligned.
func (a *API) FlashErase(ctx context.Context, namespace string, length int) error {
	if !flashNamespaces[namespace] {
		return ErrUnknownNamespace.Error(nil)
	}
	if length%flashEraseAlign != 0 || length == 0 {
		return ErrFlashAlignment.Error(nil)
	}

	line := fmt.Sprintf("AT+SYSFLASH=1,%q,%d\r\n", namespace, length)
	_, err := a.run(ctx, "SYSFLASH_ERASE", 5*time.Second, line)

	return err
}

// FlashClientCertificate validates keyPEM/certPEM as a matching pair, the
// way esp_mqtt_init verifies a client certificate before handing it to the
// TLS stack, then persists both under the client-cert/client-key namespaces.
// The radio terminates TLS itself; this only catches a malformed PEM pair
// before it is written to flash.
func (a *API) FlashClientCertificate(ctx context.Context, keyPEM, certPEM []byte) error {
	if _, err := certs.ParsePair(string(keyPEM), string(certPEM)); err != nil {
		return ErrInvalidCertificatePair.Error(err)
	}

	if err := a.FlashWrite(ctx, "client-key", 0, keyPEM); err != nil {
		return err
	}

	return a.FlashWrite(ctx, "client-cert", 0, certPEM)
}

// WPSMode selects push-button or PIN WPS activation.
type WPSMode int

const (
	WPSPushButton WPSMode = iota
	WPSPin
)

// WPSConfigure activates WPS on the soft-AP/station (AT+WPS), grounded on
// lwesp_wps.c's push-button/PIN distinction.
func (a *API) WPSConfigure(ctx context.Context, mode WPSMode) error {
	flag := 1
	if mode == WPSPin {
		flag = 2
	}

	line := fmt.Sprintf("AT+WPS=%d\r\n", flag)
	_, err := a.run(ctx, "WPS", 30*time.Second, line)

	return err
}

// WebServerEnable turns the built-in HTTP configuration server on or off
// (AT+WEBSERVER), wiring spec's parser-only "+WEBSERVER:" event to a real
// caller-triggerable operation.
func (a *API) WebServerEnable(ctx context.Context, enable bool, port int) error {
	enableFlag := 0
	if enable {
		enableFlag = 1
	}

	line := fmt.Sprintf("AT+WEBSERVER=%d,%d\r\n", enableFlag, port)
	_, err := a.run(ctx, "WEBSERVER", 0, line)

	return err
}

// StationManager configures the firmware's own auto-reconnect loop
// (AT+CWRECONNCFG), grounded on snippets/station_manager.c: the radio
// itself retries interval seconds apart, up to repeatCount times (0 means
// unlimited).
func (a *API) StationManager(ctx context.Context, interval time.Duration, repeatCount int) error {
	line := fmt.Sprintf("AT+CWRECONNCFG=%d,%d\r\n", int(interval.Seconds()), repeatCount)
	_, err := a.run(ctx, "CWRECONNCFG", 0, line)

	return err
}

// FirmwareUpdate triggers the vendor's own OTA command. It only issues the
// command and surfaces the terminal result; it does not implement a
// TFTP/OTA transfer of its own.
func (a *API) FirmwareUpdate(ctx context.Context) error {
	_, err := a.run(ctx, "CIUPDATE", 60*time.Second, "AT+CIUPDATE\r\n")
	return err
}
