// Package ueclient implements the three-socket wire protocol a worker
// speaks to its UE simulator trio and gNB (spec §6): plain-ASCII symbol
// sends, response canonicalization, and alignment replay. Grounded on
// _examples/original_source/core_fuzzer.py's connectUE*/sendSymbol/
// canonical_ret/exec_sequence_align functions.
package ueclient

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// Ports names the three TCP ports a worker dials: base (main UE
// socket), base+1 (AMF probe socket), base+2 (SMF probe socket), per
// spec §4.6/§6.
type Ports struct {
	Base int
}

// Client holds the three UE sockets plus the gNB control socket.
type Client struct {
	host    string
	ports   Ports
	ue      net.Conn
	ueAMF   net.Conn
	ueSMF   net.Conn
	gnbPort int
	gnb     net.Conn

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// New builds a Client that will dial host on the given ports. Per spec
// §6, socket I/O is bounded by per-call timeouts between 0.5s and 5s;
// callers choose readTimeout/writeTimeout within that range.
func New(host string, ports Ports, gnbPort int, readTimeout, writeTimeout time.Duration) *Client {
	return &Client{host: host, ports: ports, gnbPort: gnbPort, readTimeout: readTimeout, writeTimeout: writeTimeout}
}

func dial(host string, port int, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), timeout)
}

// ConnectUE dials the main UE socket (base port) and drains any initial
// banner, matching connectUE().
func (c *Client) ConnectUE() error {
	conn, err := dial(c.host, c.ports.Base, 5*time.Second)
	if err != nil {
		return err
	}
	c.ue = conn
	c.drainBanner(conn)
	return nil
}

// ConnectUEAMF dials the AMF probe socket (base+1), matching connectUE2().
func (c *Client) ConnectUEAMF() error {
	conn, err := dial(c.host, c.ports.Base+1, 5*time.Second)
	if err != nil {
		return err
	}
	c.ueAMF = conn
	c.drainBanner(conn)
	return nil
}

// ConnectUESMF dials the SMF probe socket (base+2), matching connectUE3().
func (c *Client) ConnectUESMF() error {
	conn, err := dial(c.host, c.ports.Base+2, 5*time.Second)
	if err != nil {
		return err
	}
	c.ueSMF = conn
	c.drainBanner(conn)
	return nil
}

// ConnectGNB dials the gNB control socket, matching connectGNB().
func (c *Client) ConnectGNB() error {
	conn, err := dial(c.host, c.gnbPort, time.Second)
	if err != nil {
		return err
	}
	c.gnb = conn
	c.drainBanner(conn)
	return nil
}

func (c *Client) drainBanner(conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	buf := make([]byte, 1024)
	conn.Read(buf) //nolint:errcheck // best-effort banner drain; a timeout here is expected and not an error
}

// Close closes every open socket.
func (c *Client) Close() {
	for _, conn := range []net.Conn{c.ue, c.ueAMF, c.ueSMF, c.gnb} {
		if conn != nil {
			conn.Close()
		}
	}
	c.ue, c.ueAMF, c.ueSMF, c.gnb = nil, nil, nil, nil
}

// SendSymbolOn sends a raw symbol string on conn and reads the response,
// matching send_symbol_on's encode/send/recv-with-timeout shape.
func SendSymbolOn(conn net.Conn, symbol string, timeout time.Duration) (string, error) {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	if _, err := conn.Write([]byte(symbol)); err != nil {
		return "", err
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(buf[:n])), nil
}

// SendFuzzingMessage sends a raw byte payload on the main UE socket and
// returns the response, matching sendFuzzingMessage.
func (c *Client) SendFuzzingMessage(payload []byte) (string, error) {
	if err := c.ue.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return "", err
	}
	if _, err := c.ue.Write(payload); err != nil {
		return "", err
	}
	if err := c.ue.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return "", err
	}
	buf := make([]byte, 1024)
	n, err := c.ue.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(buf[:n])), nil
}

// SendSymbol sends symbol on the main UE socket, handling the
// "testMessage:<payload>" fuzzing-message shorthand (an embedded colon
// routes the suffix through SendFuzzingMessage instead of the plain
// symbol path), matching sendSymbol's dispatch.
func (c *Client) SendSymbol(symbol string, rrcRelease func() error) (string, error) {
	if strings.Contains(symbol, "serviceRequest") && rrcRelease != nil {
		if err := rrcRelease(); err != nil {
			return "", err
		}
		time.Sleep(100 * time.Millisecond)
	}
	if i := strings.Index(symbol, ":"); i >= 0 {
		if _, err := SendSymbolOn(c.ue, "testMessage", c.writeTimeout); err != nil {
			return "", err
		}
		return c.SendFuzzingMessage([]byte(symbol[i+1:]))
	}
	return SendSymbolOn(c.ue, symbol, c.writeTimeout)
}

// nullAction is the canonical placeholder for an empty, erroring, or
// otherwise unparseable response (spec §6 canonicalization rule).
const nullAction = "null_action"

var suppressedResponses = map[string]struct{}{
	"null_action":  {},
	"decode error": {},
	"error":        {},
	"timeout":      {},
}

// CanonicalRet canonicalizes a raw socket response into a comparable
// return-type symbol: trims whitespace, collapses known "nothing
// happened" shapes to null_action, and for a JSON object response
// extracts ret_type (falling back to ret_msg) — matching canonical_ret.
func CanonicalRet(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nullAction
	}
	low := strings.ToLower(s)
	if strings.Contains(low, "unknown fuzzing message name") {
		return nullAction
	}
	if _, ok := suppressedResponses[low]; ok {
		return nullAction
	}
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nullAction
		}
		rt, _ := obj["ret_type"].(string)
		if strings.TrimSpace(rt) == "" {
			rt, _ = obj["ret_msg"].(string)
		}
		rt = strings.TrimSpace(rt)
		if rt == "" {
			return nullAction
		}
		return rt
	}
	return s
}
