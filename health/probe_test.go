package health

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSDP = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=sample\r\n" +
	"t=0 0\r\n" +
	"m=video 0 RTP/AVP 96\r\n" +
	"a=rtpmap:96 H264/90000\r\n"

// fakeRTSPServer answers exactly one DESCRIBE and records the request.
func fakeRTSPServer(t *testing.T, statusCode int, status, body string, gotReq *string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		var req strings.Builder
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			req.WriteString(line)
			if strings.TrimSpace(line) == "" {
				break
			}
		}
		if gotReq != nil {
			*gotReq = req.String()
		}
		resp := fmt.Sprintf("RTSP/1.0 %d %s\r\nCSeq: 1\r\n", statusCode, status)
		if body != "" {
			resp += fmt.Sprintf("Content-Type: application/sdp\r\nContent-Length: %d\r\n", len(body))
		}
		resp += "\r\n" + body
		conn.Write([]byte(resp))
	}()
	return ln.Addr().String()
}

func TestProbeReachable(t *testing.T) {
	addr := fakeRTSPServer(t, 200, "OK", sampleSDP, nil)
	err := Probe(fmt.Sprintf("rtsp://%s/live", addr), time.Second)
	assert.NoError(t, err)
}

func TestProbeSendsDescribeWithAuth(t *testing.T) {
	var req string
	addr := fakeRTSPServer(t, 200, "OK", sampleSDP, &req)
	err := Probe(fmt.Sprintf("rtsp://user:pass@%s/live", addr), time.Second)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(req, "DESCRIBE "))
	assert.Contains(t, req, "Accept: application/sdp")
	// user:pass base64
	assert.Contains(t, req, "Authorization: Basic dXNlcjpwYXNz")
}

func TestProbeRejectsErrorStatus(t *testing.T) {
	addr := fakeRTSPServer(t, 404, "Not Found", "", nil)
	err := Probe(fmt.Sprintf("rtsp://%s/live", addr), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestProbeRejectsEmptySDP(t *testing.T) {
	addr := fakeRTSPServer(t, 200, "OK", "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=empty\r\nt=0 0\r\n", nil)
	err := Probe(fmt.Sprintf("rtsp://%s/live", addr), time.Second)
	assert.Error(t, err)
}

func TestProbeRejectsOversizedBody(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil || strings.TrimSpace(line) == "" {
				break
			}
		}
		conn.Write([]byte("RTSP/1.0 200 OK\r\nCSeq: 1\r\nContent-Length: 1048576\r\n\r\n"))
	}()

	err = Probe(fmt.Sprintf("rtsp://%s/live", ln.Addr().String()), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestProbeUnreachableHost(t *testing.T) {
	// a listener that is immediately closed leaves a refused port behind
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = Probe(fmt.Sprintf("rtsp://%s/live", addr), 200*time.Millisecond)
	assert.Error(t, err)
}

func TestProbeInvalidURL(t *testing.T) {
	err := Probe("rtsp://%%bad", time.Second)
	assert.Error(t, err)
}
