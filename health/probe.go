// Package health checks upstream RTSP reachability for supervised streams.
package health

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pixelbender/go-sdp/sdp"
)

const rtspVersion = "RTSP/1.0"

// maxDescribeBody caps what we are willing to read from an upstream; a real
// SDP answer is a few hundred bytes.
const maxDescribeBody = 64 << 10

// Probe issues a single DESCRIBE against the source URL and reports whether
// the upstream answered with a usable session description. It is a
// reachability check only, far cheaper than pulling the stream.
func Probe(rawURL string, timeout time.Duration) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse source url: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "554")
	}

	conn, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", host, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	req := fmt.Sprintf("DESCRIBE %s %s\r\n", rawURL, rtspVersion)
	req += "CSeq: 1\r\n"
	req += "Accept: application/sdp\r\n"
	req += "User-Agent: CamGateway\r\n"
	if user := u.User; user != nil {
		pass, _ := user.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(user.Username() + ":" + pass))
		req += fmt.Sprintf("Authorization: Basic %s\r\n", cred)
	}
	req += "\r\n"
	if _, err = io.WriteString(conn, req); err != nil {
		return fmt.Errorf("send describe: %w", err)
	}

	statusCode, body, err := readResponse(bufio.NewReader(conn))
	if err != nil {
		return fmt.Errorf("read describe response: %w", err)
	}
	if statusCode != 200 {
		return fmt.Errorf("describe returned status %d", statusCode)
	}

	sess, err := sdp.ParseString(body)
	if err != nil {
		return fmt.Errorf("parse sdp: %w", err)
	}
	if len(sess.Media) == 0 {
		return fmt.Errorf("source announced no media")
	}
	return nil
}

func readResponse(r *bufio.Reader) (statusCode int, body string, err error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return
	}
	parts := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "RTSP/") {
		err = fmt.Errorf("malformed status line: %q", strings.TrimSpace(line))
		return
	}
	if statusCode, err = strconv.Atoi(parts[1]); err != nil {
		err = fmt.Errorf("malformed status code: %q", parts[1])
		return
	}

	contentLen := 0
	for {
		line, err = r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if idx := strings.Index(line, ":"); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			if strings.EqualFold(key, "Content-Length") {
				contentLen, _ = strconv.Atoi(strings.TrimSpace(line[idx+1:]))
			}
		}
	}
	if contentLen > maxDescribeBody {
		err = fmt.Errorf("describe body too large: %d bytes", contentLen)
		return
	}
	if contentLen > 0 {
		buf := make([]byte, contentLen)
		if _, err = io.ReadFull(r, buf); err != nil {
			return
		}
		body = string(buf)
	}
	return
}
