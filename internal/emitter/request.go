package emitter

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"
)

// Defaults for the synthetic request line and headers.
const (
	DefaultHost      = "fakewebsocket"
	DefaultUserAgent = "wsinspect"
	ContentType      = "application/json; charset=utf-8"
)

// BuildRequest renders the raw synthetic request:
//
//	POST http://<host>/<urlPath> HTTP/1.1
//	User-Agent: <userAgent>
//	Content-Type: application/json; charset=utf-8
//	Host: <host>
//	Content-Length: <len(body)>
//
//	<body>
//
// Lines end in CRLF. Each path segment is escaped; Content-Length counts bytes.
func BuildRequest(host, userAgent, urlPath, body string) []byte {
	var b bytes.Buffer
	b.Grow(len(body) + 192 + len(urlPath))

	b.WriteString("POST http://")
	b.WriteString(host)
	b.WriteByte('/')
	b.WriteString(escapePath(urlPath))
	b.WriteString(" HTTP/1.1\r\n")

	b.WriteString("User-Agent: ")
	b.WriteString(userAgent)
	b.WriteString("\r\nContent-Type: ")
	b.WriteString(ContentType)
	b.WriteString("\r\nHost: ")
	b.WriteString(host)
	b.WriteString("\r\nContent-Length: ")
	b.WriteString(strconv.Itoa(len(body)))
	b.WriteString("\r\n\r\n")
	b.WriteString(body)

	return b.Bytes()
}

func escapePath(p string) string {
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ""
	}
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
