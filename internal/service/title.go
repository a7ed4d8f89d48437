package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

const (
	titleUserAgent    = "URL Shortener Bot"
	maxTitleBodyBytes = 1 << 20
	maxTitleLength    = 500
)

// TitleFetcher достаёт <title> страницы назначения
type TitleFetcher interface {
	FetchTitle(ctx context.Context, url string) (string, error)
}

// ErrPrivateTarget адрес назначения во внутренней сети
var ErrPrivateTarget = errors.New("refusing to fetch private address")

type titleFetcherOptions struct {
	allowPrivate bool
}

type TitleOption func(*titleFetcherOptions)

// AllowPrivateTargets снимает запрет на loopback и приватные адреса
func AllowPrivateTargets() TitleOption {
	return func(o *titleFetcherOptions) { o.allowPrivate = true }
}

type httpTitleFetcher struct {
	client *http.Client
}

// NewTitleFetcher по умолчанию не ходит на loopback, приватные и link-local
// адреса, в том числе после редиректов.
func NewTitleFetcher(timeout time.Duration, opts ...TitleOption) TitleFetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var o titleFetcherOptions
	for _, opt := range opts {
		opt(&o)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !o.allowPrivate {
		dialer := &net.Dialer{Timeout: timeout, Control: refusePrivate}
		transport.DialContext = dialer.DialContext
		transport.Proxy = nil
	}

	return &httpTitleFetcher{client: &http.Client{Timeout: timeout, Transport: transport}}
}

// refusePrivate проверяет уже разрезолвленный адрес перед connect
func refusePrivate(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return fmt.Errorf("%w: %s", ErrPrivateTarget, host)
	}
	return nil
}

func (f *httpTitleFetcher) FetchTitle(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build title request: %w", err)
	}
	req.Header.Set("User-Agent", titleUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// Перекодируем в UTF-8 по Content-Type или <meta charset>
	body, err := charset.NewReader(io.LimitReader(resp.Body, maxTitleBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("failed to decode page: %w", err)
	}

	return extractTitle(body)
}

// extractTitle текст первого <title>, пустая строка если его нет
func extractTitle(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	inTitle := false
	var b strings.Builder

	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return cleanTitle(b.String()), nil
			}
			return "", z.Err()
		case html.StartTagToken:
			// токенайзер отдаёт имена тегов в нижнем регистре
			name, _ := z.TagName()
			if string(name) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				b.Write(z.Text())
			}
		case html.EndTagToken:
			if inTitle {
				return cleanTitle(b.String()), nil
			}
		}
	}
}

func cleanTitle(s string) string {
	return sanitizeText(strings.Join(strings.Fields(s), " "), maxTitleLength)
}
