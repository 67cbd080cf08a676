package sta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
)

// ErrPagerDone is returned by Next once the sequence has ended, either because
// the last page had no next link or because an earlier call failed.
var ErrPagerDone = errors.New("sta: no more pages")

// Page is one response of the Things collection. Entities are left raw so a
// single malformed entity cannot fail the page.
type Page struct {
	Number   int
	URL      string
	Entities []json.RawMessage
	NextLink string
}

// collectionPayload is a Things response. Value is a pointer so a body
// without a value array is told apart from an empty page.
type collectionPayload struct {
	Value    *[]json.RawMessage `json:"value"`
	NextLink string            `json:"@iot.nextLink"`
}

// Pager walks @iot.nextLink references. It is finite and cannot be restarted:
// after an error or the last page every call to Next returns ErrPagerDone, and
// a retry needs a fresh pager from Client.Things.
type Pager struct {
	client  *Client
	next    string
	page    int
	lastURL string
	done    bool
}

// More reports whether another call to Next may return a page.
func (p *Pager) More() bool {
	return !p.done
}

// LastPage returns the number and URL of the last page fetched successfully.
func (p *Pager) LastPage() (int, string) {
	return p.page, p.lastURL
}

// Next fetches the next page.
func (p *Pager) Next(ctx context.Context) (Page, error) {
	if p.done {
		return Page{}, ErrPagerDone
	}

	number := p.page + 1
	pageURL := p.next

	page, err := p.fetch(ctx, number, pageURL)
	if err != nil {
		p.done = true
		return Page{}, err
	}

	p.page = number
	p.lastURL = pageURL
	p.next = page.NextLink
	if p.next == "" {
		p.done = true
	}
	return page, nil
}

func (p *Pager) fetch(ctx context.Context, number int, pageURL string) (Page, error) {
	resp, err := p.client.rc.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Page{}, fmt.Errorf("fetch page %d: %w", number, ctxErr)
		}
		if models.IsAuthentication(err) {
			return Page{}, err
		}
		return Page{}, p.abort(&models.TransientFetchError{Page: number, URL: pageURL, Err: err})
	}

	code := resp.StatusCode()
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return Page{}, &models.AuthenticationError{URL: pageURL, Status: code}
	case code >= http.StatusInternalServerError || code == http.StatusTooManyRequests:
		return Page{}, p.abort(&models.TransientFetchError{Page: number, URL: pageURL, Status: code})
	case code < 200 || code >= 300:
		return Page{}, p.abort(fmt.Errorf("fetch page %d: unexpected status %s", number, resp.Status()))
	}

	var payload collectionPayload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return Page{}, p.abort(fmt.Errorf("decode page %d: %w", number, err))
	}
	if payload.Value == nil {
		return Page{}, p.abort(fmt.Errorf("decode page %d: no value array", number))
	}

	next, err := resolveLink(pageURL, payload.NextLink)
	if err != nil {
		return Page{}, p.abort(fmt.Errorf("page %d next link: %w", number, err))
	}

	return Page{
		Number:   number,
		URL:      pageURL,
		Entities: *payload.Value,
		NextLink: next,
	}, nil
}

func (p *Pager) abort(err error) error {
	return &models.HarvestAbortedError{LastPage: p.page, LastURL: p.lastURL, Err: err}
}

// resolveLink makes a relative next link absolute against the page it came from.
func resolveLink(base, link string) (string, error) {
	if link == "" {
		return "", nil
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return link, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}
