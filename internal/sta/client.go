package sta

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
)

// DefaultExpand is the nested expansion needed to flatten Things into
// per-Datastream records in a single request sequence.
const DefaultExpand = "Locations,Datastreams($expand=Sensor,ObservedProperty)"

const (
	defaultTimeout      = 30 * time.Second
	defaultRetryCount   = 3
	defaultRetryWait    = 500 * time.Millisecond
	defaultRetryMaxWait = 5 * time.Second
)

// Options configures the entity client.
type Options struct {
	Endpoint string
	Expand   string
	// PageSize sets $top; zero leaves paging to the server.
	PageSize int
	Timeout  time.Duration
	// RetryCount is the number of retries per page request after the first
	// attempt. Negative disables retries.
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

func (o Options) withDefaults() Options {
	if o.Expand == "" {
		o.Expand = DefaultExpand
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.RetryCount == 0 {
		o.RetryCount = defaultRetryCount
	}
	if o.RetryCount < 0 {
		o.RetryCount = 0
	}
	if o.RetryWait <= 0 {
		o.RetryWait = defaultRetryWait
	}
	if o.RetryMaxWait < o.RetryWait {
		o.RetryMaxWait = defaultRetryMaxWait
		if o.RetryMaxWait < o.RetryWait {
			o.RetryMaxWait = o.RetryWait
		}
	}
	return o
}

// Client reads Things from a SensorThings API endpoint. The resty client it
// wraps is expected to carry authentication already.
type Client struct {
	rc   *resty.Client
	opts Options
}

// New configures rc for paginated entity retrieval and returns a Client.
func New(rc *resty.Client, opts Options) *Client {
	opts = opts.withDefaults()

	rc.SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		AddRetryCondition(retryTransient)

	return &Client{rc: rc, opts: opts}
}

// Endpoint returns the service root the client reads from.
func (c *Client) Endpoint() string {
	return strings.TrimRight(c.opts.Endpoint, "/")
}

// Things starts a new page sequence over all Things with the configured
// expansion.
func (c *Client) Things() *Pager {
	return &Pager{client: c, next: c.thingsURL()}
}

func (c *Client) thingsURL() string {
	q := url.Values{}
	q.Set("$expand", c.opts.Expand)
	if c.opts.PageSize > 0 {
		q.Set("$top", strconv.Itoa(c.opts.PageSize))
	}
	return c.Endpoint() + "/Things?" + q.Encode()
}

// retryTransient retries network failures (including per-attempt timeouts),
// 5xx responses and 429. Auth failures and other 4xx responses are returned
// as-is. resty stops on its own once the request context is done.
func retryTransient(resp *resty.Response, err error) bool {
	if err != nil {
		return !models.IsAuthentication(err)
	}
	if resp == nil {
		return false
	}
	code := resp.StatusCode()
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}
