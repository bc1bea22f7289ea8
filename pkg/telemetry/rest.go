package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/DECODEproject/iotdashboard/pkg/version"
)

// keyHeader is the request header carrying the API key.
const keyHeader = "X-AIO-Key"

// datum is the JSON shape of a single feed value, as returned and accepted by
// the REST API.
type datum struct {
	Value json.RawMessage `json:"value"`
}

// RESTClient talks to the telemetry API over HTTP.
type RESTClient struct {
	baseURL    string
	username   string
	key        string
	verbose    bool
	httpClient *http.Client
	logger     kitlog.Logger
}

// ensure we adhere to the interface
var _ Client = &RESTClient{}

// NewRESTClient returns a new RESTClient for the API rooted at baseURL.
func NewRESTClient(baseURL, username, key string, timeout time.Duration, verbose bool, logger kitlog.Logger) *RESTClient {
	return &RESTClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		key:      key,
		verbose:  verbose,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: kitlog.With(logger, "transport", TransportREST),
	}
}

// Receive returns the last value published to the feed.
func (r *RESTClient) Receive(ctx context.Context, feed string) (_ string, err error) {
	start := time.Now()
	defer func() { observe(TransportREST, "receive", start, err) }()

	req, err := r.newRequest(ctx, http.MethodGet, r.feedURL(feed, "data", "last"), nil)
	if err != nil {
		return "", err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to read feed")
	}
	defer resp.Body.Close()

	if err = checkResponse(resp); err != nil {
		return "", errors.Wrapf(err, "failed to read feed %s", feed)
	}

	var d datum
	err = json.NewDecoder(resp.Body).Decode(&d)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode feed value")
	}

	value, err := rawToString(d.Value)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read feed %s", feed)
	}

	if r.verbose {
		level.Debug(r.logger).Log("msg", "received feed value", "feed", feed, "value", value)
	}

	return value, nil
}

// Send creates a new value on the feed.
func (r *RESTClient) Send(ctx context.Context, feed, value string) (err error) {
	start := time.Now()
	defer func() { observe(TransportREST, "send", start, err) }()

	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to encode feed value")
	}

	body, err := json.Marshal(&datum{Value: raw})
	if err != nil {
		return errors.Wrap(err, "failed to encode feed value")
	}

	req, err := r.newRequest(ctx, http.MethodPost, r.feedURL(feed, "data"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to write feed")
	}
	defer resp.Body.Close()

	if err = checkResponse(resp); err != nil {
		return errors.Wrapf(err, "failed to write feed %s", feed)
	}

	if r.verbose {
		level.Debug(r.logger).Log("msg", "sent feed value", "feed", feed, "value", value)
	}

	return nil
}

// feedURL builds the URL of a feed resource, escaping the feed name.
func (r *RESTClient) feedURL(feed string, parts ...string) string {
	segments := append([]string{
		"api", "v2",
		url.PathEscape(r.username),
		"feeds",
		url.PathEscape(feed),
	}, parts...)

	return r.baseURL + "/" + strings.Join(segments, "/")
}

func (r *RESTClient) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	req = req.WithContext(ctx)
	req.Header.Set(keyHeader, r.key)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	return req, nil
}

// checkResponse returns an error for any non 2xx response.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	return errors.Errorf("telemetry API error: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
}

// rawToString converts the value field to a plain string. The API normally
// returns strings but numbers are tolerated.
func rawToString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("feed has no value")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}

	return "", errors.Errorf("unexpected feed value: %s", string(raw))
}
