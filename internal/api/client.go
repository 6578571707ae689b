package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/banshee-data/dealr/internal/db"
	"github.com/banshee-data/dealr/internal/dealer"
	"github.com/banshee-data/dealr/internal/httputil"
)

// Client talks to a running dealer's HTTP API.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient returns a client for the server at base, e.g.
// "http://localhost:8080".
func NewClient(base string, c httputil.HTTPClient) *Client {
	return &Client{base: strings.TrimRight(base, "/"), http: c}
}

// APIError is a non-2xx reply.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (c *Client) decode(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &APIError{Status: resp.StatusCode, Message: httputil.DecodeError(resp)}
	}
	if v == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) get(path string, v interface{}) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	return c.decode(resp, v)
}

func (c *Client) post(path string, form url.Values) error {
	resp, err := c.http.Post(c.base+path, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	return c.decode(resp, nil)
}

func (c *Client) Status() (dealer.Status, error) {
	var s dealer.Status
	err := c.get("/api/status", &s)
	return s, err
}

func (c *Client) Sessions(limit int) ([]db.Session, error) {
	var sessions []db.Session
	err := c.get("/api/sessions?limit="+strconv.Itoa(limit), &sessions)
	return sessions, err
}

func (c *Client) SessionCards(id string) ([]db.Card, error) {
	var cards []db.Card
	err := c.get("/api/sessions/"+url.PathEscape(id)+"/cards", &cards)
	return cards, err
}

func (c *Client) StartGame(index int) error {
	return c.post("/api/game", url.Values{"index": {strconv.Itoa(index)}})
}

func (c *Client) StartTool(name string) error {
	return c.post("/api/tool", url.Values{"name": {name}})
}

func (c *Client) Abort() error {
	return c.post("/api/abort", url.Values{})
}

// Press holds a simulator button. Only dev-mode servers accept it.
func (c *Client) Press(button string, hold string) error {
	form := url.Values{"button": {button}}
	if hold != "" {
		form.Set("hold", hold)
	}
	return c.post("/api/sim/press", form)
}
