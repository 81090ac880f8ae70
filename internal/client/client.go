// Package client talks to the board API and keeps a local copy of the whole
// board. The copy is never edited in place: every mutation is followed by a
// full refetch, whether the mutation succeeded or not.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"kanban/api/internal/ordering"
)

type List struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Position  int64     `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

type Card struct {
	ID          int64     `json:"id"`
	ListID      int64     `json:"list_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Position    int64     `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type BoardList struct {
	List
	Cards []Card `json:"cards"`
}

type Board struct {
	Lists []BoardList `json:"lists"`
}

// FindCard returns the card and the list holding it.
func (b Board) FindCard(id int64) (Card, BoardList, bool) {
	for _, list := range b.Lists {
		for _, card := range list.Cards {
			if card.ID == id {
				return card, list, true
			}
		}
	}
	return Card{}, BoardList{}, false
}

func (b Board) FindList(id int64) (BoardList, bool) {
	for _, list := range b.Lists {
		if list.ID == id {
			return list, true
		}
	}
	return BoardList{}, false
}

type SearchResult struct {
	ID          int64  `json:"id"`
	ListID      int64  `json:"list_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
	Query   string         `json:"query"`
}

// APIError is any non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client

	mu     sync.RWMutex
	board  Board
	loaded bool
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: httpClient}
}

// Board returns the last fetched board. It is empty until the first Refresh.
func (c *Client) Board() Board {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.board
}

func (c *Client) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Refresh replaces the local board with the server's.
func (c *Client) Refresh(ctx context.Context) (Board, error) {
	var board Board
	if err := c.do(ctx, http.MethodGet, "/api/lists", nil, &board); err != nil {
		return Board{}, err
	}
	for i := range board.Lists {
		if board.Lists[i].Cards == nil {
			board.Lists[i].Cards = []Card{}
		}
	}
	c.mu.Lock()
	c.board = board
	c.loaded = true
	c.mu.Unlock()
	return board, nil
}

func (c *Client) CreateList(ctx context.Context, title string) (List, error) {
	var list List
	err := c.mutate(ctx, http.MethodPost, "/api/lists", map[string]any{"title": title}, &list)
	return list, err
}

func (c *Client) RenameList(ctx context.Context, id int64, title string) (List, error) {
	var list List
	err := c.mutate(ctx, http.MethodPut, listPath(id), map[string]any{"title": title}, &list)
	return list, err
}

func (c *Client) DeleteList(ctx context.Context, id int64) error {
	return c.mutate(ctx, http.MethodDelete, listPath(id), nil, nil)
}

func (c *Client) CreateCard(ctx context.Context, listID int64, title, description string) (Card, error) {
	body := map[string]any{"list_id": listID, "title": title}
	if description != "" {
		body["description"] = description
	}
	var card Card
	err := c.mutate(ctx, http.MethodPost, "/api/cards", body, &card)
	return card, err
}

// EditCard sends only the fields that are non-nil.
func (c *Client) EditCard(ctx context.Context, id int64, title, description *string) (Card, error) {
	body := map[string]any{}
	if title != nil {
		body["title"] = *title
	}
	if description != nil {
		body["description"] = *description
	}
	var card Card
	err := c.mutate(ctx, http.MethodPut, cardPath(id), body, &card)
	return card, err
}

func (c *Client) DeleteCard(ctx context.Context, id int64) error {
	return c.mutate(ctx, http.MethodDelete, cardPath(id), nil, nil)
}

// MoveCard sends a raw target position.
func (c *Client) MoveCard(ctx context.Context, id, targetListID, position int64) error {
	body := map[string]any{"target_list_id": targetListID, "position": position}
	return c.mutate(ctx, http.MethodPost, cardPath(id)+"/move", body, nil)
}

// MoveCardToIndex moves a card so it ends up at the given 0-based index of the
// target list. The index is translated against a freshly fetched board.
func (c *Client) MoveCardToIndex(ctx context.Context, id, targetListID int64, index int) error {
	board, err := c.Refresh(ctx)
	if err != nil {
		return err
	}
	target, ok := board.FindList(targetListID)
	if !ok {
		// Let the server answer with its own not-found.
		return c.MoveCard(ctx, id, targetListID, 0)
	}
	return c.MoveCard(ctx, id, targetListID, ordering.PositionForIndex(siblings(target), id, index))
}

// MoveCardToEnd appends the card to the target list.
func (c *Client) MoveCardToEnd(ctx context.Context, id, targetListID int64) error {
	board, err := c.Refresh(ctx)
	if err != nil {
		return err
	}
	target, _ := board.FindList(targetListID)
	return c.MoveCard(ctx, id, targetListID, ordering.PositionForIndex(siblings(target), id, len(target.Cards)))
}

func (c *Client) Search(ctx context.Context, text string, limit int) (SearchResponse, error) {
	query := url.Values{}
	query.Set("q", text)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out SearchResponse
	err := c.do(ctx, http.MethodGet, "/api/search?"+query.Encode(), nil, &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// mutate performs the request and then refetches the board. The mutation
// error wins over a refresh error.
func (c *Client) mutate(ctx context.Context, method, path string, body, out any) error {
	err := c.do(ctx, method, path, body, out)
	if _, refreshErr := c.Refresh(ctx); err == nil {
		err = refreshErr
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, payload)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(status int, payload []byte) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	apiErr := &APIError{Status: status}
	if err := sonic.Unmarshal(payload, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Code = body.Code
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(payload))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func siblings(list BoardList) []ordering.Sibling {
	out := make([]ordering.Sibling, 0, len(list.Cards))
	for _, card := range list.Cards {
		out = append(out, ordering.Sibling{ID: card.ID, Position: card.Position})
	}
	return out
}

func listPath(id int64) string { return "/api/lists/" + strconv.FormatInt(id, 10) }

func cardPath(id int64) string { return "/api/cards/" + strconv.FormatInt(id, 10) }
