package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
)

// Fetcher reads the subject's bookings from the authoritative store.
type Fetcher interface {
	ListBookings(ctx context.Context) ([]types.Booking, error)
}

// RESTFetcher calls the booking REST API with a bearer token.
type RESTFetcher struct {
	baseURL    string
	token      string
	subjectId  string
	httpClient *http.Client
}

// NewRESTFetcher constructs a fetcher for baseURL. subjectId may be empty,
// in which case the token's own subject is listed.
func NewRESTFetcher(baseURL, token, subjectId string) *RESTFetcher {
	return &RESTFetcher{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		subjectId:  subjectId,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *RESTFetcher) ListBookings(ctx context.Context) ([]types.Booking, error) {
	endpoint := f.baseURL + "/api/bookings"
	if f.subjectId != "" {
		endpoint += "?subject_id=" + url.QueryEscape(f.subjectId)
	}

	var bookings []types.Booking
	if err := f.doGet(ctx, endpoint, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (f *RESTFetcher) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Accept", "application/json")
	return f.do(req, out)
}

func (f *RESTFetcher) do(req *http.Request, out any) error {
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: http %d", types.ErrUnauthenticated, resp.StatusCode)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: http %d", types.ErrForbidden, resp.StatusCode)
	case resp.StatusCode >= 300:
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
