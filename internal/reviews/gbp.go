package reviews

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/defense-intake/pkg/logging"
	"golang.org/x/oauth2"
)

const (
	DefaultGBPBaseURL  = "https://mybusiness.googleapis.com/v4"
	DefaultGBPTokenURL = "https://oauth2.googleapis.com/token"
	gbpScope           = "https://www.googleapis.com/auth/business.manage"
	gbpPageSize        = 50
	gbpMaxPages        = 20
)

// ErrGBPNotConfigured is returned when Business Profile credentials are missing.
var ErrGBPNotConfigured = errors.New("reviews: google business profile not configured")

// Review is a Google review of the firm's listing.
type Review struct {
	ID        string    `json:"id"`
	Reviewer  string    `json:"reviewer"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	Reply     string    `json:"reply,omitempty"`
	RepliedAt time.Time `json:"replied_at,omitempty"`
}

// Answered reports whether the firm already replied.
func (r Review) Answered() bool { return strings.TrimSpace(r.Reply) != "" }

type GBPConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccountID    string
	LocationID   string
	BaseURL      string
	TokenURL     string
	// HTTPClient is used for token refreshes and as the transport base.
	HTTPClient *http.Client
}

// GBPClient reads and answers reviews through the Business Profile API.
// Access tokens are refreshed from the stored refresh token as they expire.
type GBPClient struct {
	http     *http.Client
	baseURL  string
	location string
	logger   *logging.Logger
}

func NewGBPClient(cfg GBPConfig, logger *logging.Logger) (*GBPClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" || cfg.AccountID == "" || cfg.LocationID == "" {
		return nil, ErrGBPNotConfigured
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGBPBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultGBPTokenURL
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL, AuthStyle: oauth2.AuthStyleInParams},
		Scopes:       []string{gbpScope},
	}
	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	client := oauthCfg.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	client.Timeout = 15 * time.Second

	return &GBPClient{
		http:     client,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		location: fmt.Sprintf("accounts/%s/locations/%s", cfg.AccountID, cfg.LocationID),
		logger:   logger,
	}, nil
}

type gbpReview struct {
	ReviewID string `json:"reviewId"`
	Reviewer struct {
		DisplayName string `json:"displayName"`
	} `json:"reviewer"`
	StarRating  string    `json:"starRating"`
	Comment     string    `json:"comment"`
	CreateTime  time.Time `json:"createTime"`
	ReviewReply *struct {
		Comment    string    `json:"comment"`
		UpdateTime time.Time `json:"updateTime"`
	} `json:"reviewReply"`
}

type gbpListResponse struct {
	Reviews       []gbpReview `json:"reviews"`
	NextPageToken string      `json:"nextPageToken"`
}

var starRatings = map[string]int{"ONE": 1, "TWO": 2, "THREE": 3, "FOUR": 4, "FIVE": 5}

func (r gbpReview) toReview() Review {
	out := Review{
		ID:        r.ReviewID,
		Reviewer:  r.Reviewer.DisplayName,
		Rating:    starRatings[r.StarRating],
		Comment:   r.Comment,
		CreatedAt: r.CreateTime,
	}
	if r.ReviewReply != nil {
		out.Reply = r.ReviewReply.Comment
		out.RepliedAt = r.ReviewReply.UpdateTime
	}
	return out
}

// ListReviews returns every review on the listing, newest first as the API
// orders them.
func (c *GBPClient) ListReviews(ctx context.Context) ([]Review, error) {
	var out []Review
	pageToken := ""
	for page := 0; page < gbpMaxPages; page++ {
		q := url.Values{}
		q.Set("pageSize", fmt.Sprint(gbpPageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var resp gbpListResponse
		if err := c.do(ctx, http.MethodGet, c.baseURL+"/"+c.location+"/reviews?"+q.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Reviews {
			out = append(out, r.toReview())
		}
		if resp.NextPageToken == "" {
			return out, nil
		}
		pageToken = resp.NextPageToken
	}
	c.logger.Warn("reviews: page limit reached", "reviews", len(out))
	return out, nil
}

// PostReply creates or replaces the firm's reply to a review.
func (c *GBPClient) PostReply(ctx context.Context, reviewID, comment string) error {
	if strings.TrimSpace(reviewID) == "" || strings.TrimSpace(comment) == "" {
		return errors.New("reviews: review id and comment are required")
	}
	body, err := json.Marshal(map[string]string{"comment": comment})
	if err != nil {
		return err
	}
	endpoint := c.baseURL + "/" + c.location + "/reviews/" + url.PathEscape(reviewID) + "/reply"
	return c.do(ctx, http.MethodPut, endpoint, body, nil)
}

func (c *GBPClient) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("reviews: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reviews: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("reviews: business profile returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("reviews: decode response: %w", err)
	}
	return nil
}
