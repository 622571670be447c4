package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"racebet/internal/domain"

	"go.uber.org/zap"
)

type openF1Session struct {
	SessionKey       int    `json:"session_key"`
	SessionName      string `json:"session_name"`
	SessionType      string `json:"session_type"`
	CircuitShortName string `json:"circuit_short_name"`
	CountryName      string `json:"country_name"`
	CountryCode      string `json:"country_code"`
	DateStart        string `json:"date_start"`
	DateEnd          string `json:"date_end"`
	Year             int    `json:"year"`
}

type openF1Driver struct {
	DriverNumber int    `json:"driver_number"`
	FullName     string `json:"full_name"`
	TeamName     string `json:"team_name"`
	NameAcronym  string `json:"name_acronym"`
}

// StatusError 非 2xx 响应
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openf1 %s: unexpected status %d", e.URL, e.Code)
}

// Retryable 5xx 和 429 可以重试，其余 4xx 重试没有意义
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// OpenF1Client 直连 OpenF1 API，不带缓存和熔断，由 Resilient 包装后使用
type OpenF1Client struct {
	baseURL     string
	httpClient  *http.Client
	maxSessions int
	driverDelay time.Duration
	log         *zap.Logger
}

type OpenF1Option func(*OpenF1Client)

func WithHTTPClient(c *http.Client) OpenF1Option {
	return func(o *OpenF1Client) { o.httpClient = c }
}

func WithMaxSessions(n int) OpenF1Option {
	return func(o *OpenF1Client) { o.maxSessions = n }
}

func WithDriverDelay(d time.Duration) OpenF1Option {
	return func(o *OpenF1Client) { o.driverDelay = d }
}

func NewOpenF1Client(baseURL string, timeout time.Duration, log *zap.Logger, opts ...OpenF1Option) *OpenF1Client {
	c := &OpenF1Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session fresh 参数对直连客户端没有意义
func (c *OpenF1Client) Session(ctx context.Context, key domain.SessionKey, _ bool) (*Session, error) {
	params := url.Values{}
	params.Set("session_key", strconv.FormatInt(int64(key), 10))

	var sessions []openF1Session
	if err := c.get(ctx, "/sessions", params, &sessions); err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrSessionNotFound, key)
	}
	s, err := c.withDrivers(ctx, sessions[0])
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Sessions 只取最近的 maxSessions 场，逐场查询车手并间隔 driverDelay（OpenF1 限流 3 req/s）
func (c *OpenF1Client) Sessions(ctx context.Context, q Query, _ bool) ([]Session, error) {
	params := url.Values{}
	if q.SessionType != "" {
		params.Set("session_type", q.SessionType)
	}
	if q.Year > 0 {
		params.Set("year", strconv.Itoa(q.Year))
	}
	if q.CountryCode != "" {
		params.Set("country_code", q.CountryCode)
	}

	var raw []openF1Session
	if err := c.get(ctx, "/sessions", params, &raw); err != nil {
		return nil, err
	}
	if c.maxSessions > 0 && len(raw) > c.maxSessions {
		c.log.Info("场次数量超过上限，只取最近的场次",
			zap.Int("total", len(raw)), zap.Int("limit", c.maxSessions))
		raw = raw[len(raw)-c.maxSessions:]
	}

	result := make([]Session, 0, len(raw))
	for i, s := range raw {
		if i > 0 && c.driverDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.driverDelay):
			}
		}
		session, err := c.withDrivers(ctx, s)
		if err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	return result, nil
}

func (c *OpenF1Client) withDrivers(ctx context.Context, s openF1Session) (Session, error) {
	params := url.Values{}
	params.Set("session_key", strconv.Itoa(s.SessionKey))

	var drivers []openF1Driver
	if err := c.get(ctx, "/drivers", params, &drivers); err != nil {
		return Session{}, fmt.Errorf("查询场次 %d 车手失败: %w", s.SessionKey, err)
	}

	session := Session{
		Key:              domain.SessionKey(s.SessionKey),
		Name:             s.SessionName,
		Type:             s.SessionType,
		CircuitShortName: s.CircuitShortName,
		CountryName:      s.CountryName,
		CountryCode:      s.CountryCode,
		Start:            c.parseTime(s.DateStart),
		End:              c.parseTime(s.DateEnd),
		Year:             s.Year,
		Drivers:          make([]Driver, 0, len(drivers)),
	}
	for _, d := range drivers {
		session.Drivers = append(session.Drivers, Driver{
			Number:   domain.DriverNumber(d.DriverNumber),
			FullName: d.FullName,
			TeamName: d.TeamName,
			Acronym:  d.NameAcronym,
		})
	}
	return session, nil
}

func (c *OpenF1Client) get(ctx context.Context, path string, params url.Values, dst interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openf1 %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, URL: u}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("openf1 %s: decode: %w", u, err)
	}
	return nil
}

func (c *OpenF1Client) parseTime(v string) *time.Time {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		c.log.Warn("无法解析时间字段", zap.String("value", v), zap.Error(err))
		return nil
	}
	t = t.UTC()
	return &t
}
