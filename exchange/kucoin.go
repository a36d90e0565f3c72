package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"kucoin-depth-viewer/apperrors"
	"kucoin-depth-viewer/models"
)

const opAcquireToken = "acquire token"

// maxBulletBody caps how much of the bullet response is read.
const maxBulletBody = 1 << 20

// KucoinTokenProvider implements TokenProvider against the public bullet endpoint
type KucoinTokenProvider struct {
	tokenURL   string
	httpClient *http.Client
}

// BulletResponse is the JSON body returned by /api/v1/bullet-public
type BulletResponse struct {
	Code string `json:"code"`
	Data *struct {
		Token           *string          `json:"token"`
		InstanceServers []InstanceServer `json:"instanceServers"`
	} `json:"data"`
}

// InstanceServer describes one websocket endpoint advertised with the token.
type InstanceServer struct {
	Endpoint     string `json:"endpoint"`
	Protocol     string `json:"protocol"`
	Encrypt      bool   `json:"encrypt"`
	PingInterval int64  `json:"pingInterval"`
	PingTimeout  int64  `json:"pingTimeout"`
}

// NewKucoinTokenProvider creates a provider posting to tokenURL with the given timeout
func NewKucoinTokenProvider(tokenURL string, timeout time.Duration) *KucoinTokenProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KucoinTokenProvider{
		tokenURL: tokenURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// AcquireToken issues one POST to the bullet endpoint and extracts data.token.
// Network failures, timeouts and non-2xx statuses are transport errors; a body
// without a string token is a protocol error.
func (k *KucoinTokenProvider) AcquireToken(ctx context.Context) (models.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.tokenURL, nil)
	if err != nil {
		return "", apperrors.New(apperrors.Transport, opAcquireToken, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return "", apperrors.New(apperrors.Transport, opAcquireToken, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBulletBody))
	if err != nil {
		return "", apperrors.New(apperrors.Transport, opAcquireToken, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperrors.Newf(apperrors.Transport, opAcquireToken, "unexpected status %d", resp.StatusCode)
	}

	return ParseToken(body)
}

// ParseToken extracts data.token from a bullet response body.
func ParseToken(body []byte) (models.Token, error) {
	var bullet BulletResponse
	if err := json.Unmarshal(body, &bullet); err != nil {
		return "", apperrors.New(apperrors.Protocol, opAcquireToken, fmt.Errorf("decode body: %w", err))
	}
	if bullet.Data == nil {
		return "", apperrors.Newf(apperrors.Protocol, opAcquireToken, "response has no data object (code %q)", bullet.Code)
	}
	if bullet.Data.Token == nil || *bullet.Data.Token == "" {
		return "", apperrors.Newf(apperrors.Protocol, opAcquireToken, "response has no data.token")
	}
	return models.Token(*bullet.Data.Token), nil
}
