package authclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/lsmon/iotauth/internal/crypto"
	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/protocol/keydist"
	"github.com/lsmon/iotauth/internal/protocol/wire"
)

var (
	// ErrRejected is returned when the authority answers with an error status.
	ErrRejected = errors.New("authclient: request rejected")
	// ErrNonceMismatch is returned when a response does not answer our request.
	ErrNonceMismatch = errors.New("authclient: reply nonce mismatch")
	// ErrBadKey is returned when an issued key does not fit its crypto spec.
	ErrBadKey = errors.New("authclient: malformed session key")
)

const maxErrorBody = 1024

// Config binds a client to one authority and one entity identity.
type Config struct {
	// BaseURL is the authority base URL, e.g. http://127.0.0.1:21900.
	BaseURL      string
	AuthorityKey domain.Ed25519Public
	Identity     domain.Identity

	// HTTP defaults to a client with Timeout.
	HTTP    *http.Client
	Timeout time.Duration
	Log     *logging.Logger
}

// Client talks to the authority.
type Client struct {
	base         string
	authorityKey domain.Ed25519Public
	id           domain.Identity
	http         *http.Client
	log          *logging.Logger
	now          func() time.Time
}

var _ domain.KeyDistributionClient = (*Client)(nil)

// New returns a client for cfg.
func New(cfg Config) *Client {
	c := &Client{
		base:         strings.TrimRight(cfg.BaseURL, "/"),
		authorityKey: cfg.AuthorityKey,
		id:           cfg.Identity,
		http:         cfg.HTTP,
		log:          cfg.Log,
		now:          time.Now,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
	if c.log == nil {
		c.log = logging.MustGetLogger("authclient")
	}
	return c
}

// RequestSessionKeys asks the authority for session keys.
func (c *Client) RequestSessionKeys(ctx context.Context, req domain.SessionKeyRequest) (domain.SessionKeyResponse, error) {
	var out domain.SessionKeyResponse

	nonce, err := wire.NewNonce()
	if err != nil {
		return out, err
	}
	now := c.now()

	// An expired distribution key is not presented, so the authority
	// issues a new one.
	held := req.DistributionKey
	if held != nil && !held.ValidAt(now) {
		c.log.Debugf("distribution key expired at %s", held.Expiry.Format(time.RFC3339))
		held = nil
	}

	body, err := keydist.EncodeRequest(c.id.EdPriv, keydist.Request{
		RequesterName:      req.RequesterName,
		Purpose:            req.Purpose,
		NumKeys:            req.NumKeys,
		Nonce:              nonce,
		Timestamp:          now.UTC(),
		DistKeyFingerprint: keydist.Fingerprint(held),
	})
	if err != nil {
		return out, err
	}

	raw, err := c.post(ctx, keydist.SessionKeysPath, body)
	if err != nil {
		return out, err
	}
	resp, err := keydist.DecodeResponse(c.authorityKey, raw)
	if err != nil {
		return out, err
	}
	if !bytes.Equal(resp.ReplyNonce, nonce) {
		return out, ErrNonceMismatch
	}

	if resp.DistributionKey != nil {
		dk, err := keydist.OpenDistributionKey(c.id.XPriv, c.id.XPub, resp.DistributionKey)
		if err != nil {
			return out, err
		}
		out.DistributionKey = &dk
		held = &dk
		c.log.Infof("received %s", dk)
	}

	keys, err := keydist.OpenSessionKeys(held, nonce, resp.SealedKeys)
	if err != nil {
		return out, err
	}
	for _, k := range keys {
		size, err := crypto.KeySize(k.Spec)
		if err != nil {
			return out, fmt.Errorf("%w: key %d: %v", ErrBadKey, k.ID, err)
		}
		if len(k.Key) != size {
			return out, fmt.Errorf("%w: key %d is %d bytes", ErrBadKey, k.ID, len(k.Key))
		}
	}
	out.Keys = keys
	c.log.Debugf("received %d session keys for %s", len(keys), req.Purpose)
	return out, nil
}

// Healthy reports whether the authority answers its health check.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: healthz: %s", ErrRejected, resp.Status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", keydist.ContentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: post %s: %s: %s", ErrRejected, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, wire.MaxFrameSize))
}
