package authority

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/lsmon/iotauth/internal/crypto"
	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/protocol/keydist"
)

// MaxKeysPerRequest bounds NumKeys in a single request.
const MaxKeysPerRequest = 100

// MaxClockSkew is how far a request timestamp may be from the authority's
// clock.
const MaxClockSkew = 5 * time.Minute

var (
	ErrUnknownEntity = errors.New("authority: unknown entity")
	ErrUnknownKey    = errors.New("authority: unknown session key")
	ErrBadRequest    = errors.New("authority: bad request")
	ErrStaleRequest  = errors.New("authority: stale request")
)

// Entity is a registered requester.
type Entity struct {
	Name         domain.EntityName
	SigningKey   domain.Ed25519Public
	AgreementKey domain.X25519Public

	// DistributionKey is a pre-shared distribution key. When set it is
	// never rotated or transported.
	DistributionKey *domain.DistributionKey
}

// Config configures an Authority.
type Config struct {
	SigningKey           domain.Ed25519Private
	Entities             []Entity
	SessionSpec          domain.CryptoSpec
	DistributionSpec     domain.CryptoSpec
	SessionLifetime      time.Duration
	DistributionLifetime time.Duration
	Log                  *logging.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

type issuedKey struct {
	key     domain.SessionKey
	owner   domain.EntityName
	purpose domain.Purpose
}

// Authority issues session and distribution keys.
type Authority struct {
	cfg Config
	log *logging.Logger
	now func() time.Time

	mu       sync.Mutex
	entities map[domain.EntityName]Entity
	distKeys map[domain.EntityName]domain.DistributionKey
	issued   map[domain.KeyID]issuedKey
	nextID   domain.KeyID
}

// New returns an Authority serving cfg.Entities.
func New(cfg Config) (*Authority, error) {
	if err := crypto.ValidateSpec(cfg.SessionSpec); err != nil {
		return nil, err
	}
	if err := crypto.ValidateSpec(cfg.DistributionSpec); err != nil {
		return nil, err
	}
	a := &Authority{
		cfg:      cfg,
		log:      cfg.Log,
		now:      cfg.Now,
		entities: make(map[domain.EntityName]Entity),
		distKeys: make(map[domain.EntityName]domain.DistributionKey),
		issued:   make(map[domain.KeyID]issuedKey),
		nextID:   1,
	}
	if a.log == nil {
		a.log = logging.MustGetLogger("authority")
	}
	if a.now == nil {
		a.now = time.Now
	}
	for _, e := range cfg.Entities {
		a.entities[e.Name] = e
	}
	return a, nil
}

// PublicKey returns the key responses are signed with.
func (a *Authority) PublicKey() domain.Ed25519Public {
	var pub domain.Ed25519Public
	copy(pub[:], a.cfg.SigningKey[32:])
	return pub
}

// HandleRequest verifies and answers an encoded signed request, returning the
// encoded signed response.
func (a *Authority) HandleRequest(b []byte) ([]byte, error) {
	signed, req, err := keydist.ParseRequest(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	a.mu.Lock()
	ent, ok := a.entities[req.RequesterName]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, req.RequesterName)
	}
	if err := keydist.VerifyRequest(ent.SigningKey, signed); err != nil {
		return nil, err
	}

	resp, err := a.Issue(ent, req)
	if err != nil {
		return nil, err
	}
	return keydist.EncodeResponse(a.cfg.SigningKey, resp)
}

// Issue answers an authenticated request from ent.
func (a *Authority) Issue(ent Entity, req keydist.Request) (keydist.Response, error) {
	var resp keydist.Response
	now := a.now()

	if skew := now.Sub(req.Timestamp); skew > MaxClockSkew || skew < -MaxClockSkew {
		return resp, ErrStaleRequest
	}
	if len(req.Nonce) == 0 {
		return resp, fmt.Errorf("%w: missing nonce", ErrBadRequest)
	}
	if req.NumKeys < 1 || req.NumKeys > MaxKeysPerRequest {
		return resp, fmt.Errorf("%w: numKeys %d out of range", ErrBadRequest, req.NumKeys)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var keys []domain.SessionKey
	if req.Purpose.KeyID != nil {
		ik, ok := a.issued[*req.Purpose.KeyID]
		if !ok {
			return resp, fmt.Errorf("%w: %d", ErrUnknownKey, *req.Purpose.KeyID)
		}
		keys = []domain.SessionKey{ik.key.Clone()}
		a.log.Debugf("%s fetched key %d issued to %s for %s", ent.Name, ik.key.ID, ik.owner, ik.purpose)
	} else {
		var err error
		if keys, err = a.issueLocked(ent.Name, req.Purpose, req.NumKeys, now); err != nil {
			return resp, err
		}
		a.log.Debugf("issued %d keys to %s for %s", len(keys), ent.Name, req.Purpose)
	}

	dk, box, err := a.distributionKeyLocked(ent, req.DistKeyFingerprint, now)
	if err != nil {
		return resp, err
	}
	sealed, err := keydist.SealSessionKeys(dk, req.Nonce, keys)
	if err != nil {
		return resp, err
	}
	return keydist.Response{
		ReplyNonce:      bytes.Clone(req.Nonce),
		DistributionKey: box,
		SealedKeys:      sealed,
	}, nil
}

func (a *Authority) issueLocked(owner domain.EntityName, purpose domain.Purpose, n int, now time.Time) ([]domain.SessionKey, error) {
	keys := make([]domain.SessionKey, 0, n)
	for i := 0; i < n; i++ {
		raw, err := crypto.GenerateKey(a.cfg.SessionSpec)
		if err != nil {
			return nil, err
		}
		k := domain.SessionKey{
			ID:       a.nextID,
			Key:      raw,
			Expiry:   now.Add(a.cfg.SessionLifetime),
			Lifetime: a.cfg.SessionLifetime,
			Spec:     a.cfg.SessionSpec,
		}
		a.nextID++
		a.issued[k.ID] = issuedKey{key: k, owner: owner, purpose: purpose}
		keys = append(keys, k.Clone())
	}
	return keys, nil
}

// distributionKeyLocked returns the entity's distribution key, and a box
// carrying it when the entity does not already hold it.
func (a *Authority) distributionKeyLocked(ent Entity, fingerprint string, now time.Time) (domain.DistributionKey, *keydist.DistKeyBox, error) {
	if ent.DistributionKey != nil {
		return ent.DistributionKey.Clone(), nil, nil
	}
	if cur, ok := a.distKeys[ent.Name]; ok && cur.ValidAt(now) && fingerprint == keydist.Fingerprint(&cur) {
		return cur, nil, nil
	}
	raw, err := crypto.GenerateKey(a.cfg.DistributionSpec)
	if err != nil {
		return domain.DistributionKey{}, nil, err
	}
	dk := domain.DistributionKey{
		Key:    raw,
		Expiry: now.Add(a.cfg.DistributionLifetime),
		Spec:   a.cfg.DistributionSpec,
	}
	box, err := keydist.SealDistributionKey(ent.AgreementKey, dk)
	if err != nil {
		return domain.DistributionKey{}, nil, err
	}
	a.distKeys[ent.Name] = dk
	a.log.Noticef("new distribution key for %s expires %s", ent.Name, dk.Expiry.Format(time.RFC3339))
	return dk, box, nil
}
