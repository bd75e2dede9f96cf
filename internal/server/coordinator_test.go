package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lsmon/iotauth/internal/domain"
)

func TestRequestKeysRejectsCountBelowOne(t *testing.T) {
	client := &fakeClient{respond: respondWith(testKey(1))}
	s := newSyncServer(client, &countingSealer{})

	_, err := s.coord.RequestKeys(domain.PurposeCachedKeys(101), 0, GeneralPool{})
	require.ErrorIs(t, err, ErrInvalidKeyCount)
	require.Empty(t, client.sent())
	require.Zero(t, s.coord.Pending())
}

func TestPrefetchFillsGeneralPool(t *testing.T) {
	require := require.New(t)
	client := &fakeClient{respond: respondWith(testKey(1), testKey(2), testKey(3))}
	s := newSyncServer(client, &countingSealer{})

	_, err := s.coord.PrefetchForFutureClients(3)
	require.NoError(err)

	reqs := client.sent()
	require.Len(reqs, 1)
	require.Equal(domain.EntityName("net1.server"), reqs[0].RequesterName)
	require.Equal(domain.PurposeCachedKeys(101), reqs[0].Purpose)
	require.Equal(3, reqs[0].NumKeys)
	require.Nil(reqs[0].DistributionKey)

	require.Equal(3, s.cache.Len())
	first, ok := s.cache.First()
	require.True(ok)
	require.Equal(domain.KeyID(1), first.ID)
	require.Zero(s.coord.Pending())

	client.respond = respondWith(testKey(4))
	_, err = s.coord.PrefetchForPublish(1, "")
	require.NoError(err)
	require.Equal(domain.PurposePubTopic("Ptopic"), client.sent()[1].Purpose)
	_, err = s.coord.PrefetchForPublish(1, "sensors")
	require.NoError(err)
	require.Equal(domain.PurposePubTopic("sensors"), client.sent()[2].Purpose)
}

func TestDistributionKeyRotation(t *testing.T) {
	require := require.New(t)
	dk1 := &domain.DistributionKey{Key: []byte("first-dist-key!!"), Spec: domain.CryptoSpec{Cipher: domain.CipherAES128GCM}}
	dk2 := &domain.DistributionKey{Key: []byte("second-dist-key!"), Spec: domain.CryptoSpec{Cipher: domain.CipherAES128GCM}}

	var next *domain.DistributionKey
	client := &fakeClient{respond: func(domain.SessionKeyRequest) (domain.SessionKeyResponse, error) {
		return domain.SessionKeyResponse{Keys: []domain.SessionKey{}, DistributionKey: next}, nil
	}}
	s := newSyncServer(client, &countingSealer{})

	next = dk1
	_, err := s.coord.PrefetchForFutureClients(1)
	require.NoError(err)
	got, ok := s.cache.DistributionKey()
	require.True(ok)
	require.Equal(dk1.Key, got.Key)

	// A response without a distribution key leaves the cached one alone,
	// and the cached one is presented with the next request.
	next = nil
	_, err = s.coord.PrefetchForFutureClients(1)
	require.NoError(err)
	got, _ = s.cache.DistributionKey()
	require.Equal(dk1.Key, got.Key)
	require.NotNil(client.sent()[1].DistributionKey)
	require.Equal(dk1.Key, client.sent()[1].DistributionKey.Key)

	next = dk2
	_, err = s.coord.PrefetchForFutureClients(1)
	require.NoError(err)
	got, _ = s.cache.DistributionKey()
	require.Equal(dk2.Key, got.Key)
}

func TestDistributionKeyReplacedBeforeKeysDispatched(t *testing.T) {
	dk := &domain.DistributionKey{Key: []byte("rotated-dist-key"), Spec: domain.CryptoSpec{Cipher: domain.CipherAES128GCM}}
	client := &fakeClient{respond: func(domain.SessionKeyRequest) (domain.SessionKeyResponse, error) {
		return domain.SessionKeyResponse{Keys: []domain.SessionKey{testKey(7)}, DistributionKey: dk}, nil
	}}
	s := newSyncServer(client, &countingSealer{})

	var seen []byte
	_, err := s.coord.RequestKeys(domain.PurposeKeyID(7), 1, HandshakeCompletion{
		Pending: PendingHandshake{RequestedKeyID: 7},
		Complete: func(domain.SessionKey) {
			got, _ := s.cache.DistributionKey()
			seen = got.Key
		},
	})
	require.NoError(t, err)
	require.Equal(t, dk.Key, seen)
}

func TestAuthorityFailureIsReportedWithoutRetry(t *testing.T) {
	client := &fakeClient{respond: func(domain.SessionKeyRequest) (domain.SessionKeyResponse, error) {
		return domain.SessionKeyResponse{}, errors.New("connection refused")
	}}
	s := newSyncServer(client, &countingSealer{})

	_, err := s.coord.PrefetchForFutureClients(2)
	require.NoError(t, err)

	require.Len(t, client.sent(), 1)
	require.Zero(t, s.cache.Len())
	require.Zero(t, s.coord.Pending())
	v, ok := s.LatestOutput(OutputError)
	require.True(t, ok)
	require.Contains(t, v, "connection refused")
}

func TestResponsesAreMatchedByRequestID(t *testing.T) {
	require := require.New(t)
	client := &fakeClient{}
	s := newSyncServer(client, &countingSealer{})

	var deferred []func()
	s.coord.deliver = func(fn func()) { deferred = append(deferred, fn) }

	client.respond = respondWith(testKey(1), testKey(2))
	poolID, err := s.coord.PrefetchForFutureClients(2)
	require.NoError(err)

	client.respond = respondWith(testKey(9))
	var completed []domain.KeyID
	hsID, err := s.coord.RequestKeys(domain.PurposeKeyID(9), 1, HandshakeCompletion{
		Pending:  PendingHandshake{RequestedKeyID: 9, Created: time.Now()},
		Complete: func(k domain.SessionKey) { completed = append(completed, k.ID) },
	})
	require.NoError(err)
	require.NotEqual(poolID, hsID)
	require.Equal(2, s.coord.Pending())

	hc, ok := s.coord.pending[hsID].(HandshakeCompletion)
	require.True(ok)
	require.Equal(hsID, hc.Pending.RequestID)

	// Deliver out of order.
	deferred[1]()
	require.Equal([]domain.KeyID{9}, completed)
	require.Zero(s.cache.Len())

	deferred[0]()
	require.Equal(2, s.cache.Len())
	require.Zero(s.coord.Pending())

	// A second delivery for the same request is ignored.
	deferred[1]()
	require.Equal([]domain.KeyID{9}, completed)
}
