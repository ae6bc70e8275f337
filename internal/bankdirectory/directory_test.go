package bankdirectory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Godswillamos0/escrow-api/internal/bankdirectory"
	"github.com/Godswillamos0/escrow-api/internal/cache/rediscache"
	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	mu           sync.Mutex
	bankCalls    int
	resolveCalls int
	err          error
}

func (source *countingSource) ListBanks(context.Context) ([]bankdirectory.Bank, error) {
	source.mu.Lock()
	defer source.mu.Unlock()
	source.bankCalls++
	if source.err != nil {
		return nil, source.err
	}
	return []bankdirectory.Bank{{Name: "Access Bank", Code: "044", Slug: "access-bank"}, {Name: "GTBank", Code: "058", Slug: "guaranty-trust-bank"}}, nil
}

func (source *countingSource) ResolveAccount(_ context.Context, bankCode string, accountNumber string) (bankdirectory.ResolvedAccount, error) {
	source.mu.Lock()
	defer source.mu.Unlock()
	source.resolveCalls++
	if source.err != nil {
		return bankdirectory.ResolvedAccount{}, source.err
	}
	return bankdirectory.ResolvedAccount{BankCode: bankCode, AccountNumber: accountNumber, AccountName: "ADA OBI"}, nil
}

type failingCache struct {
	writes int
}

func (cache *failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (cache *failingCache) Set(context.Context, string, []byte, time.Duration) error {
	cache.writes++
	return errors.New("connection refused")
}

func newRedisDirectory(test *testing.T, source bankdirectory.Source) (*bankdirectory.Directory, *miniredis.Miniredis) {
	test.Helper()
	server := miniredis.RunT(test)
	cache, err := rediscache.Open(context.Background(), "redis://"+server.Addr())
	require.NoError(test, err)
	test.Cleanup(func() { _ = cache.Close() })
	directory, err := bankdirectory.New(source, bankdirectory.WithCache(cache))
	require.NoError(test, err)
	return directory, server
}

func TestListBanksIsCachedForTwoHours(test *testing.T) {
	source := &countingSource{}
	directory, server := newRedisDirectory(test, source)
	ctx := context.Background()

	first, err := directory.ListBanks(ctx)
	require.NoError(test, err)
	second, err := directory.ListBanks(ctx)
	require.NoError(test, err)

	assert.Equal(test, first, second)
	assert.Len(test, second, 2)
	assert.Equal(test, 1, source.bankCalls)
	assert.Equal(test, 2*time.Hour, server.TTL("escrow:banks"))

	server.FastForward(2*time.Hour + time.Second)
	_, err = directory.ListBanks(ctx)
	require.NoError(test, err)
	assert.Equal(test, 2, source.bankCalls)
}

func TestResolveAccountIsCachedPerAccount(test *testing.T) {
	source := &countingSource{}
	directory, server := newRedisDirectory(test, source)
	ctx := context.Background()

	account, err := directory.ResolveAccount(ctx, "058", "0123456789")
	require.NoError(test, err)
	assert.Equal(test, "ADA OBI", account.AccountName)

	_, err = directory.ResolveAccount(ctx, "058", "0123456789")
	require.NoError(test, err)
	_, err = directory.ResolveAccount(ctx, "044", "0123456789")
	require.NoError(test, err)

	assert.Equal(test, 2, source.resolveCalls)
	assert.Equal(test, time.Hour, server.TTL("escrow:058:0123456789"))
}

func TestResolveAccountValidatesInput(test *testing.T) {
	directory, err := bankdirectory.New(&countingSource{})
	require.NoError(test, err)

	testCases := []struct {
		name          string
		bankCode      string
		accountNumber string
	}{
		{name: "missing bank", bankCode: " ", accountNumber: "0123456789"},
		{name: "short account", bankCode: "058", accountNumber: "12345"},
		{name: "letters", bankCode: "058", accountNumber: "01234567AB"},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			_, err := directory.ResolveAccount(context.Background(), testCase.bankCode, testCase.accountNumber)
			assert.ErrorIs(test, err, ledger.ErrInvalidBankAccount)
			assert.ErrorIs(test, err, ledger.ErrInvalidInput)
		})
	}
}

func TestCacheFailuresFallThroughToSource(test *testing.T) {
	source := &countingSource{}
	cache := &failingCache{}
	directory, err := bankdirectory.New(source, bankdirectory.WithCache(cache))
	require.NoError(test, err)

	banks, err := directory.ListBanks(context.Background())
	require.NoError(test, err)
	assert.Len(test, banks, 2)
	assert.Equal(test, 1, cache.writes)
}

func TestCorruptCacheEntryFallsThrough(test *testing.T) {
	source := &countingSource{}
	directory, server := newRedisDirectory(test, source)
	require.NoError(test, server.Set("escrow:banks", "not json"))

	banks, err := directory.ListBanks(context.Background())
	require.NoError(test, err)
	assert.Len(test, banks, 2)
	assert.Equal(test, 1, source.bankCalls)
}

func TestSourceErrorsAreNotCached(test *testing.T) {
	source := &countingSource{err: ledger.ErrGateway}
	directory, server := newRedisDirectory(test, source)

	_, err := directory.ListBanks(context.Background())
	assert.ErrorIs(test, err, ledger.ErrGateway)
	assert.False(test, server.Exists("escrow:banks"))
}

func TestNewRequiresSource(test *testing.T) {
	_, err := bankdirectory.New(nil)
	require.Error(test, err)
}
