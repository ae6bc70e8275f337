// Package bankdirectory serves the list of payout banks and account name
// lookups, caching provider answers.
package bankdirectory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"go.uber.org/zap"
)

const (
	banksCacheKey     = "banks"
	defaultBanksTTL   = 2 * time.Hour
	defaultAccountTTL = time.Hour
	nubanLength       = 10
)

var errMissingSource = errors.New("bank directory source is required")

// Bank is a payout destination institution.
type Bank struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Slug string `json:"slug"`
}

// ResolvedAccount is the registered holder of a bank account.
type ResolvedAccount struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// Source answers directory questions from the provider.
type Source interface {
	ListBanks(ctx context.Context) ([]Bank, error)
	ResolveAccount(ctx context.Context, bankCode string, accountNumber string) (ResolvedAccount, error)
}

// Cache stores encoded answers. A missing key reports found=false.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Directory reads through the cache to the source.
type Directory struct {
	source     Source
	cache      Cache
	logger     *zap.Logger
	banksTTL   time.Duration
	accountTTL time.Duration
}

// Option configures a Directory.
type Option func(*Directory)

// WithCache enables caching. Without it every call reaches the source.
func WithCache(cache Cache) Option {
	return func(directory *Directory) {
		directory.cache = cache
	}
}

// WithLogger wires a logger for cache failures.
func WithLogger(logger *zap.Logger) Option {
	return func(directory *Directory) {
		if logger != nil {
			directory.logger = logger
		}
	}
}

// WithTTLs overrides the cache lifetimes of the bank list and account lookups.
func WithTTLs(banks time.Duration, accounts time.Duration) Option {
	return func(directory *Directory) {
		if banks > 0 {
			directory.banksTTL = banks
		}
		if accounts > 0 {
			directory.accountTTL = accounts
		}
	}
}

// New constructs a Directory.
func New(source Source, options ...Option) (*Directory, error) {
	if source == nil {
		return nil, errMissingSource
	}
	directory := &Directory{
		source:     source,
		logger:     zap.NewNop(),
		banksTTL:   defaultBanksTTL,
		accountTTL: defaultAccountTTL,
	}
	for _, option := range options {
		option(directory)
	}
	return directory, nil
}

// ListBanks returns the provider's bank list.
func (directory *Directory) ListBanks(ctx context.Context) ([]Bank, error) {
	var banks []Bank
	if directory.lookup(ctx, banksCacheKey, &banks) {
		return banks, nil
	}
	banks, err := directory.source.ListBanks(ctx)
	if err != nil {
		return nil, err
	}
	directory.store(ctx, banksCacheKey, banks, directory.banksTTL)
	return banks, nil
}

// ResolveAccount returns the account holder registered for a bank account.
func (directory *Directory) ResolveAccount(ctx context.Context, bankCode string, accountNumber string) (ResolvedAccount, error) {
	bankCode = strings.TrimSpace(bankCode)
	accountNumber = strings.TrimSpace(accountNumber)
	if bankCode == "" || !isNUBAN(accountNumber) {
		return ResolvedAccount{}, ledger.ErrInvalidBankAccount
	}
	key := bankCode + ":" + accountNumber
	var account ResolvedAccount
	if directory.lookup(ctx, key, &account) {
		return account, nil
	}
	account, err := directory.source.ResolveAccount(ctx, bankCode, accountNumber)
	if err != nil {
		return ResolvedAccount{}, err
	}
	directory.store(ctx, key, account, directory.accountTTL)
	return account, nil
}

func (directory *Directory) lookup(ctx context.Context, key string, target interface{}) bool {
	if directory.cache == nil {
		return false
	}
	value, found, err := directory.cache.Get(ctx, key)
	if err != nil {
		directory.logger.Warn("bank directory cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(value, target); err != nil {
		directory.logger.Warn("bank directory cache entry unreadable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (directory *Directory) store(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if directory.cache == nil {
		return
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := directory.cache.Set(ctx, key, encoded, ttl); err != nil {
		directory.logger.Warn("bank directory cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func isNUBAN(accountNumber string) bool {
	if len(accountNumber) != nubanLength {
		return false
	}
	for _, character := range accountNumber {
		if character < '0' || character > '9' {
			return false
		}
	}
	return true
}
