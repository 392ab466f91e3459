package dbbadger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"

	"github.com/pablex-exchange/custody-daemon/internal/core/domain"
	"github.com/pablex-exchange/custody-daemon/internal/core/ports"
)

// DbManager holds the badgerhold store and the repositories backed by it.
type DbManager struct {
	store *badgerhold.Store

	walletRepo     domain.WalletRepository
	balanceRepo    domain.BalanceRepository
	depositRepo    domain.DepositRepository
	withdrawalRepo domain.WithdrawalRepository
}

// NewDbManager opens (or creates if not exists) the badger store on disk. It
// expects a base data dir and an optional logger.
func NewDbManager(baseDbDir string, logger badger.Logger) (ports.DbManager, error) {
	store, err := createDb(baseDbDir+"/custody", logger)
	if err != nil {
		return nil, fmt.Errorf("opening custody db: %w", err)
	}

	return &DbManager{
		store:          store,
		walletRepo:     NewWalletRepositoryImpl(store),
		balanceRepo:    NewBalanceRepositoryImpl(store),
		depositRepo:    NewDepositRepositoryImpl(store),
		withdrawalRepo: NewWithdrawalRepositoryImpl(store),
	}, nil
}

func (d *DbManager) WalletRepository() domain.WalletRepository {
	return d.walletRepo
}

func (d *DbManager) BalanceRepository() domain.BalanceRepository {
	return d.balanceRepo
}

func (d *DbManager) DepositRepository() domain.DepositRepository {
	return d.depositRepo
}

func (d *DbManager) WithdrawalRepository() domain.WithdrawalRepository {
	return d.withdrawalRepo
}

func (d *DbManager) Close() {
	d.store.Close()
}

// JSONEncode is a custom JSON based encoder for badger
func JSONEncode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer

	en := json.NewEncoder(&buff)

	err := en.Encode(value)
	if err != nil {
		return nil, err
	}

	return buff.Bytes(), nil
}

// JSONDecode is a custom JSON based decoder for badger
func JSONDecode(data []byte, value interface{}) error {
	var buff bytes.Buffer
	de := json.NewDecoder(&buff)

	_, err := buff.Write(data)
	if err != nil {
		return err
	}

	return de.Decode(value)
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger
	opts.Compression = 0

	return badgerhold.Open(badgerhold.Options{
		Encoder:          JSONEncode,
		Decoder:          JSONDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
