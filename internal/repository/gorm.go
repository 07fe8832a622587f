package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// translate maps GORM errors onto the package sentinels. The connection must be
// opened with TranslateError so that unique violations surface as ErrDuplicatedKey.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func affected(res *gorm.DB) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func limitPage(db *gorm.DB, p Page) *gorm.DB {
	if p.Limit > 0 {
		db = db.Limit(p.Limit)
	}
	if p.Offset > 0 {
		db = db.Offset(p.Offset)
	}
	return db
}

type txReposGorm struct {
	users    *UserGormRepository
	products *ProductGormRepository
	carts    *CartGormRepository
	orders   *OrderGormRepository
}

func (r *txReposGorm) Users() UserRepository       { return r.users }
func (r *txReposGorm) Products() ProductRepository { return r.products }
func (r *txReposGorm) Carts() CartRepository       { return r.carts }
func (r *txReposGorm) Orders() OrderRepository     { return r.orders }

// TxManagerGorm implements TxManager with gorm.DB.Transaction.
type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txReposGorm{
			users:    NewUserGormRepository(tx),
			products: NewProductGormRepository(tx),
			carts:    NewCartGormRepository(tx),
			orders:   NewOrderGormRepository(tx),
		})
	})
}

// Store bundles the GORM repositories that share one connection pool.
type Store struct {
	Users     *UserGormRepository
	Products  *ProductGormRepository
	Carts     *CartGormRepository
	Orders    *OrderGormRepository
	Shipments *ShipmentGormRepository
	Tx        *TxManagerGorm
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		Users:     NewUserGormRepository(db),
		Products:  NewProductGormRepository(db),
		Carts:     NewCartGormRepository(db),
		Orders:    NewOrderGormRepository(db),
		Shipments: NewShipmentGormRepository(db),
		Tx:        NewTxManagerGorm(db),
	}
}

var (
	_ UserRepository     = (*UserGormRepository)(nil)
	_ ProductRepository  = (*ProductGormRepository)(nil)
	_ CartRepository     = (*CartGormRepository)(nil)
	_ OrderRepository    = (*OrderGormRepository)(nil)
	_ ShipmentRepository = (*ShipmentGormRepository)(nil)
	_ TxManager          = (*TxManagerGorm)(nil)
)
