//go:generate go run go.uber.org/mock/mockgen -source=account_repository.go -destination=../../mocks/mock_account_repository.go -package=mocks
package storage

import (
	"charity-chat/domain"
	"charity-chat/errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	accountPrefix  = "account:"
	identityPrefix = "identity:"
)

type IAccountRepository interface {
	CreateUser(user domain.User) (domain.User, error)
	CreateCharity(charity domain.Charity) (domain.Charity, error)
	GetByEmail(email string) (domain.Profile, error)
	GetByID(id string) (domain.Profile, error)
}

// AccountRepository stores donors and charities in one identity space.
// "account:{email}" points to the id, "identity:{id}" holds the record.
type AccountRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewAccountRepository(db *badger.DB, log *slog.Logger) *AccountRepository {
	return &AccountRepository{db: db, log: log, now: time.Now}
}

func (r *AccountRepository) CreateUser(user domain.User) (domain.User, error) {
	user.ID = uuid.New().String()
	user.Email = normalizeEmail(user.Email)
	user.CreatedAt = r.now().UTC()
	profile := domain.Profile{User: &user}
	if err := r.create(profile); err != nil {
		return domain.User{}, err
	}
	r.log.Debug("Donor registered", "id", user.ID)
	return user, nil
}

func (r *AccountRepository) CreateCharity(charity domain.Charity) (domain.Charity, error) {
	charity.ID = uuid.New().String()
	charity.Email = normalizeEmail(charity.Email)
	charity.CreatedAt = r.now().UTC()
	profile := domain.Profile{Charity: &charity}
	if err := r.create(profile); err != nil {
		return domain.Charity{}, err
	}
	r.log.Debug("Charity registered", "id", charity.ID)
	return charity, nil
}

func (r *AccountRepository) create(profile domain.Profile) error {
	data, err := marshalRecord(fromProfile(profile))
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		emailKey := []byte(accountPrefix + profile.Email())
		if _, err := txn.Get(emailKey); err == nil {
			return errors.ErrUserAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(emailKey, []byte(profile.ID())); err != nil {
			return err
		}
		return txn.Set([]byte(identityPrefix+profile.ID()), data)
	})
}

func (r *AccountRepository) GetByEmail(email string) (domain.Profile, error) {
	var profile domain.Profile
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(accountPrefix + normalizeEmail(email)))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("account %w", errors.ErrNotFound)
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		profile, err = getProfile(txn, string(id))
		return err
	})
	return profile, err
}

func (r *AccountRepository) GetByID(id string) (domain.Profile, error) {
	var profile domain.Profile
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		profile, err = getProfile(txn, id)
		return err
	})
	return profile, err
}

func getProfile(txn *badger.Txn, id string) (domain.Profile, error) {
	item, err := txn.Get([]byte(identityPrefix + id))
	if err == badger.ErrKeyNotFound {
		return domain.Profile{}, fmt.Errorf("identity %s %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return domain.Profile{}, err
	}
	var profile domain.Profile
	err = item.Value(func(val []byte) error {
		rec, err := unmarshalRecord(val)
		if err != nil {
			return err
		}
		profile, err = toProfile(rec)
		return err
	})
	return profile, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func fromProfile(p domain.Profile) map[string]any {
	if c := p.Charity; c != nil {
		return map[string]any{
			"kind":          string(domain.KindCharity),
			"id":            c.ID,
			"nombre":        c.Nombre,
			"email":         c.Email,
			"direccion":     c.Direccion,
			"telefono":      c.Telefono,
			"descripcion":   c.Descripcion,
			"access_token":  c.AccessToken,
			"password_hash": c.PasswordHash,
			"created_at":    formatTime(c.CreatedAt),
		}
	}
	u := p.User
	return map[string]any{
		"kind":          string(domain.KindUser),
		"id":            u.ID,
		"nombre":        u.Nombre,
		"apellido":      u.Apellido,
		"email":         u.Email,
		"password_hash": u.PasswordHash,
		"created_at":    formatTime(u.CreatedAt),
	}
}

func toProfile(rec record) (domain.Profile, error) {
	createdAt, err := rec.time("created_at")
	if err != nil {
		return domain.Profile{}, err
	}
	switch domain.Kind(rec.str("kind")) {
	case domain.KindCharity:
		return domain.Profile{Charity: &domain.Charity{
			ID:           rec.str("id"),
			Nombre:       rec.str("nombre"),
			Email:        rec.str("email"),
			Direccion:    rec.str("direccion"),
			Telefono:     rec.str("telefono"),
			Descripcion:  rec.str("descripcion"),
			AccessToken:  rec.str("access_token"),
			PasswordHash: rec.str("password_hash"),
			CreatedAt:    createdAt,
		}}, nil
	case domain.KindUser:
		return domain.Profile{User: &domain.User{
			ID:           rec.str("id"),
			Nombre:       rec.str("nombre"),
			Apellido:     rec.str("apellido"),
			Email:        rec.str("email"),
			PasswordHash: rec.str("password_hash"),
			CreatedAt:    createdAt,
		}}, nil
	default:
		return domain.Profile{}, fmt.Errorf("unknown account kind %q", rec.str("kind"))
	}
}
