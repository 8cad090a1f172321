package permission

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/logging"
	"github.com/GriffinCanCode/deskwidgets/internal/providers/settings"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/utils"
)

const keyPrefix = "Permission."

// record is the persisted form of a permission
type record struct {
	ID    string `json:"id"`
	Scope string `json:"scope"`
	Level string `json:"level"`
	State string `json:"state"`
}

// Store persists permission records through the settings collaborator.
type Store struct {
	settings settings.Store
	ids      *utils.PermissionIdentifier
	log      *zap.Logger
}

// NewStore creates a permission store over s
func NewStore(s settings.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		settings: s,
		ids:      utils.NewPermissionIdentifier(nil),
		log:      log.Named("permission.store"),
	}
}

// StoreKey returns the settings key for a subject/scope pair:
// "{identity}:Permission.{scope}" or "Permission.{scope}" for global.
func StoreKey(subject types.Subject, scope types.Scope) string {
	if id, ok := subject.Widget(); ok {
		return settings.Key(id.String(), keyPrefix+string(scope))
	}
	return keyPrefix + string(scope)
}

// ID returns the deterministic permission id for a subject/scope pair
func (s *Store) ID(subject types.Subject, scope types.Scope) string {
	return s.ids.Generate(subject.String(), string(scope))
}

// New builds a permission value with its synthetic id
func (s *Store) New(subject types.Subject, scope types.Scope, level types.PermissionLevel, state types.PermissionState) types.Permission {
	return types.Permission{
		ID:      s.ID(subject, scope),
		Subject: subject,
		Scope:   scope,
		Level:   level,
		State:   state,
	}
}

// Load reads the persisted permission. An absent key is Undefined.
// A persisted Requested means the process died mid-consent; it reloads as
// Denied and the normalized record is written back on a best-effort basis.
func (s *Store) Load(subject types.Subject, scope types.Scope) (types.Permission, error) {
	key := StoreKey(subject, scope)
	rec, err := settings.GetValue(s.settings, key, record{})
	if err != nil {
		return s.New(subject, scope, types.LevelCoarse, types.PermissionDenied),
			fmt.Errorf("%w: load %s: %w", types.ErrPersistence, key, err)
	}
	if rec == (record{}) {
		return s.New(subject, scope, types.LevelCoarse, types.PermissionUndefined), nil
	}

	state, err := types.ParsePermissionState(rec.State)
	if err != nil {
		s.log.Warn("unknown persisted state, treating as denied",
			zap.String("key", key), zap.String("state", rec.State))
	}
	level, _ := types.ParsePermissionLevel(rec.Level)
	p := s.New(subject, scope, level, state)

	if p.State == types.PermissionRequested {
		p.State = types.PermissionDenied
		if err := s.Save(p); err != nil {
			s.log.Warn("could not normalize pending request",
				logging.Subject(subject), logging.Scope(scope), zap.Error(err))
		} else {
			s.log.Info("pending request reloaded as denied",
				logging.Subject(subject), logging.Scope(scope))
		}
	}
	return p, nil
}

// Save writes p. Undefined removes the record, since absence already
// means Undefined.
func (s *Store) Save(p types.Permission) error {
	key := StoreKey(p.Subject, p.Scope)
	if p.State == types.PermissionUndefined {
		if _, err := s.settings.Remove(key); err != nil {
			return fmt.Errorf("%w: remove %s: %w", types.ErrPersistence, key, err)
		}
		return nil
	}

	rec := record{
		ID:    p.ID,
		Scope: string(p.Scope),
		Level: p.Level.String(),
		State: p.State.String(),
	}
	if err := settings.SetValue(s.settings, key, rec); err != nil {
		return fmt.Errorf("%w: save %s: %w", types.ErrPersistence, key, err)
	}
	return nil
}

// Discard removes the persisted record so the key reloads as Undefined
func (s *Store) Discard(subject types.Subject, scope types.Scope) error {
	key := StoreKey(subject, scope)
	if _, err := s.settings.Remove(key); err != nil {
		return fmt.Errorf("%w: remove %s: %w", types.ErrPersistence, key, err)
	}
	return nil
}
