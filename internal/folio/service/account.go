package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/pkg/cryptox"
	"github.com/aussiebroadwan/folio/pkg/slogx"
)

const maxNameLength = 100

// AccountService covers login, invitation acceptance and account
// administration.
type AccountService struct {
	Store       store.Store
	Hasher      *cryptox.Hasher
	Policy      PasswordPolicy
	Sessions    *SessionManager
	Invitations *InvitationManager
	Now         func() time.Time
}

func (s *AccountService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Login checks credentials and mints a session. Every failure matches
// ErrInvalidCredentials; the *LoginError carries the reason for auditing.
func (s *AccountService) Login(ctx context.Context, email, password string, meta ClientMeta) (domain.Account, IssuedSession, error) {
	log := slogx.FromContext(ctx)
	email = domain.NormalizeEmail(email)

	// 1. Look up the account. Unknown accounts still pay for a derivation
	// so response time does not reveal which emails exist.
	acct, err := s.Store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.Hasher.DummyVerify(password)
			return domain.Account{}, IssuedSession{}, &LoginError{Reason: ReasonUnknownAccount}
		}
		return domain.Account{}, IssuedSession{}, fmt.Errorf("lookup account: %w", err)
	}

	// 2. Verify the password before looking at the active flag.
	if !s.Hasher.Verify(password, acct.PasswordHash) {
		return acct, IssuedSession{}, &LoginError{Reason: ReasonWrongPassword}
	}
	if !acct.Active {
		return acct, IssuedSession{}, &LoginError{Reason: ReasonAccountDisabled}
	}

	// 3. Upgrade hashes made with older parameters or algorithms.
	if s.Hasher.NeedsRehash(acct.PasswordHash) {
		if hash, err := s.Hasher.Hash(password); err != nil {
			log.Warn("failed to rehash password", slog.Int64("account_id", acct.ID), slog.Any("error", err))
		} else if err := s.Store.Accounts().UpdatePasswordHash(ctx, acct.ID, hash, s.now()); err != nil {
			log.Warn("failed to store rehashed password", slog.Int64("account_id", acct.ID), slog.Any("error", err))
		} else {
			acct.PasswordHash = hash
			log.Info("password rehashed", slog.Int64("account_id", acct.ID))
		}
	}

	// 4. Mint the session and stamp the login.
	issued, err := s.Sessions.Create(ctx, acct.ID, meta)
	if err != nil {
		return acct, IssuedSession{}, err
	}
	now := s.now()
	if err := s.Store.Accounts().TouchLastLogin(ctx, acct.ID, now); err != nil {
		log.Warn("failed to record last login", slog.Int64("account_id", acct.ID), slog.Any("error", err))
	} else {
		acct.LastLoginAt = &now
	}
	return acct, issued, nil
}

// checkPassword runs the policy and turns a rejection into a ValidationError.
func (s *AccountService) checkPassword(field, password string, userInputs ...string) error {
	res := s.Policy.Evaluate(password, userInputs...)
	if res.Valid {
		return nil
	}
	return &ValidationError{
		Message: "password does not meet the policy",
		Fields:  map[string]string{field: strings.Join(res.Errors, "; ")},
	}
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", InvalidField("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	return name, nil
}

// AcceptInvitation turns a consumable invitation into an account. If the
// address is already registered nothing is written and the invitation stays
// consumable.
func (s *AccountService) AcceptInvitation(ctx context.Context, token, password, name string) (domain.Account, domain.Invitation, error) {
	log := slogx.FromContext(ctx)

	// 1. Cheap checks before the expensive derivation.
	inv, err := s.Invitations.Consume(ctx, token)
	if err != nil {
		return domain.Account{}, domain.Invitation{}, err
	}
	if name, err = cleanName(name); err != nil {
		return domain.Account{}, inv, err
	}
	if err := s.checkPassword("password", password, inv.Email, name); err != nil {
		return domain.Account{}, inv, err
	}

	// 2. Derive outside the transaction so the write lock is held briefly.
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return domain.Account{}, inv, fmt.Errorf("hash password: %w", err)
	}

	// 3. Re-check the invitation, create the account and stamp acceptance
	// in one transaction.
	now := s.now()
	acct := domain.Account{
		Email:        inv.Email,
		PasswordHash: hash,
		Name:         name,
		Role:         inv.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		current, err := s.Invitations.consume(ctx, tx, token)
		if err != nil {
			return err
		}
		if _, err := tx.Accounts().GetByEmail(ctx, current.Email); err == nil {
			return ErrAccountExists
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		id, err := tx.Accounts().Create(ctx, acct)
		if err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrAccountExists
			}
			return err
		}
		acct.ID = id

		stamped, err := s.Invitations.markAccepted(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		if !stamped {
			// Lost a race with another acceptance; roll the account back.
			return ErrInvitationInvalid
		}
		inv = current
		inv.AcceptedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			log.Warn("invitation accepted for existing account",
				slog.String("invitation_id", inv.ID),
				slog.String("email", inv.Email),
			)
		}
		return domain.Account{}, inv, err
	}

	log.Info("invitation accepted",
		slog.String("invitation_id", inv.ID),
		slog.Int64("account_id", acct.ID),
		slog.String("role", string(acct.Role)),
	)
	return acct, inv, nil
}

// Get returns the account with id.
func (s *AccountService) Get(ctx context.Context, id int64) (domain.Account, error) {
	a, err := s.Store.Accounts().GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Account{}, ErrNotFound
	}
	return a, err
}

func (s *AccountService) List(ctx context.Context) ([]domain.Account, error) {
	return s.Store.Accounts().List(ctx)
}

// UpdateProfile lets an account change its own display name.
func (s *AccountService) UpdateProfile(ctx context.Context, id int64, name string) (before, after domain.Account, err error) {
	name, err = cleanName(name)
	if err != nil {
		return before, after, err
	}
	before, err = s.Get(ctx, id)
	if err != nil {
		return before, after, err
	}
	after = before
	after.Name = name
	after.UpdatedAt = s.now()
	if err := s.Store.Accounts().Update(ctx, after); err != nil {
		return before, before, fmt.Errorf("update account: %w", err)
	}
	return before, after, nil
}

// AccountPatch is an administrative edit. Nil fields are left alone.
type AccountPatch struct {
	Name   *string
	Role   *domain.Role
	Active *bool
}

// Update applies patch to account id on behalf of actor. Deactivating an
// account revokes its sessions.
func (s *AccountService) Update(ctx context.Context, actor domain.Account, id int64, patch AccountPatch) (before, after domain.Account, err error) {
	if !actor.Role.IsAdmin() {
		return before, after, ErrForbidden
	}
	before, err = s.Get(ctx, id)
	if err != nil {
		return before, after, err
	}

	after = before
	if patch.Name != nil {
		if after.Name, err = cleanName(*patch.Name); err != nil {
			return before, before, err
		}
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return before, before, InvalidField("role", "must be one of admin, editor, viewer")
		}
		after.Role = *patch.Role
	}
	if patch.Active != nil {
		after.Active = *patch.Active
	}
	if actor.ID == id && (!after.Active || !after.Role.IsAdmin()) {
		return before, before, Invalid("you cannot demote or deactivate your own account")
	}

	after.UpdatedAt = s.now()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().Update(ctx, after); err != nil {
			return err
		}
		if before.Active && !after.Active {
			_, err := destroyAllForAccount(ctx, tx, id, "")
			return err
		}
		return nil
	})
	if err != nil {
		return before, before, fmt.Errorf("update account: %w", err)
	}
	return before, after, nil
}

// ChangePassword replaces the password of acct and revokes every other
// session. currentToken is the session that stays signed in.
func (s *AccountService) ChangePassword(ctx context.Context, acct domain.Account, currentToken, current, next string) (int64, error) {
	if !s.Hasher.Verify(current, acct.PasswordHash) {
		return 0, InvalidField("current_password", "is incorrect")
	}
	if current == next {
		return 0, InvalidField("new_password", "must differ from the current password")
	}
	if err := s.checkPassword("new_password", next, acct.Email, acct.Name); err != nil {
		return 0, err
	}

	hash, err := s.Hasher.Hash(next)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	var revoked int64
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().UpdatePasswordHash(ctx, acct.ID, hash, s.now()); err != nil {
			return err
		}
		revoked, err = destroyAllForAccount(ctx, tx, acct.ID, currentToken)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("change password: %w", err)
	}
	return revoked, nil
}

// ForceLogout revokes every session of account id.
func (s *AccountService) ForceLogout(ctx context.Context, id int64) (domain.Account, int64, error) {
	acct, err := s.Get(ctx, id)
	if err != nil {
		return acct, 0, err
	}
	n, err := s.Sessions.DestroyAllForAccount(ctx, id, "")
	return acct, n, err
}

// Delete removes account id after revoking all of its sessions.
func (s *AccountService) Delete(ctx context.Context, actor domain.Account, id int64) (domain.Account, error) {
	if !actor.Role.IsAdmin() {
		return domain.Account{}, ErrForbidden
	}
	if actor.ID == id {
		return domain.Account{}, Invalid("you cannot delete your own account")
	}
	acct, err := s.Get(ctx, id)
	if err != nil {
		return acct, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := destroyAllForAccount(ctx, tx, id, ""); err != nil {
			return err
		}
		return tx.Accounts().Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return acct, ErrNotFound
		}
		return acct, fmt.Errorf("delete account: %w", err)
	}

	slogx.FromContext(ctx).Info("account deleted",
		slog.Int64("account_id", id),
		slog.Int64("actor_id", actor.ID),
	)
	return acct, nil
}

// Seed creates the first elevated admin. It refuses once any account exists.
func (s *AccountService) Seed(ctx context.Context, email, password, name string) (domain.Account, error) {
	l := slogx.FromContext(ctx)

	// 1. Only an empty store may be seeded.
	n, err := s.Store.Accounts().Count(ctx)
	if err != nil {
		return domain.Account{}, fmt.Errorf("count accounts: %w", err)
	}
	if n > 0 {
		l.Warn("attempted seed on non-empty store", slog.Int("accounts", n))
		return domain.Account{}, ErrAlreadySeeded
	}

	// 2. Validate the admin credentials.
	email = domain.NormalizeEmail(email)
	if !domain.ValidEmail(email) {
		return domain.Account{}, InvalidField("email", "must be a valid email address")
	}
	if name, err = cleanName(name); err != nil {
		return domain.Account{}, err
	}
	if err := s.checkPassword("password", password, email, name); err != nil {
		return domain.Account{}, err
	}

	// 3. Hash and store.
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	acct := domain.Account{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         domain.RoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	acct.ID, err = s.Store.Accounts().Create(ctx, acct)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Account{}, ErrAlreadySeeded
		}
		return domain.Account{}, fmt.Errorf("create admin: %w", err)
	}

	l.Info("seeded admin account", slog.Int64("account_id", acct.ID), slog.String("email", email))
	return acct, nil
}
