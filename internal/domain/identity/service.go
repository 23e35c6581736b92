// Package identity owns user accounts, their verification lifecycle and the
// patient registry doctors maintain.
package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/devxworld/erx/internal/domain/auditlog"
	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/platform/auth"
	"github.com/devxworld/erx/internal/store"
)

const (
	minPasswordLength = 8
	tempPasswordChars = "abcdefghijklmnopqrstuvwxyz0123456789"
	tempPasswordLen   = 8
)

// RootAdmin is the administrator created by Seed.
var RootAdmin = User{
	ID:                 auth.DevUserID,
	Name:               "Super Admin",
	Email:              "admin@devxworld.com",
	Role:               auth.RoleAdmin,
	VerificationStatus: StatusVerified,
}

type Service struct {
	docs   store.DocumentStore
	writer *store.Writer
	audit  *auditlog.Service
	logger zerolog.Logger
	now    func() time.Time
	cost   int
}

func NewService(docs store.DocumentStore, writer *store.Writer, audit *auditlog.Service, logger zerolog.Logger) *Service {
	return &Service{
		docs:   docs,
		writer: writer,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		cost:   bcrypt.DefaultCost,
	}
}

// SetHashCost lowers the bcrypt cost, for tests.
func (s *Service) SetHashCost(cost int) {
	s.cost = cost
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// -- Users --

func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" {
		return User{}, apperr.Validation("name is required")
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return User{}, apperr.Validation("a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return User{}, apperr.Validation("password must be at least %d characters", minPasswordLength)
	}
	if !registrableRole(req.Role) {
		return User{}, apperr.Validation("role must be %s or %s", auth.RoleDoctor, auth.RolePharmacy)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	prefix := "doc-"
	if req.Role == auth.RolePharmacy {
		prefix = "ph-"
	}
	u := User{
		ID:                 prefix + uuid.NewString(),
		Name:               req.Name,
		Email:              req.Email,
		PasswordHash:       string(hash),
		Role:               req.Role,
		VerificationStatus: StatusPending,
		Phone:              req.Phone,
		RegistrationDate:   s.now(),
		PharmacyProfile:    req.Pharmacy,
	}

	err = s.writer.Do(ctx, func(unit *store.Unit) error {
		users, err := Users.Load(ctx, unit)
		if err != nil {
			return err
		}
		for _, existing := range users {
			if strings.EqualFold(existing.Email, u.Email) {
				return apperr.State("email %s is already registered", u.Email)
			}
		}
		return Users.Stage(unit, append(users, u))
	})
	if err != nil {
		return User{}, err
	}
	return u.Public(), nil
}

// Authenticate checks credentials for the session collaborator.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	users, err := Users.All(ctx, s.docs)
	if err != nil {
		return User{}, err
	}
	for _, u := range users {
		if !strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			continue
		}
		if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			break
		}
		if u.VerificationStatus == StatusTerminated {
			return User{}, apperr.Forbidden("account %s has been terminated", u.ID)
		}
		return u.Public(), nil
	}
	return User{}, apperr.Forbidden("invalid email or password")
}

func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	users, err := Users.All(ctx, s.docs)
	if err != nil {
		return User{}, err
	}
	if i := indexUser(users, id); i >= 0 {
		return users[i].Public(), nil
	}
	return User{}, apperr.NotFound("user", id)
}

// ListUsers filters by role and verification status when non-empty.
func (s *Service) ListUsers(ctx context.Context, role, status string) ([]User, error) {
	users, err := Users.All(ctx, s.docs)
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		if role != "" && u.Role != role {
			continue
		}
		if status != "" && u.VerificationStatus != status {
			continue
		}
		out = append(out, u.Public())
	}
	return out, nil
}

// VerifiedPharmacies lists the pharmacies a doctor may route a prescription to.
func (s *Service) VerifiedPharmacies(ctx context.Context) ([]User, error) {
	return s.ListUsers(ctx, auth.RolePharmacy, StatusVerified)
}

// SetStatus is the admin approval path. Terminated accounts are not revived here.
func (s *Service) SetStatus(ctx context.Context, actorID, userID, status string) (User, error) {
	if status != StatusVerified && status != StatusPending {
		return User{}, apperr.Validation("status must be %s or %s", StatusVerified, StatusPending)
	}
	var updated User
	err := s.mutateUser(ctx, userID, func(u *User) error {
		if u.VerificationStatus == StatusTerminated {
			return apperr.Transition(u.VerificationStatus, status)
		}
		u.VerificationStatus = status
		updated = *u
		return nil
	})
	if err != nil {
		return User{}, err
	}
	s.audit.Log(ctx, actorID, auditlog.ActionUserStatus, fmt.Sprintf("User %s (%s) set to %s", updated.ID, updated.Name, status))
	return updated.Public(), nil
}

// Terminate soft-deletes a user. The record is kept and login is refused.
func (s *Service) Terminate(ctx context.Context, actorID, userID, reason string) (User, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return User{}, apperr.Validation("termination reason is required")
	}
	if userID == actorID {
		return User{}, apperr.Forbidden("administrators cannot terminate themselves")
	}
	if actorID == "" {
		actorID = "SYSTEM"
	}
	var updated User
	err := s.mutateUser(ctx, userID, func(u *User) error {
		if u.VerificationStatus == StatusTerminated {
			return apperr.Transition(u.VerificationStatus, StatusTerminated)
		}
		at := s.now()
		u.VerificationStatus = StatusTerminated
		u.TerminatedAt = &at
		u.TerminatedBy = actorID
		u.TerminationReason = reason
		updated = *u
		return nil
	})
	if err != nil {
		return User{}, err
	}
	s.audit.Log(ctx, actorID, auditlog.ActionUserTerminated, fmt.Sprintf("User %s (%s) terminated: %s", updated.ID, updated.Name, reason))
	return updated.Public(), nil
}

// Delete removes the user record permanently.
func (s *Service) Delete(ctx context.Context, actorID, userID string) error {
	if userID == actorID {
		return apperr.Forbidden("administrators cannot delete themselves")
	}
	var removed User
	err := s.writer.Do(ctx, func(unit *store.Unit) error {
		users, err := Users.Load(ctx, unit)
		if err != nil {
			return err
		}
		i := indexUser(users, userID)
		if i < 0 {
			return apperr.NotFound("user", userID)
		}
		removed = users[i]
		return Users.Stage(unit, append(users[:i:i], users[i+1:]...))
	})
	if err != nil {
		return err
	}
	s.audit.Log(ctx, actorID, auditlog.ActionUserDeleted, fmt.Sprintf("User %s (%s) deleted", removed.ID, removed.Name))
	return nil
}

// ResetPassword sets a random temporary password and returns it once.
func (s *Service) ResetPassword(ctx context.Context, actorID, userID string) (string, error) {
	temp, err := temporaryPassword()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(temp), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	err = s.mutateUser(ctx, userID, func(u *User) error {
		u.PasswordHash = string(hash)
		u.ForcePasswordChange = true
		return nil
	})
	if err != nil {
		return "", err
	}
	s.audit.Log(ctx, actorID, auditlog.ActionPasswordReset, fmt.Sprintf("Password reset for user %s", userID))
	return temp, nil
}

// ChangePassword replaces the caller's password and clears the forced-change flag.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < minPasswordLength {
		return apperr.Validation("password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.mutateUser(ctx, userID, func(u *User) error {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
			return apperr.Forbidden("current password does not match")
		}
		u.PasswordHash = string(hash)
		u.ForcePasswordChange = false
		return nil
	})
}

// SubmitVerification stores a doctor's profile and puts the account back in
// the admin review queue.
func (s *Service) SubmitVerification(ctx context.Context, doctorID string, profile DoctorProfile) (User, error) {
	if err := profile.validate(); err != nil {
		return User{}, err
	}
	profile.SubmittedAt = s.now()
	var updated User
	err := s.mutateUser(ctx, doctorID, func(u *User) error {
		if u.Role != auth.RoleDoctor {
			return apperr.Forbidden("only doctors submit verification details")
		}
		if u.VerificationStatus == StatusTerminated {
			return apperr.Transition(u.VerificationStatus, StatusPending)
		}
		u.DoctorProfile = &profile
		u.Phone = profile.Phone
		u.VerificationStatus = StatusPending
		updated = *u
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return updated.Public(), nil
}

// UpdatePharmacyProfile lets a pharmacy maintain its own store details.
func (s *Service) UpdatePharmacyProfile(ctx context.Context, pharmacyID string, profile PharmacyProfile) (User, error) {
	var updated User
	err := s.mutateUser(ctx, pharmacyID, func(u *User) error {
		if u.Role != auth.RolePharmacy {
			return apperr.Forbidden("only pharmacies have a store profile")
		}
		u.PharmacyProfile = &profile
		updated = *u
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return updated.Public(), nil
}

// Seed creates the root administrator when no users exist.
func (s *Service) Seed(ctx context.Context, adminPassword string) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), s.cost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	seeded := false
	err = s.writer.Do(ctx, func(unit *store.Unit) error {
		users, err := Users.Load(ctx, unit)
		if err != nil {
			return err
		}
		if len(users) > 0 {
			return nil
		}
		admin := RootAdmin
		admin.PasswordHash = string(hash)
		admin.RegistrationDate = s.now()
		seeded = true
		return Users.Stage(unit, []User{admin})
	})
	if err != nil {
		return false, err
	}
	if seeded {
		s.logger.Info().Str("user_id", RootAdmin.ID).Msg("seeded root administrator")
	}
	return seeded, nil
}

// -- Lookups used inside other domains' units of work --

// VerifiedUser loads a user inside unit and checks its role and status.
func VerifiedUser(ctx context.Context, unit *store.Unit, id, role string) (User, error) {
	users, err := Users.Load(ctx, unit)
	if err != nil {
		return User{}, err
	}
	i := indexUser(users, id)
	if i < 0 {
		return User{}, apperr.NotFound("user", id)
	}
	if !users[i].IsVerified(role) {
		return User{}, apperr.Forbidden("%s %s is not verified", strings.ToLower(role), id)
	}
	return users[i], nil
}

func (s *Service) mutateUser(ctx context.Context, id string, fn func(u *User) error) error {
	return s.writer.Do(ctx, func(unit *store.Unit) error {
		users, err := Users.Load(ctx, unit)
		if err != nil {
			return err
		}
		i := indexUser(users, id)
		if i < 0 {
			return apperr.NotFound("user", id)
		}
		if err := fn(&users[i]); err != nil {
			return err
		}
		return Users.Stage(unit, users)
	})
}

func indexUser(users []User, id string) int {
	for i := range users {
		if users[i].ID == id {
			return i
		}
	}
	return -1
}

func temporaryPassword() (string, error) {
	b := make([]byte, tempPasswordLen)
	max := big.NewInt(int64(len(tempPasswordChars)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		b[i] = tempPasswordChars[n.Int64()]
	}
	return string(b), nil
}
