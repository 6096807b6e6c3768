package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/audit"
)

var (
	// errors
	ErrNotFound             = errors.New("user not found")
	ErrUsernameExists       = errors.New("a user with this username already exists")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountDeactivated   = errors.New("account deactivated")
	ErrSelfLockout          = errors.New("you cannot deactivate or demote your own account")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUserByID(ctx context.Context, id int64, exec ...core.DBExecutor) (User, error)
		GetUserByUsername(ctx context.Context, username string, exec ...core.DBExecutor) (User, error)
		QueryUsers(ctx context.Context, exec ...core.DBExecutor) ([]User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	}

	Service struct {
		repo      Repository
		trail     audit.Logger
		validator *core.Validator
		now       func() time.Time
	}
)

func NewService(repo Repository, trail audit.Logger, validator *core.Validator) *Service {
	return &Service{repo: repo, trail: trail, validator: validator, now: time.Now}
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	nu.Clean()
	if err := svc.validator.Struct(nu); err != nil {
		return User{}, err
	}
	if _, err := svc.repo.GetUserByUsername(ctx, nu.Username); err == nil {
		return User{}, core.NewValidationError(ErrUsernameExists, core.FieldError{Field: "username", Error: ErrUsernameExists.Error()})
	} else if errors.Cause(err) != ErrNotFound {
		return User{}, errors.Wrap(err, "checking username uniqueness")
	}

	now := svc.now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsers(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id int64) (User, error) {
	if id <= 0 {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsername(ctx, core.CleanString(uname, true /* lower */))
}

// Update modifies a user's name, username, email, roles and active flag.
func (svc *Service) Update(ctx context.Context, actorID, id int64, uu UpdateUser) (User, error) {
	uu.Clean()
	if err := svc.validator.Struct(uu); err != nil {
		return User{}, err
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	var changes []string
	if uu.Name != "" && uu.Name != usr.Name {
		usr.Name = uu.Name
		changes = append(changes, "name")
	}
	if uu.Username != "" && uu.Username != usr.Username {
		if other, err := svc.repo.GetUserByUsername(ctx, uu.Username); err == nil && other.ID != usr.ID {
			return User{}, core.NewValidationError(ErrUsernameExists, core.FieldError{Field: "username", Error: ErrUsernameExists.Error()})
		} else if err != nil && errors.Cause(err) != ErrNotFound {
			return User{}, errors.Wrap(err, "checking username uniqueness")
		}
		changes = append(changes, fmt.Sprintf("username %s -> %s", usr.Username, uu.Username))
		usr.Username = uu.Username
	}
	if uu.Email != "" && uu.Email != usr.Email {
		usr.Email = uu.Email
		changes = append(changes, "email")
	}
	if len(uu.Roles) > 0 && strings.Join(uu.Roles, ",") != strings.Join(usr.Roles, ",") {
		usr.Roles = uu.Roles
		changes = append(changes, "roles "+strings.Join(uu.Roles, ","))
	}
	if uu.IsActive != nil && *uu.IsActive != usr.IsActive {
		usr.IsActive = *uu.IsActive
		if usr.IsActive {
			changes = append(changes, "reactivated")
		} else {
			changes = append(changes, "deactivated")
		}
	}
	if actorID == usr.ID && (!usr.IsActive || !usr.IsAdmin()) {
		return User{}, core.NewValidationError(ErrSelfLockout, core.FieldError{Field: "is_active", Error: ErrSelfLockout.Error()})
	}
	if len(changes) == 0 {
		return usr, nil
	}

	usr.UpdatedAt = svc.now().UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		if errors.Cause(err) == ErrUsernameExists {
			return User{}, core.NewValidationError(ErrUsernameExists, core.FieldError{Field: "username", Error: ErrUsernameExists.Error()})
		}
		return User{}, errors.Wrap(err, "updating user")
	}
	svc.trail.LogAction(ctx, actorID, fmt.Sprintf("Updated user %s: %s", usr.Username, strings.Join(changes, ", ")))
	return usr, nil
}

// SetPassword replaces the password of a user (admin reset).
func (svc *Service) SetPassword(ctx context.Context, actorID int64, usr User, pwd string) (User, error) {
	if len(pwd) < 8 {
		return User{}, core.NewFieldError("password", "must be at least 8 characters in length")
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = svc.now().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	svc.trail.LogAction(ctx, actorID, "Reset password of user "+usr.Username)
	return usr, nil
}

// Authenticate checks credentials and stamps the last login. Every attempt is written to the audit trail.
func (svc *Service) Authenticate(ctx context.Context, uname, pwd string) (User, error) {
	uname = core.CleanString(uname, true)
	usr, err := svc.repo.GetUserByUsername(ctx, uname)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			svc.trail.LogAction(ctx, 0, "Failed login attempt for unknown user "+uname)
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "finding user by username")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		svc.trail.LogAction(ctx, usr.ID, "Failed login attempt for "+usr.Username)
		return User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		svc.trail.LogAction(ctx, usr.ID, "Login refused for deactivated account "+usr.Username)
		return User{}, ErrAccountDeactivated
	}

	usr.LastLogin = svc.now().UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "setting last login")
	}
	svc.trail.LogAction(ctx, usr.ID, "User "+usr.Username+" logged in")
	return usr, nil
}
