package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/passhport/passhportd/internal/config"
	"github.com/passhport/passhportd/internal/models"
	"github.com/passhport/passhportd/internal/repository"
	"github.com/passhport/passhportd/internal/utils"
	"github.com/sirupsen/logrus"
)

var (
	ErrMissingFields = errors.New("the email and SSH key are required")
	ErrEmailRequired = errors.New("the email is required")
	ErrEmailInUse    = errors.New("email already used by another user")
	ErrSSHKeyInUse   = errors.New("SSH key already used by another user")
	ErrUserNotFound  = errors.New("no user with this email")
	ErrInvalidInput  = errors.New("invalid input")
)

// Notifier is told about users entering and leaving the database
type Notifier interface {
	UserCreated(user *models.User) error
	UserDeleted(email string) error
}

// CreateUserInput carries the create form fields
type CreateUserInput struct {
	Email    string `validate:"required,max=120"`
	SSHKey   string `validate:"required,max=500"`
	Comment  string `validate:"max=500"`
	Username string `validate:"max=256"`
}

// EditUserInput carries the edit form fields. Empty New* fields are left untouched.
type EditUserInput struct {
	Email       string `validate:"required"`
	NewEmail    string `validate:"max=120"`
	NewSSHKey   string `validate:"max=500"`
	NewComment  string `validate:"max=500"`
	NewUsername string `validate:"max=256"`
}

// ImportResult reports the outcome of one imported user
type ImportResult struct {
	Email string
	Err   error
}

// Service handles business logic
type Service struct {
	repo     *repository.Repository
	log      *logrus.Logger
	config   *config.Config
	validate *validator.Validate
	notifier Notifier
}

// NewService initializes a new service. notifier may be nil.
func NewService(repo *repository.Repository, log *logrus.Logger, cfg *config.Config, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		log:      log,
		config:   cfg,
		validate: validator.New(),
		notifier: notifier,
	}
}

// ListEmails returns every user email in lexicographic order
func (s *Service) ListEmails(ctx context.Context) ([]string, error) {
	return s.repo.ListEmails(ctx)
}

// SearchEmails returns the emails containing pattern
func (s *Service) SearchEmails(ctx context.Context, pattern string) ([]string, error) {
	return s.repo.SearchEmails(ctx, pattern)
}

// ShowUser returns the user registered with email
func (s *Service) ShowUser(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// CreateUser checks the input and inserts a new user.
// The unique constraints stay the real guard: a concurrent insert that slips
// past the checks fails with repository.ErrConflict.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.SSHKey = strings.TrimSpace(in.SSHKey)
	if err := s.check(in); err != nil {
		return nil, err
	}
	if err := s.checkSSHKey(in.SSHKey); err != nil {
		return nil, err
	}

	user := &models.User{
		Username: models.NullableUsername(in.Username),
		Email:    in.Email,
		SSHKey:   in.SSHKey,
		Comment:  in.Comment,
	}

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx *repository.Repository) error {
		taken, err := tx.EmailExists(ctx, user.Email)
		if err != nil {
			return err
		}
		if taken {
			return ErrEmailInUse
		}
		taken, err = tx.SSHKeyExists(ctx, user.SSHKey)
		if err != nil {
			return err
		}
		if taken {
			return ErrSSHKeyInUse
		}
		return tx.CreateUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("User created: %s", user.Email)
	s.notify(func(n Notifier) error { return n.UserCreated(user) })
	return user, nil
}

// EditUser applies every non-empty New* field to the user in one statement
func (s *Service) EditUser(ctx context.Context, in EditUserInput) (*models.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.NewEmail = strings.TrimSpace(in.NewEmail)
	in.NewSSHKey = strings.TrimSpace(in.NewSSHKey)
	if in.Email == "" {
		return nil, ErrEmailRequired
	}
	if err := s.check(in); err != nil {
		return nil, err
	}
	if in.NewSSHKey != "" {
		if err := s.checkSSHKey(in.NewSSHKey); err != nil {
			return nil, err
		}
	}

	var user *models.User
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx *repository.Repository) error {
		var err error
		user, err = tx.FindByEmail(ctx, in.Email)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		var columns []string
		if in.NewComment != "" {
			user.Comment = in.NewComment
			columns = append(columns, "comment")
		}
		if in.NewSSHKey != "" {
			user.SSHKey = in.NewSSHKey
			columns = append(columns, "sshkey")
		}
		if in.NewEmail != "" {
			user.Email = in.NewEmail
			columns = append(columns, "email")
		}
		if in.NewUsername != "" {
			user.Username = models.NullableUsername(in.NewUsername)
			columns = append(columns, "username")
		}
		return tx.UpdateUser(ctx, user, columns...)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("User edited: %s", in.Email)
	return user, nil
}

// DeleteUser removes the user registered with email
func (s *Service) DeleteUser(ctx context.Context, email string) error {
	if email == "" {
		return ErrEmailRequired
	}

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx *repository.Repository) error {
		found, err := tx.EmailExists(ctx, email)
		if err != nil {
			return err
		}
		if !found {
			return ErrUserNotFound
		}
		return tx.DeleteByEmail(ctx, email)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}

	s.log.Infof("User deleted: %s", email)
	s.notify(func(n Notifier) error { return n.UserDeleted(email) })
	return nil
}

// ExportUsers returns every user ordered by email
func (s *Service) ExportUsers(ctx context.Context) ([]models.User, error) {
	return s.repo.AllUsers(ctx)
}

// ImportUsers creates each user in turn and reports every outcome.
// A failing user does not stop the import.
func (s *Service) ImportUsers(ctx context.Context, users []CreateUserInput) []ImportResult {
	results := make([]ImportResult, 0, len(users))
	for _, in := range users {
		_, err := s.CreateUser(ctx, in)
		if err != nil {
			s.log.Warnf("Failed to import user %q: %v", in.Email, err)
		}
		results = append(results, ImportResult{Email: strings.TrimSpace(in.Email), Err: err})
	}
	return results
}

// Health checks that the database answers
func (s *Service) Health(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Maintain runs database housekeeping and logs the user count
func (s *Service) Maintain(ctx context.Context) error {
	if err := s.repo.Maintain(ctx); err != nil {
		return fmt.Errorf("failed to maintain database: %w", err)
	}
	n, err := s.repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	s.log.WithField("users", n).Info("Database maintenance done")
	return nil
}

func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return ErrMissingFields
		}
	}
	fe := verrs[0]
	return fmt.Errorf("%w: %s is longer than %s characters", ErrInvalidInput, fieldLabel(fe.Field()), fe.Param())
}

func (s *Service) checkSSHKey(key string) error {
	if !s.config.StrictSSHKey {
		return nil
	}
	if _, _, err := utils.ParseSSHKey(key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (s *Service) notify(fn func(Notifier) error) {
	if s.notifier == nil {
		return
	}
	if err := fn(s.notifier); err != nil {
		s.log.Warnf("Notification failed: %v", err)
	}
}

func fieldLabel(field string) string {
	switch field {
	case "Email", "NewEmail":
		return "the email"
	case "SSHKey", "NewSSHKey":
		return "the SSH key"
	case "Comment", "NewComment":
		return "the comment"
	case "Username", "NewUsername":
		return "the username"
	default:
		return field
	}
}
