package repository

import (
	"github.com/yourusername/portfolio-api/internal/domain/entity"
)

// UserRepository is the credential store: verified identities and their
// password hashes.
type UserRepository interface {
	Create(user *entity.User) error
	GetByID(id uint) (*entity.User, error)
	// GetByEmail returns the account without its password hash.
	GetByEmail(email string) (*entity.User, error)
	// GetByEmailWithPassword includes the hash, for login checks only.
	GetByEmailWithPassword(email string) (*entity.User, error)
	ExistsByEmail(email string) (bool, error)
	// UpdatePasswordByEmail replaces the secret with a hash of newPassword.
	UpdatePasswordByEmail(email, newPassword string) error
}
